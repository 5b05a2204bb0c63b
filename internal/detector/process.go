package detector

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/xela07ax/yardwatch/internal/domain"
	"go.uber.org/zap"
)

// MaxFrameBytes ограничивает один кадр от внешнего процесса.
const MaxFrameBytes = 16 << 20

// exitGrace — сколько Wait ждет закрытия stdout/stderr после убийства процесса.
const exitGrace = 2 * time.Second

// Process запускает внешний детектор+трекер и читает из его stdout кадры:
// 4 байта длины (big endian) + MessagePack {seq, ts, detections}.
// Конец stdout — io.EOF; Reset перезапускает процесс.
type Process struct {
	command string
	args    []string
	logger  *zap.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	cmd    *exec.Cmd
	frames chan frameOrErr
	done   chan struct{} // закрывается после cmd.Wait
	closed bool
}

type frameOrErr struct {
	frame domain.Frame
	err   error
}

func StartProcess(ctx context.Context, command string, args []string, logger *zap.Logger) (*Process, error) {
	if command == "" {
		return nil, errors.New("detector command is empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Process{
		command: command,
		args:    args,
		logger:  logger.With(zap.String("mod", "detector-process")),
		ctx:     ctx,
	}
	if err := p.start(); err != nil {
		return nil, err
	}
	return p, nil
}

// start вызывается под p.mu либо до публикации p.
func (p *Process) start() error {
	ctx, cancel := context.WithCancel(p.ctx)
	cmd := exec.CommandContext(ctx, p.command, p.args...)
	cmd.WaitDelay = exitGrace

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start %s: %w", p.command, err)
	}
	p.logger.Info("detector process started", zap.String("command", p.command), zap.Int("pid", cmd.Process.Pid))

	frames := make(chan frameOrErr, 8)
	done := make(chan struct{})
	go p.pipeStderr(stderr)
	go p.readLoop(ctx, cmd, stdout, frames, done)

	p.cmd, p.cancel, p.frames, p.done = cmd, cancel, frames, done
	return nil
}

func (p *Process) pipeStderr(r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		p.logger.Info("detector stderr", zap.String("line", sc.Text()))
	}
}

// readLoop всегда заканчивается cmd.Wait, даже если его остановили
// отменой контекста посреди отправки кадра.
func (p *Process) readLoop(ctx context.Context, cmd *exec.Cmd, stdout io.Reader, out chan<- frameOrErr, done chan<- struct{}) {
	defer close(done)
	defer close(out)

	err := p.pump(ctx, bufio.NewReader(stdout), out)
	if err != nil && !errors.Is(err, io.EOF) {
		// битый поток: процесс может жить дальше, не дожидаемся его
		_ = cmd.Process.Kill()
	}

	// Wait освобождает ресурсы процесса; код выхода только логируем
	if werr := cmd.Wait(); werr != nil && ctx.Err() == nil {
		p.logger.Warn("detector process exited", zap.Error(werr))
	}
	if err == nil {
		return
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	select {
	case out <- frameOrErr{err: err}:
	case <-ctx.Done():
	}
}

// pump возвращает ошибку чтения или nil, если контекст отменен.
func (p *Process) pump(ctx context.Context, r io.Reader, out chan<- frameOrErr) error {
	for {
		frame, err := ReadFrame(r)
		if err != nil {
			return err
		}
		select {
		case out <- frameOrErr{frame: frame}:
		case <-ctx.Done():
			return nil
		}
	}
}

// ReadFrame читает один кадр в формате length-prefix + MessagePack.
func ReadFrame(r io.Reader) (domain.Frame, error) {
	var lengthBuf [4]byte
	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		return domain.Frame{}, err
	}
	n := binary.BigEndian.Uint32(lengthBuf[:])
	if n > MaxFrameBytes {
		return domain.Frame{}, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}

	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return domain.Frame{}, err
	}

	var wf wireFrame
	if err := msgpack.Unmarshal(data, &wf); err != nil {
		return domain.Frame{}, fmt.Errorf("unmarshal msgpack frame: %w", err)
	}
	return wf.frame(), nil
}

// WriteFrame — обратная к ReadFrame операция, ее использует симулятор детектора.
func WriteFrame(w io.Writer, frame domain.Frame) error {
	wf := wireFrame{Seq: frame.Seq, Detections: frame.Detections}
	if !frame.At.IsZero() {
		wf.TsMs = frame.At.UnixMilli()
	}
	data, err := msgpack.Marshal(&wf)
	if err != nil {
		return fmt.Errorf("marshal msgpack frame: %w", err)
	}
	var lengthBuf [4]byte
	binary.BigEndian.PutUint32(lengthBuf[:], uint32(len(data)))
	if _, err := w.Write(lengthBuf[:]); err != nil {
		return fmt.Errorf("failed to write length prefix: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write msgpack data: %w", err)
	}
	return nil
}

func (p *Process) Next(ctx context.Context) (domain.Frame, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return domain.Frame{}, ErrSourceClosed
	}
	frames := p.frames
	p.mu.Unlock()

	select {
	case <-ctx.Done():
		return domain.Frame{}, ctx.Err()
	case fe, ok := <-frames:
		if !ok {
			return domain.Frame{}, io.EOF
		}
		return fe.frame, fe.err
	}
}

// Reset перезапускает процесс детектора.
func (p *Process) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrSourceClosed
	}
	p.stop()
	return p.start()
}

// stop убивает текущий процесс и ждет, пока его заберет readLoop.
func (p *Process) stop() {
	p.cancel()
	<-p.done
}

func (p *Process) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.stop()
	return nil
}
