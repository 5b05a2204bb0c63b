package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/xela07ax/yardwatch/internal/domain"
	"github.com/xela07ax/yardwatch/internal/tracking"
	"go.uber.org/zap"
)

// FrameSource — источник пачек детекций (детектор + трекер).
// io.EOF означает конец потока.
type FrameSource interface {
	Next(ctx context.Context) (domain.Frame, error)
	Close() error
}

// Rewinder — источник, который можно перемотать в начало (запись, файл).
type Rewinder interface {
	Reset() error
}

const (
	ExhaustLoop = "loop"
	ExhaustStop = "stop"
)

type PipelineConfig struct {
	OnExhausted string
	Rewind      RewindConfig
}

// Pipeline — цикл кадров: единственный писатель состояния треков и
// единственный писатель SnapshotStore.
type Pipeline struct {
	source  FrameSource
	proc    *tracking.FrameProcessor
	store   *SnapshotStore
	rewind  *SourceRewinder
	policy  string
	metrics *Metrics
	logger  *zap.Logger
	now     func() time.Time
}

func NewPipeline(cfg PipelineConfig, source FrameSource, proc *tracking.FrameProcessor, store *SnapshotStore, metrics *Metrics, logger *zap.Logger) *Pipeline {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := cfg.OnExhausted
	if policy == "" {
		policy = ExhaustLoop
	}
	return &Pipeline{
		source:  source,
		proc:    proc,
		store:   store,
		rewind:  NewSourceRewinder(cfg.Rewind, metrics, logger),
		policy:  policy,
		metrics: metrics,
		logger:  logger.Named("pipeline"),
		now:     time.Now,
	}
}

// Step обрабатывает один кадр и публикует снимок.
func (p *Pipeline) Step(frame domain.Frame) domain.Snapshot {
	now := frame.At
	if now.IsZero() {
		now = p.now()
	}

	start := time.Now()
	snap := p.proc.Process(frame.Detections, now)
	p.metrics.FrameDuration.Observe(time.Since(start).Seconds())

	p.store.Store(snap)

	p.metrics.FramesProcessed.Inc()
	p.metrics.Detections.Add(float64(len(frame.Detections)))
	p.metrics.ObserveSnapshot(snap)
	return snap
}

// Run читает источник до отмены контекста. Конец потока обрабатывается
// по политике on_exhausted и никак не затрагивает рассылку: при "stop"
// последний снимок просто замирает.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("detection loop started", zap.String("on_exhausted", p.policy))

	for {
		frame, err := p.source.Next(ctx)
		switch {
		case err == nil:
			p.Step(frame)
			p.rewind.Delivered()
			continue
		case ctx.Err() != nil:
			p.logger.Info("detection loop stopping by context...")
			return nil
		case !errors.Is(err, io.EOF):
			return fmt.Errorf("read frame: %w", err)
		}

		if p.policy == ExhaustStop {
			p.logger.Info("source exhausted, keeping last snapshot")
			<-ctx.Done()
			return nil
		}

		rw, ok := p.source.(Rewinder)
		if !ok {
			return fmt.Errorf("source exhausted and cannot be rewound: %w", err)
		}
		if err := p.rewind.Rewind(ctx, rw); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}
