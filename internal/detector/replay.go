package detector

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/xela07ax/yardwatch/internal/domain"
)

const DefaultReplayFPS = 30.0

// Replay проигрывает записанные детекции из CSV:
//
//	frame,track_id,x1,y1,x2,y2,confidence,class[,width,height]
//
// Пустой track_id — трекер ID не выдал. Если заданы width/height,
// координаты считаются пиксельными и нормализуются. Пропуски в номерах
// кадров проигрываются как пустые кадры, чтобы двор "пустел" как на видео.
type Replay struct {
	path    string
	fps     float64
	pace    bool
	frames  []domain.Frame
	skipped int

	mu     sync.Mutex
	pos    int
	anchor time.Time
	closed bool
}

// OpenReplay читает файл целиком. fps <= 0 — без пауз между кадрами,
// метки времени все равно идут с шагом DefaultReplayFPS.
func OpenReplay(path string, fps float64) (*Replay, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	frames, skipped, err := parseReplay(file)
	if err != nil {
		return nil, err
	}

	r := &Replay{path: path, fps: fps, pace: fps > 0, frames: frames, skipped: skipped}
	if !r.pace {
		r.fps = DefaultReplayFPS
	}
	return r, nil
}

func parseReplay(src io.Reader) ([]domain.Frame, int, error) {
	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read CSV header: %w", err)
	}
	colMap := make(map[string]int, len(header))
	for i, col := range header {
		colMap[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, col := range []string{"frame", "x1", "y1", "x2", "y2"} {
		if _, ok := colMap[col]; !ok {
			return nil, 0, fmt.Errorf("CSV header lacks %q column", col)
		}
	}

	byFrame := make(map[int][]domain.Detection)
	skipped := 0
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			skipped++
			continue
		}
		frameNo, det, err := parseReplayRow(row, colMap)
		if err != nil {
			skipped++
			continue
		}
		byFrame[frameNo] = append(byFrame[frameNo], det)
	}
	if len(byFrame) == 0 {
		return nil, skipped, errors.New("CSV file has no detections")
	}

	numbers := make([]int, 0, len(byFrame))
	for n := range byFrame {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	first, last := numbers[0], numbers[len(numbers)-1]
	frames := make([]domain.Frame, 0, last-first+1)
	for n := first; n <= last; n++ {
		frames = append(frames, domain.Frame{Seq: uint64(n - first + 1), Detections: byFrame[n]})
	}
	return frames, skipped, nil
}

func parseReplayRow(row []string, colMap map[string]int) (int, domain.Detection, error) {
	var det domain.Detection

	field := func(name string) (string, bool) {
		idx, ok := colMap[name]
		if !ok || idx >= len(row) {
			return "", false
		}
		return strings.TrimSpace(row[idx]), true
	}

	raw, _ := field("frame")
	frameNo, err := strconv.Atoi(raw)
	if err != nil {
		return 0, det, fmt.Errorf("invalid frame: %w", err)
	}

	for i, name := range []string{"x1", "y1", "x2", "y2"} {
		raw, _ := field(name)
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, det, fmt.Errorf("invalid %s: %w", name, err)
		}
		det.BBox[i] = v
	}

	if raw, ok := field("track_id"); ok && raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, det, fmt.Errorf("invalid track_id: %w", err)
		}
		det.TrackID = &id
	}
	det.Confidence = 1
	if raw, ok := field("confidence"); ok && raw != "" {
		if det.Confidence, err = strconv.ParseFloat(raw, 64); err != nil {
			return 0, det, fmt.Errorf("invalid confidence: %w", err)
		}
	}
	if raw, ok := field("class"); ok {
		det.Class = raw
	}

	w, okW := field("width")
	h, okH := field("height")
	if okW && okH && w != "" && h != "" {
		width, errW := strconv.ParseFloat(w, 64)
		height, errH := strconv.ParseFloat(h, 64)
		if errW != nil || errH != nil || width <= 0 || height <= 0 {
			return 0, det, fmt.Errorf("invalid frame size %q x %q", w, h)
		}
		det.BBox[0] /= width
		det.BBox[2] /= width
		det.BBox[1] /= height
		det.BBox[3] /= height
	}
	return frameNo, det, nil
}

func (r *Replay) Next(ctx context.Context) (domain.Frame, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return domain.Frame{}, ErrSourceClosed
	}
	if r.pos >= len(r.frames) {
		r.mu.Unlock()
		return domain.Frame{}, io.EOF
	}
	if r.anchor.IsZero() {
		r.anchor = time.Now()
	}
	frame := r.frames[r.pos]
	due := r.anchor.Add(time.Duration(float64(r.pos) / r.fps * float64(time.Second)))
	r.pos++
	r.mu.Unlock()

	if r.pace {
		if wait := time.Until(due); wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return domain.Frame{}, ctx.Err()
			case <-t.C:
			}
		}
	}

	// копия, чтобы потребитель не мог испортить запись для следующего круга
	dets := make([]domain.Detection, len(frame.Detections))
	copy(dets, frame.Detections)
	return domain.Frame{Seq: frame.Seq, At: due, Detections: dets}, nil
}

// Reset начинает запись сначала с новой временной опорой.
func (r *Replay) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrSourceClosed
	}
	r.pos = 0
	r.anchor = time.Time{}
	return nil
}

func (r *Replay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Len — число кадров в записи, включая пустые.
func (r *Replay) Len() int { return len(r.frames) }

// Skipped — сколько строк CSV не удалось разобрать.
func (r *Replay) Skipped() int { return r.skipped }
