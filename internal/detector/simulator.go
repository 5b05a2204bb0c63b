package detector

import (
	"context"
	"io"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/xela07ax/yardwatch/internal/domain"
)

const (
	DefaultSimTracks = 6
	simBoxSize       = 0.06
	simStep          = 0.012
)

type simMode int

const (
	simParked simMode = iota
	simRiding
	simLeaving
)

type simMoto struct {
	id   int64
	x, y float64
	mode simMode
}

// Simulator — синтетический двор без камеры: часть мотоциклов стоит, часть
// ездит, одна уезжает за периметр. Нужен для стендов и демо дашборда.
// Один и тот же seed дает одну и ту же последовательность кадров.
type Simulator struct {
	cfg SimulatorConfig

	mu     sync.Mutex
	rnd    *rand.Rand
	motos  []simMoto
	seq    uint64
	anchor time.Time
	closed bool
}

type SimulatorConfig struct {
	Tracks int
	FPS    float64 // <= 0 — без пауз
	Frames int     // 0 — бесконечно
	Seed   uint64
}

func NewSimulator(cfg SimulatorConfig) *Simulator {
	if cfg.Tracks <= 0 {
		cfg.Tracks = DefaultSimTracks
	}
	s := &Simulator{cfg: cfg}
	s.reset()
	return s
}

func (s *Simulator) reset() {
	s.rnd = rand.New(rand.NewPCG(s.cfg.Seed, s.cfg.Seed^0x9e3779b97f4a7c15))
	s.motos = make([]simMoto, s.cfg.Tracks)
	for i := range s.motos {
		mode := simParked
		switch {
		case i == s.cfg.Tracks-1 && s.cfg.Tracks > 2:
			mode = simLeaving
		case i%2 == 1:
			mode = simRiding
		}
		s.motos[i] = simMoto{
			id:   int64(i + 1),
			x:    0.15 + 0.7*s.rnd.Float64(),
			y:    0.15 + 0.7*s.rnd.Float64(),
			mode: mode,
		}
	}
	s.seq = 0
	s.anchor = time.Time{}
}

func (s *Simulator) Next(ctx context.Context) (domain.Frame, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.Frame{}, ErrSourceClosed
	}
	if s.cfg.Frames > 0 && s.seq >= uint64(s.cfg.Frames) {
		s.mu.Unlock()
		return domain.Frame{}, io.EOF
	}
	if s.anchor.IsZero() {
		s.anchor = time.Now()
	}
	fps := s.cfg.FPS
	if fps <= 0 {
		fps = DefaultReplayFPS
	}
	due := s.anchor.Add(time.Duration(float64(s.seq) / fps * float64(time.Second)))
	frame := domain.Frame{Seq: s.seq, At: due, Detections: s.step()}
	s.seq++
	s.mu.Unlock()

	if s.cfg.FPS > 0 {
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
	return frame, nil
}

// step двигает мотоциклы и собирает детекции кадра. Вызывается под mu.
func (s *Simulator) step() []domain.Detection {
	dets := make([]domain.Detection, 0, len(s.motos))
	for i := range s.motos {
		m := &s.motos[i]
		switch m.mode {
		case simRiding:
			m.x = clampSim(m.x + (s.rnd.Float64()*2-1)*simStep)
			m.y = clampSim(m.y + (s.rnd.Float64()*2-1)*simStep)
		case simLeaving:
			m.x -= simStep / 2
			if m.x < -simBoxSize {
				m.x = 0.5
			}
		}

		id := m.id
		dets = append(dets, domain.Detection{
			TrackID:    &id,
			BBox:       [4]float64{m.x - simBoxSize/2, m.y - simBoxSize/2, m.x + simBoxSize/2, m.y + simBoxSize/2},
			Confidence: 0.5 + 0.5*s.rnd.Float64(),
			Class:      DefaultClasses[0],
		})
	}
	return dets
}

func clampSim(v float64) float64 {
	return min(max(v, 0.1), 0.9)
}

// Reset повторяет ту же траекторию с начала.
func (s *Simulator) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSourceClosed
	}
	s.reset()
	return nil
}

func (s *Simulator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
