package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"go.uber.org/zap"
)

const DefaultMaxRewindDelay = 30 * time.Second

type RewindConfig struct {
	Attempts uint
	Delay    time.Duration
	MaxDelay time.Duration // потолок паузы между пустыми перемотками
}

// SourceRewinder перематывает исчерпанный источник с экспоненциальным бэкоффом.
// Первая перемотка после отданного кадра мгновенная; если источник снова
// кончился, не отдав ни одного кадра, пауза перед следующей удваивается.
type SourceRewinder struct {
	cfg     RewindConfig
	empty   int // перемоток подряд без кадров
	metrics *Metrics
	logger  *zap.Logger
}

func NewSourceRewinder(cfg RewindConfig, metrics *Metrics, logger *zap.Logger) *SourceRewinder {
	if cfg.Attempts == 0 {
		cfg.Attempts = 5
	}
	if cfg.Delay <= 0 {
		cfg.Delay = 200 * time.Millisecond
	}
	if cfg.MaxDelay < cfg.Delay {
		cfg.MaxDelay = max(DefaultMaxRewindDelay, cfg.Delay)
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &SourceRewinder{cfg: cfg, metrics: metrics, logger: logger.With(zap.String("mod", "rewind"))}
}

// Delivered сбрасывает бэкофф: источник снова отдает кадры.
func (s *SourceRewinder) Delivered() { s.empty = 0 }

// Backoff — пауза перед следующей перемоткой.
func (s *SourceRewinder) Backoff() time.Duration {
	if s.empty == 0 {
		return 0
	}
	d := s.cfg.Delay
	for i := 1; i < s.empty && d < s.cfg.MaxDelay; i++ {
		d *= 2
	}
	return min(d, s.cfg.MaxDelay)
}

func (s *SourceRewinder) Rewind(ctx context.Context, src Rewinder) error {
	if wait := s.Backoff(); wait > 0 {
		s.logger.Warn("source ended without frames, backing off",
			zap.Int("empty_rewinds", s.empty), zap.Duration("wait", wait))
		if !sleepCtx(ctx, wait) {
			return ctx.Err()
		}
	}
	s.empty++

	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(s.cfg.Attempts),
		retry.Delay(s.cfg.Delay),
		retry.DelayType(retry.BackOffDelay),
	)

	attempt := 0
	err := r.Do(func() error {
		attempt++
		if err := src.Reset(); err != nil {
			s.logger.Warn("source rewind failed", zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("rewind source: %w", err)
	}

	s.metrics.SourceRestarts.Inc()
	s.logger.Info("source rewound", zap.Int("attempts", attempt))
	return nil
}
