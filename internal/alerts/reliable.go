package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"github.com/xela07ax/yardwatch/internal/domain"
)

type ReliabilityConfig struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration // через сколько CB попробует "закрыться"
	MaxFailures  uint32
	Attempts     uint
	CallTimeout  time.Duration
	InitialDelay time.Duration
}

func DefaultReliabilityConfig() ReliabilityConfig {
	return ReliabilityConfig{
		MaxRequests:  3,
		Interval:     5 * time.Second,
		Timeout:      30 * time.Second,
		MaxFailures:  5,
		Attempts:     3,
		CallTimeout:  10 * time.Second,
		InitialDelay: 100 * time.Millisecond,
	}
}

// ReliableStorage оборачивает хранилище архива: ретраи с бэкоффом внутри
// предохранителя. Пока CB открыт, пачки отбрасываются сразу, не нагружая БД.
type ReliableStorage struct {
	next Storage
	cfg  ReliabilityConfig
	cb   *gobreaker.CircuitBreaker
}

func NewReliableStorage(next Storage, cfg ReliabilityConfig, onStateChange func(name string, from, to gobreaker.State)) *ReliableStorage {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "yard-archive",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: onStateChange,
	})
	return &ReliableStorage{next: next, cfg: cfg, cb: cb}
}

func (s *ReliableStorage) WriteAlerts(ctx context.Context, records []domain.AlertRecord) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(s.cfg.Attempts),
			retry.Delay(s.cfg.InitialDelay),
			retry.DelayType(retry.BackOffDelay),
		)
		return nil, r.Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
			defer cancel()
			return s.next.WriteAlerts(tCtx, records)
		})
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("archive storage unavailable: %w", err)
	}
	return err
}

func (s *ReliableStorage) State() gobreaker.State { return s.cb.State() }
