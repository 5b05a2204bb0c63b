package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/xela07ax/yardwatch/internal/domain"
	"go.uber.org/zap"
)

const DefaultBroadcastRate = 8.0

var (
	ErrSubscriberClosed  = errors.New("subscriber closed")
	ErrSubscriberStalled = errors.New("subscriber stalled")
)

// Subscriber — получатель рассылки. Deliver не должен блокироваться:
// транспорт кладет payload в свою очередь и пишет в сеть отдельно.
type Subscriber interface {
	ID() string
	Transport() string
	Deliver(payload []byte) error
	Close()
}

type BroadcasterConfig struct {
	RateHz float64
}

// Broadcaster раз в тик читает последний снимок, сериализует его один раз
// и раздает одни и те же байты всем подписчикам. Частота тиков не связана
// с частотой кадров.
type Broadcaster struct {
	store   *SnapshotStore
	period  time.Duration
	metrics *Metrics
	logger  *zap.Logger

	mu   sync.RWMutex
	subs map[string]Subscriber

	// кэш сериализации по seq снимка; трогает только Tick
	cachedSeq     uint64
	cachedPayload []byte
}

func NewBroadcaster(cfg BroadcasterConfig, store *SnapshotStore, metrics *Metrics, logger *zap.Logger) *Broadcaster {
	rate := cfg.RateHz
	if rate <= 0 {
		rate = DefaultBroadcastRate
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		store:   store,
		period:  time.Duration(float64(time.Second) / rate),
		metrics: metrics,
		logger:  logger.Named("broadcaster"),
		subs:    make(map[string]Subscriber),
	}
}

func (b *Broadcaster) Period() time.Duration { return b.period }

// Register добавляет подписчика; следующий тик уже дойдет до него.
func (b *Broadcaster) Register(s Subscriber) {
	b.mu.Lock()
	b.subs[s.ID()] = s
	n := len(b.subs)
	b.mu.Unlock()

	b.metrics.Subscribers.Set(float64(n))
	b.logger.Info("subscriber registered",
		zap.String("subscriber", s.ID()), zap.String("transport", s.Transport()), zap.Int("total", n))
}

// Unregister вызывается транспортом при отключении клиента.
func (b *Broadcaster) Unregister(id string) bool {
	b.mu.Lock()
	_, ok := b.subs[id]
	delete(b.subs, id)
	n := len(b.subs)
	b.mu.Unlock()

	if ok {
		b.metrics.Subscribers.Set(float64(n))
		b.logger.Info("subscriber unregistered", zap.String("subscriber", id), zap.Int("remaining", n))
	}
	return ok
}

func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Tick выполняет одну рассылку и возвращает число успешных доставок.
// Упавшие подписчики удаляются после полного прохода, а не во время него.
func (b *Broadcaster) Tick() (int, error) {
	snap, seq, ok := b.store.Load()
	if !ok {
		return 0, nil
	}

	payload, err := b.encode(snap, seq)
	if err != nil {
		return 0, err
	}

	b.mu.RLock()
	targets := make([]Subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	b.metrics.BroadcastTicks.Inc()
	if len(targets) == 0 {
		return 0, nil
	}

	var failed []Subscriber
	delivered := 0
	for _, s := range targets {
		if err := s.Deliver(payload); err != nil {
			b.logger.Info("delivery failed, pruning subscriber",
				zap.String("subscriber", s.ID()), zap.String("transport", s.Transport()), zap.Error(err))
			failed = append(failed, s)
			continue
		}
		delivered++
	}

	if len(failed) > 0 {
		b.prune(failed)
	}
	return delivered, nil
}

func (b *Broadcaster) prune(failed []Subscriber) {
	b.mu.Lock()
	for _, s := range failed {
		// подписчик мог уже переподключиться под тем же ID
		if cur, ok := b.subs[s.ID()]; ok && cur == s {
			delete(b.subs, s.ID())
		}
	}
	n := len(b.subs)
	b.mu.Unlock()

	for _, s := range failed {
		b.metrics.DeliveryFailures.WithLabelValues(s.Transport()).Inc()
		s.Close()
	}
	b.metrics.Subscribers.Set(float64(n))
}

func (b *Broadcaster) encode(snap domain.Snapshot, seq uint64) ([]byte, error) {
	if b.cachedPayload != nil && b.cachedSeq == seq {
		return b.cachedPayload, nil
	}
	payload, err := json.Marshal(domain.SnapshotMessage{Type: domain.MessageTypeSnapshot, Payload: snap})
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	b.cachedSeq, b.cachedPayload = seq, payload
	b.metrics.PayloadBytes.Set(float64(len(payload)))
	return payload, nil
}

// Run тикает до отмены контекста. Ошибка сериализации одного тика не
// останавливает рассылку.
func (b *Broadcaster) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.period)
	defer ticker.Stop()

	b.logger.Info("broadcaster started", zap.Duration("period", b.period))
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("broadcaster stopping by context...")
			return nil
		case <-ticker.C:
			if _, err := b.Tick(); err != nil {
				b.logger.Error("broadcast tick failed", zap.Error(err))
			}
		}
	}
}

// Shutdown закрывает всех оставшихся подписчиков.
func (b *Broadcaster) Shutdown() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[string]Subscriber)
	b.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
	b.metrics.Subscribers.Set(0)
}
