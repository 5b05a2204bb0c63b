package engine

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/yardwatch/internal/domain"
	"github.com/xela07ax/yardwatch/internal/infra"
	"go.uber.org/zap"
)

// OverrideProvider — источник сохраненных ручных статусов (Postgres / SQLite).
type OverrideProvider interface {
	ListOverrides(ctx context.Context) ([]domain.Override, error)
}

// OverrideManager — потокобезопасная карта ручных статусов.
// Пишут транспорт (команды подписчиков) и слушатель Redis, читает цикл кадров.
// rdb и repo могут быть nil: тогда состояние живет только в памяти процесса.
type OverrideManager struct {
	repo   OverrideProvider
	rdb    *redis.Client
	logger *zap.Logger

	mu    sync.RWMutex
	items map[int64]domain.Override
}

func NewOverrideManager(rdb *redis.Client, repo OverrideProvider, logger *zap.Logger) *OverrideManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OverrideManager{
		items:  make(map[int64]domain.Override),
		repo:   repo,
		rdb:    rdb,
		logger: logger.With(zap.String("mod", "overrides")),
	}
}

// Get — горячий путь классификатора.
func (m *OverrideManager) Get(trackID int64) (domain.Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ov, ok := m.items[trackID]
	return ov.Status, ok
}

// Set меняет только локальное состояние.
func (m *OverrideManager) Set(trackID int64, status domain.Status, by string) error {
	if !status.Overridable() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidStatus, status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[trackID] = domain.Override{
		TrackID:   trackID,
		Status:    status,
		UpdatedBy: by,
		UpdatedAt: time.Now().UTC(),
	}
	return nil
}

// Clear возвращает false, если статуса не было.
func (m *OverrideManager) Clear(trackID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.items[trackID]
	delete(m.items, trackID)
	return ok
}

// List — копия состояния, отсортированная по track_id.
func (m *OverrideManager) List() []domain.Override {
	m.mu.RLock()
	out := make([]domain.Override, 0, len(m.items))
	for _, ov := range m.items {
		out = append(out, ov)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].TrackID < out[j].TrackID })
	return out
}

func (m *OverrideManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// Apply ставит статус локально и рассылает его остальным инстансам через Redis.
func (m *OverrideManager) Apply(ctx context.Context, trackID int64, status domain.Status, by string) error {
	if err := m.Set(trackID, status, by); err != nil {
		return err
	}
	return m.propagate(ctx, trackID, string(status))
}

// Release снимает статус локально и в Redis.
func (m *OverrideManager) Release(ctx context.Context, trackID int64) error {
	m.Clear(trackID)
	return m.propagate(ctx, trackID, infra.OverrideClearValue)
}

func (m *OverrideManager) propagate(ctx context.Context, trackID int64, value string) error {
	if m.rdb == nil {
		return nil
	}
	field := strconv.FormatInt(trackID, 10)

	pipe := m.rdb.TxPipeline()
	if value == infra.OverrideClearValue {
		pipe.HDel(ctx, infra.RedisKeyOverrides, field)
	} else {
		pipe.HSet(ctx, infra.RedisKeyOverrides, field, value)
	}
	pipe.Publish(ctx, infra.RedisChanOverrides, infra.OverrideSignal(trackID, value))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish override signal: %w", err)
	}
	return nil
}

// Init загружает ручные статусы при старте: БД -> L1, прогрев Redis,
// затем накат актуального состояния из Redis поверх.
func (m *OverrideManager) Init(ctx context.Context) error {
	state := make(map[string]string)
	if m.repo != nil {
		items, err := m.repo.ListOverrides(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch overrides from DB: %w", err)
		}
		for _, ov := range items {
			state[strconv.FormatInt(ov.TrackID, 10)] = string(ov.Status)
		}
	}

	if m.rdb == nil {
		m.replace(state)
		return nil
	}

	if err := WarmupState(ctx, m.rdb, m.logger, state, infra.RedisKeyOverrides, infra.RedisKeyLockOverrides, m.replace); err != nil {
		return fmt.Errorf("warm-up overrides: %w", err)
	}

	live, err := m.rdb.HGetAll(ctx, infra.RedisKeyOverrides).Result()
	if err != nil {
		m.logger.Warn("could not read overrides from Redis, keeping DB state", zap.Error(err))
		return nil
	}
	if len(live) > 0 {
		m.replace(live)
	}
	return nil
}

// StartListener следит за сигналами других инстансов и консоли.
func (m *OverrideManager) StartListener(ctx context.Context) {
	if m.rdb == nil {
		return
	}
	ListenStateResilient(ctx, m.rdb, m.logger, infra.RedisChanOverrides,
		func() error { return m.Init(ctx) }, // Переподключение
		m.applySignal,
	)
}

func (m *OverrideManager) applySignal(id, value string) {
	trackID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		m.logger.Warn("invalid track id in override signal", zap.String("id", id))
		return
	}

	if value == infra.OverrideClearValue {
		m.Clear(trackID)
		return
	}

	status, err := domain.ParseOverride(value)
	if err != nil {
		m.logger.Warn("invalid status in override signal", zap.Int64("track_id", trackID), zap.Error(err))
		return
	}
	_ = m.Set(trackID, status, "signal")
}

// replace полностью заменяет L1; битые записи пропускаются.
func (m *OverrideManager) replace(state map[string]string) {
	next := make(map[int64]domain.Override, len(state))
	now := time.Now().UTC()
	for field, value := range state {
		trackID, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			continue
		}
		status, err := domain.ParseOverride(value)
		if err != nil {
			continue
		}
		next[trackID] = domain.Override{TrackID: trackID, Status: status, UpdatedAt: now}
	}

	m.mu.Lock()
	m.items = next
	m.mu.Unlock()
}
