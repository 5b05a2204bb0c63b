package alerts

/*
Archive — асинхронный архив алертов.

- Log не блокирует цикл кадров: событие кладется в буферизованный канал,
  при переполнении отбрасывается с записью в лог (Load Shedding).
- Воркер копит пачку и пишет ее по таймеру или по достижении BatchSize.
- Stop закрывает вход и ждет, пока воркер вычитает канал и сделает
  финальный flush (Drain Pattern).
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xela07ax/yardwatch/internal/domain"
	"go.uber.org/zap"
)

// Storage определяет, куда физически сохраняются алерты
type Storage interface {
	// WriteAlerts сохраняет пачку за один раз
	WriteAlerts(ctx context.Context, records []domain.AlertRecord) error
}

type ArchiveConfig struct {
	BufferSize    int           `mapstructure:"buffer_size"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

func DefaultArchiveConfig() ArchiveConfig {
	return ArchiveConfig{BufferSize: 10000, BatchSize: 100, FlushInterval: 500 * time.Millisecond}
}

type Archive struct {
	cfg    ArchiveConfig
	ch     chan domain.AlertRecord
	repo   Storage
	fill   prometheus.Gauge
	logger *zap.Logger
	wg     sync.WaitGroup

	closeMu  sync.RWMutex
	isClosed atomic.Bool
}

// NewArchive — fill может быть nil.
func NewArchive(cfg ArchiveConfig, repo Storage, fill prometheus.Gauge, logger *zap.Logger) *Archive {
	def := DefaultArchiveConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archive{
		cfg:    cfg,
		ch:     make(chan domain.AlertRecord, cfg.BufferSize),
		repo:   repo,
		fill:   fill,
		logger: logger.With(zap.String("mod", "archive")),
	}
}

func (a *Archive) Start() {
	a.wg.Add(1)
	go a.worker()
}

// Stop запирает вход и ждет, пока воркер все допишет.
func (a *Archive) Stop() {
	// Ждем выхода всех текущих Log, после этого канал можно закрывать
	a.closeMu.Lock()
	if a.isClosed.Swap(true) {
		a.closeMu.Unlock()
		return
	}
	a.logger.Info("stopping archive: closing channel and flushing buffer...")
	close(a.ch)
	a.closeMu.Unlock()

	a.wg.Wait()
	a.logger.Info("archive stopped gracefully")
}

// Log реализует приемник алертов FrameProcessor.
func (a *Archive) Log(ev domain.AlertEvent) {
	created := time.UnixMilli(ev.TimestampMs).UTC()
	if ev.TimestampMs == 0 {
		created = time.Now().UTC()
	}
	rec := domain.AlertRecord{
		ID:          uuid.New().String(),
		TrackID:     ev.TrackID,
		Level:       ev.Level,
		Title:       ev.Title,
		Description: ev.Description,
		CreatedAt:   created,
	}

	a.closeMu.RLock()
	defer a.closeMu.RUnlock()
	if a.isClosed.Load() {
		a.logger.Warn("alert dropped: archive is stopping", zap.String("id", rec.ID))
		return
	}

	select {
	case a.ch <- rec:
		if a.fill != nil {
			a.fill.Set(float64(len(a.ch)))
		}
	default:
		a.logger.Error("archive_buffer_overflow",
			zap.Int64("track_id", rec.TrackID),
			zap.String("level", string(rec.Level)),
		)
	}
}

func (a *Archive) worker() {
	defer a.wg.Done()

	batch := make([]domain.AlertRecord, 0, a.cfg.BatchSize)
	ticker := time.NewTicker(a.cfg.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if a.fill != nil {
			a.fill.Set(float64(len(a.ch)))
		}
		if len(batch) == 0 {
			return
		}
		// Background: основной контекст к моменту финального flush уже отменен
		if err := a.repo.WriteAlerts(context.Background(), batch); err != nil {
			a.logger.Error("archive flush failed", zap.Int("batch", len(batch)), zap.Error(err))
		}
		batch = make([]domain.AlertRecord, 0, a.cfg.BatchSize)
	}

	for {
		select {
		case rec, ok := <-a.ch:
			if !ok {
				flush() // Финальный сброс
				a.logger.Info("archive worker finished")
				return
			}
			batch = append(batch, rec)
			if len(batch) >= a.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
