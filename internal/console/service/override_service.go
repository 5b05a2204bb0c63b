package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/yardwatch/internal/domain"
	"github.com/xela07ax/yardwatch/internal/infra"
	"go.uber.org/zap"
)

type OverrideRepository interface {
	ListOverrides(ctx context.Context) ([]domain.Override, error)
	UpsertOverride(ctx context.Context, o domain.Override) error
	DeleteOverride(ctx context.Context, trackID int64) error
}

// OverrideService — источник правды для ручных статусов. Сначала БД,
// затем состояние и сигнал в Redis для всех экземпляров data plane.
type OverrideService struct {
	repo   OverrideRepository
	rdb    *redis.Client
	logger *zap.Logger
	now    func() time.Time
}

// NewOverrideService: rdb может быть nil, тогда изменения увидят только после рестарта.
func NewOverrideService(repo OverrideRepository, rdb *redis.Client, logger *zap.Logger) *OverrideService {
	return &OverrideService{
		repo:   repo,
		rdb:    rdb,
		logger: logger.Named("override-service"),
		now:    time.Now,
	}
}

func (s *OverrideService) List(ctx context.Context) ([]domain.Override, error) {
	list, err := s.repo.ListOverrides(ctx)
	if err != nil {
		return nil, fmt.Errorf("override_service: list: %w", err)
	}
	return list, nil
}

func (s *OverrideService) Set(ctx context.Context, trackID int64, raw, by string) (domain.Override, error) {
	status, err := domain.ParseOverride(raw)
	if err != nil {
		return domain.Override{}, err
	}
	o := domain.Override{TrackID: trackID, Status: status, UpdatedBy: by, UpdatedAt: s.now().UTC()}

	if err := s.repo.UpsertOverride(ctx, o); err != nil {
		s.logger.Error("failed to persist override",
			zap.Int64("track_id", trackID),
			zap.String("status", string(status)),
			zap.Error(err))
		return domain.Override{}, fmt.Errorf("override database error: %w", err)
	}

	s.signal(ctx, trackID, string(status), "set")
	return o, nil
}

// Clear отдает domain.ErrNotFound, если статуса не было.
func (s *OverrideService) Clear(ctx context.Context, trackID int64) error {
	if err := s.repo.DeleteOverride(ctx, trackID); err != nil {
		return err
	}
	s.signal(ctx, trackID, infra.OverrideClearValue, "clear")
	return nil
}

// signal не роняет запрос: БД уже записана, data plane догонит при следующем warm-up.
func (s *OverrideService) signal(ctx context.Context, trackID int64, value, action string) {
	if s.rdb == nil {
		return
	}
	field := strconv.FormatInt(trackID, 10)

	pipe := s.rdb.TxPipeline()
	if value == infra.OverrideClearValue {
		pipe.HDel(ctx, infra.RedisKeyOverrides, field)
	} else {
		pipe.HSet(ctx, infra.RedisKeyOverrides, field, value)
	}
	pipe.Publish(ctx, infra.RedisChanOverrides, infra.OverrideSignal(trackID, value))

	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn("runtime signal delivery failed",
			zap.String("action", action),
			zap.String("channel", infra.RedisChanOverrides),
			zap.Error(err))
		return
	}
	s.logger.Info("override updated",
		zap.Int64("track_id", trackID),
		zap.String("action", action),
		zap.String("value", value))
}
