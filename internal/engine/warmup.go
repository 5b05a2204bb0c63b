package engine

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// WarmupState — прогрев L1 (RAM) и L2 (Redis hash) кэшей из снимка БД.
func WarmupState(
	ctx context.Context,
	rdb *redis.Client,
	logger *zap.Logger,
	state map[string]string,
	redisKey string,
	lockKey string,
	updateL1 func(map[string]string), // Callback для обновления локальной мапы
) error {
	// 1. Обновляем локальный кэш (L1) через callback
	updateL1(state)

	// 2. Распределенная блокировка (SetNX), чтобы только один инстанс обновлял Redis
	ok, err := rdb.SetNX(ctx, lockKey, "processing", 30*time.Second).Result()
	if err != nil || !ok {
		return nil // Либо ошибка сети, либо другой уже греет кэш
	}

	// 3. Проверка наполненности Redis
	count, err := rdb.HLen(ctx, redisKey).Result()
	if err != nil {
		count = 0
		logger.Warn("could not check Redis hash size, proceeding with warm-up",
			zap.String("key", redisKey), zap.Error(err))
	}

	// 4. Если Redis пуст, а данные в БД есть — заливаем
	if count == 0 && len(state) > 0 {
		logger.Info("Redis cache is empty, performing warm-up from DB...",
			zap.String("key", redisKey), zap.Int("count", len(state)))

		pipe := rdb.Pipeline()
		for field, value := range state {
			pipe.HSet(ctx, redisKey, field, value)
		}
		_, err = pipe.Exec(ctx)
		return err
	}

	return nil
}
