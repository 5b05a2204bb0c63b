package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "yard"
)

// Ключи состояния
const (
	// RedisKeyOverrides — hash track_id -> status, актуальное состояние ручных статусов.
	RedisKeyOverrides     = RedisNamespace + ":overrides:state"
	RedisKeyLockOverrides = RedisNamespace + ":lock:warmup:overrides"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanOverrides — сигналы "<track_id>:<status>" или "<track_id>:clear".
	RedisChanOverrides = RedisNamespace + ":overrides:signal"
)

// OverrideClearValue — значение сигнала, снимающего ручной статус.
const OverrideClearValue = "clear"

// OverrideSignal собирает payload сигнала для канала RedisChanOverrides.
func OverrideSignal(trackID int64, value string) string {
	return fmt.Sprintf("%d:%s", trackID, value)
}
