package domain

import "time"

type AlertLevel string

const (
	AlertLow    AlertLevel = "low"
	AlertMedium AlertLevel = "medium"
	AlertHigh   AlertLevel = "high"
)

// AlertEvent неизменяем после создания. Ключи JSON совпадают с тем, что ждет дашборд.
type AlertEvent struct {
	Level       AlertLevel `json:"level"`
	Title       string     `json:"title"`
	Description string     `json:"desc"`
	TimestampMs int64      `json:"ts"`

	// TrackID нужен архиву, в снимок не сериализуется
	TrackID int64 `json:"-"`
}

// AlertRecord — архивная форма алерта (Postgres / SQLite).
type AlertRecord struct {
	ID          string     `json:"id"`
	TrackID     int64      `json:"track_id"`
	Level       AlertLevel `json:"level"`
	Title       string     `json:"title"`
	Description string     `json:"desc"`
	CreatedAt   time.Time  `json:"created_at"`
}

// AlertFilter — фильтр выборки архива из консоли.
type AlertFilter struct {
	Level   AlertLevel
	TrackID *int64
	Limit   int
}
