package domain

import (
	"errors"
	"time"
)

// ErrNotFound возвращают репозитории, когда записи нет.
var ErrNotFound = errors.New("not found")

// Override — ручной статус трека, живет до явного снятия.
type Override struct {
	TrackID   int64     `json:"track_id"`
	Status    Status    `json:"status"`
	UpdatedBy string    `json:"updated_by,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
