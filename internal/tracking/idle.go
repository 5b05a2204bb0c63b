package tracking

import "time"

// IdleTracker помнит, когда трек последний раз двигался.
// Исчезнувшие треки остаются в карте, пока не включена политика вытеснения
// (tracking.track_ttl) — это известное ограничение.
type IdleTracker struct {
	lastMoved map[int64]time.Time
}

func NewIdleTracker() *IdleTracker {
	return &IdleTracker{lastMoved: make(map[int64]time.Time)}
}

// MarkMoved сбрасывает таймер простоя.
func (t *IdleTracker) MarkMoved(trackID int64, now time.Time) {
	t.lastMoved[trackID] = now
}

// Touch инициализирует таймер при первом наблюдении стоящего трека.
func (t *IdleTracker) Touch(trackID int64, now time.Time) {
	if _, ok := t.lastMoved[trackID]; !ok {
		t.lastMoved[trackID] = now
	}
}

// Elapsed — сколько трек стоит; false, если таймер еще не заведен.
func (t *IdleTracker) Elapsed(trackID int64, now time.Time) (time.Duration, bool) {
	ts, ok := t.lastMoved[trackID]
	if !ok {
		return 0, false
	}
	return now.Sub(ts), true
}

func (t *IdleTracker) LastMoved(trackID int64) (time.Time, bool) {
	ts, ok := t.lastMoved[trackID]
	return ts, ok
}

func (t *IdleTracker) Len() int { return len(t.lastMoved) }

func (t *IdleTracker) Forget(ids ...int64) {
	for _, id := range ids {
		delete(t.lastMoved, id)
	}
}
