package tracking

import (
	"math"
	"time"

	"github.com/xela07ax/yardwatch/internal/domain"
	"gonum.org/v1/gonum/stat"
)

const DefaultSpeedHistory = 5

// trackState принадлежит только MotionStore, больше никто историю не меняет.
type trackState struct {
	centers  []domain.Point // FIFO, старые в начале
	lastSeen time.Time
}

// MotionStore хранит ограниченную историю центров по каждому треку.
// Не потокобезопасен: пишет только цикл обработки кадров.
type MotionStore struct {
	capacity int
	tracks   map[int64]*trackState
}

func NewMotionStore(capacity int) *MotionStore {
	if capacity < 2 {
		capacity = DefaultSpeedHistory
	}
	return &MotionStore{
		capacity: capacity,
		tracks:   make(map[int64]*trackState),
	}
}

// Record добавляет точку, при заполнении вытесняя самую старую.
func (m *MotionStore) Record(trackID int64, p domain.Point, now time.Time) {
	st, ok := m.tracks[trackID]
	if !ok {
		st = &trackState{centers: make([]domain.Point, 0, m.capacity)}
		m.tracks[trackID] = st
	}
	if len(st.centers) == m.capacity {
		copy(st.centers, st.centers[1:])
		st.centers = st.centers[:m.capacity-1]
	}
	st.centers = append(st.centers, p)
	st.lastSeen = now
}

// Speed — среднее евклидово смещение между соседними точками истории.
// Меньше двух точек — строго 0.
func (m *MotionStore) Speed(trackID int64) float64 {
	st, ok := m.tracks[trackID]
	if !ok || len(st.centers) < 2 {
		return 0
	}
	dists := make([]float64, 0, len(st.centers)-1)
	for i := 1; i < len(st.centers); i++ {
		a, b := st.centers[i-1], st.centers[i]
		dists = append(dists, math.Hypot(b.X-a.X, b.Y-a.Y))
	}
	return stat.Mean(dists, nil)
}

// History возвращает копию истории, старые точки первыми.
func (m *MotionStore) History(trackID int64) []domain.Point {
	st, ok := m.tracks[trackID]
	if !ok {
		return nil
	}
	out := make([]domain.Point, len(st.centers))
	copy(out, st.centers)
	return out
}

func (m *MotionStore) Len() int { return len(m.tracks) }

func (m *MotionStore) Capacity() int { return m.capacity }

// Stale — треки, не встречавшиеся дольше ttl.
func (m *MotionStore) Stale(now time.Time, ttl time.Duration) []int64 {
	var ids []int64
	for id, st := range m.tracks {
		if now.Sub(st.lastSeen) >= ttl {
			ids = append(ids, id)
		}
	}
	return ids
}

func (m *MotionStore) Forget(ids ...int64) {
	for _, id := range ids {
		delete(m.tracks, id)
	}
}
