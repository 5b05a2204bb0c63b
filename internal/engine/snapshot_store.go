package engine

import (
	"sync"

	"github.com/xela07ax/yardwatch/internal/domain"
)

// SnapshotStore хранит последний опубликованный снимок. Писатель один
// (цикл кадров), читателей сколько угодно; блокировка держится только на
// время подмены значения.
type SnapshotStore struct {
	mu   sync.RWMutex
	snap domain.Snapshot
	seq  uint64
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{}
}

// Store публикует снимок целиком и возвращает его порядковый номер (с 1).
// После публикации снимок не изменяется.
func (s *SnapshotStore) Store(snap domain.Snapshot) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
	s.seq++
	return s.seq
}

// Load возвращает false, пока не было ни одной публикации.
func (s *SnapshotStore) Load() (domain.Snapshot, uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap, s.seq, s.seq > 0
}
