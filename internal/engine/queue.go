package engine

import (
	"sync"
	"sync/atomic"
)

const (
	DefaultQueueSize  = 4
	DefaultMaxDropped = 40
)

// SubscriberQueue — ограниченная исходящая очередь одного подписчика.
// Если очередь полна, payload выбрасывается: медленный клиент получит
// следующий снимок, а не старый. Подряд выброшенные payload'ы считаются,
// после maxDropped подписчик признается зависшим.
type SubscriberQueue struct {
	ch         chan []byte
	done       chan struct{}
	closeOnce  sync.Once
	maxDropped int32
	dropped    atomic.Int32
	onDrop     func()
}

func NewSubscriberQueue(size, maxDropped int, onDrop func()) *SubscriberQueue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if onDrop == nil {
		onDrop = func() {}
	}
	return &SubscriberQueue{
		ch:         make(chan []byte, size),
		done:       make(chan struct{}),
		maxDropped: int32(maxDropped),
		onDrop:     onDrop,
	}
}

// Offer никогда не блокируется.
func (q *SubscriberQueue) Offer(payload []byte) error {
	select {
	case <-q.done:
		return ErrSubscriberClosed
	default:
	}

	select {
	case q.ch <- payload:
		q.dropped.Store(0)
		return nil
	default:
		n := q.dropped.Add(1)
		q.onDrop()
		if q.maxDropped > 0 && n >= q.maxDropped {
			return ErrSubscriberStalled
		}
		return nil
	}
}

// C — канал для писателя транспорта. Никогда не закрывается, конец
// очереди сигнализирует Done.
func (q *SubscriberQueue) C() <-chan []byte { return q.ch }

func (q *SubscriberQueue) Done() <-chan struct{} { return q.done }

func (q *SubscriberQueue) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}

func (q *SubscriberQueue) Closed() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}
