package alerts

import "github.com/xela07ax/yardwatch/internal/domain"

const (
	DefaultCapacity    = 200
	DefaultRecentLimit = 50
)

// Log — кольцевой буфер последних алертов в хронологическом порядке.
// Внутренней блокировки нет: пишет и читает только цикл обработки кадров,
// межпоточная видимость обеспечивается снимком.
type Log struct {
	buf   []domain.AlertEvent
	start int // индекс самого старого
	size  int
}

func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{buf: make([]domain.AlertEvent, capacity)}
}

// Append при заполнении вытесняет самый старый алерт (строгий FIFO).
func (l *Log) Append(ev domain.AlertEvent) {
	if l.size == len(l.buf) {
		l.buf[l.start] = ev
		l.start = (l.start + 1) % len(l.buf)
		return
	}
	l.buf[(l.start+l.size)%len(l.buf)] = ev
	l.size++
}

// Recent возвращает n последних алертов, новые первыми.
func (l *Log) Recent(n int) []domain.AlertEvent {
	if n > l.size {
		n = l.size
	}
	if n < 0 {
		n = 0
	}
	out := make([]domain.AlertEvent, 0, n)
	for i := 0; i < n; i++ {
		idx := (l.start + l.size - 1 - i) % len(l.buf)
		out = append(out, l.buf[idx])
	}
	return out
}

func (l *Log) Len() int { return l.size }

func (l *Log) Cap() int { return len(l.buf) }
