package engine

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/yardwatch/internal/domain"
)

type fakeSubscriber struct {
	id     string
	mu     sync.Mutex
	got    [][]byte
	fail   error
	closed bool
}

func (f *fakeSubscriber) ID() string        { return f.id }
func (f *fakeSubscriber) Transport() string { return "test" }

func (f *fakeSubscriber) Deliver(p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.got = append(f.got, p)
	return nil
}

func (f *fakeSubscriber) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeSubscriber) received() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.got
}

func storeWithSnapshot(t *testing.T) *SnapshotStore {
	t.Helper()
	store := NewSnapshotStore()
	snap := domain.EmptySnapshot([]domain.Zone{{X: 0.05, Y: 0.05, W: 0.9, H: 0.9}})
	snap.Motos = append(snap.Motos, domain.MotoView{ID: 7, Status: domain.StatusStopped})
	snap.Totals = domain.StatusTotals{Parada: 1, Total: 1}
	store.Store(snap)
	return store
}

func TestBroadcaster_NoSnapshotIsNoop(t *testing.T) {
	b := NewBroadcaster(BroadcasterConfig{RateHz: 8}, NewSnapshotStore(), nil, nil)
	sub := &fakeSubscriber{id: "a"}
	b.Register(sub)

	n, err := b.Tick()
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, sub.received())
}

func TestBroadcaster_ZeroSubscribers(t *testing.T) {
	b := NewBroadcaster(BroadcasterConfig{}, storeWithSnapshot(t), nil, nil)

	for i := 0; i < 100; i++ {
		n, err := b.Tick()
		require.NoError(t, err)
		assert.Zero(t, n)
	}
	assert.Zero(t, b.Count())
	assert.Equal(t, DefaultBroadcastRate, float64(1e9)/float64(b.Period()))
}

func TestBroadcaster_SamePayloadForEverySubscriber(t *testing.T) {
	b := NewBroadcaster(BroadcasterConfig{RateHz: 8}, storeWithSnapshot(t), nil, nil)
	a, c := &fakeSubscriber{id: "a"}, &fakeSubscriber{id: "c"}
	b.Register(a)
	b.Register(c)

	n, err := b.Tick()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, a.received(), 1)
	require.Len(t, c.received(), 1)
	assert.Equal(t, a.received()[0], c.received()[0])

	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(a.received()[0], &msg))
	assert.Equal(t, "snapshot", msg.Type)
	assert.JSONEq(t, `{
		"motos":[{"id":7,"status":"parada","conf":0,"cx":0,"cy":0,"area":0,"note":""}],
		"alerts":[],
		"totals":{"em_uso":0,"parada":1,"manutencao":0,"fora_da_area":0,"total":1},
		"zones":[{"x":0.05,"y":0.05,"w":0.9,"h":0.9}]
	}`, string(msg.Payload))
}

func TestBroadcaster_PrunesFailedSubscriberAfterPass(t *testing.T) {
	store := storeWithSnapshot(t)
	b := NewBroadcaster(BroadcasterConfig{RateHz: 8}, store, nil, nil)

	good1 := &fakeSubscriber{id: "good1"}
	bad := &fakeSubscriber{id: "bad", fail: ErrSubscriberClosed}
	good2 := &fakeSubscriber{id: "good2"}
	for _, s := range []*fakeSubscriber{good1, bad, good2} {
		b.Register(s)
	}

	n, err := b.Tick()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, b.Count())
	assert.True(t, bad.closed)

	store.Store(domain.EmptySnapshot(nil))
	n, err = b.Tick()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, good1.received(), 2)
	assert.Len(t, good2.received(), 2)
	assert.NotEqual(t, good1.received()[0], good1.received()[1])
}

func TestBroadcaster_UnregisterAndShutdown(t *testing.T) {
	b := NewBroadcaster(BroadcasterConfig{}, storeWithSnapshot(t), nil, nil)
	a, c := &fakeSubscriber{id: "a"}, &fakeSubscriber{id: "c"}
	b.Register(a)
	b.Register(c)

	assert.True(t, b.Unregister("a"))
	assert.False(t, b.Unregister("a"))
	assert.Equal(t, 1, b.Count())

	b.Shutdown()
	assert.Zero(t, b.Count())
	assert.True(t, c.closed)
	assert.False(t, a.closed)
}

func TestSnapshotStore(t *testing.T) {
	s := NewSnapshotStore()
	_, seq, ok := s.Load()
	assert.False(t, ok)
	assert.Zero(t, seq)

	assert.Equal(t, uint64(1), s.Store(domain.EmptySnapshot(nil)))
	snap := domain.EmptySnapshot(nil)
	snap.Totals.Total = 3
	assert.Equal(t, uint64(2), s.Store(snap))

	got, seq, ok := s.Load()
	require.True(t, ok)
	assert.Equal(t, uint64(2), seq)
	assert.Equal(t, 3, got.Totals.Total)
}

func TestSubscriberQueue(t *testing.T) {
	drops := 0
	q := NewSubscriberQueue(1, 3, func() { drops++ })

	require.NoError(t, q.Offer([]byte("a")))
	require.NoError(t, q.Offer([]byte("b")))
	require.NoError(t, q.Offer([]byte("c")))
	err := q.Offer([]byte("d"))
	assert.True(t, errors.Is(err, ErrSubscriberStalled))
	assert.Equal(t, 3, drops)

	assert.Equal(t, []byte("a"), <-q.C())
	require.NoError(t, q.Offer([]byte("e")))

	q.Close()
	q.Close()
	assert.True(t, q.Closed())
	assert.ErrorIs(t, q.Offer([]byte("f")), ErrSubscriberClosed)
}
