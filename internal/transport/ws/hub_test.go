package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/yardwatch/internal/domain"
	"github.com/xela07ax/yardwatch/internal/engine"
)

type fixture struct {
	store     *engine.SnapshotStore
	bcast     *engine.Broadcaster
	overrides *engine.OverrideManager
	srv       *httptest.Server
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	store := engine.NewSnapshotStore()
	bcast := engine.NewBroadcaster(engine.BroadcasterConfig{RateHz: 8}, store, nil, nil)
	overrides := engine.NewOverrideManager(nil, nil, nil)
	hub := NewHub(cfg, bcast, overrides, nil, nil)

	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)
	return &fixture{store: store, bcast: bcast, overrides: overrides, srv: srv}
}

func (f *fixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_DeliversSnapshotEnvelope(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	conn := f.dial(t)
	require.Eventually(t, func() bool { return f.bcast.Count() == 1 }, time.Second, 5*time.Millisecond)

	snap := domain.EmptySnapshot([]domain.Zone{{X: 0.05, Y: 0.05, W: 0.9, H: 0.9}})
	snap.Motos = []domain.MotoView{{ID: 7, Status: domain.StatusInUse, Confidence: 0.9, CenterX: 0.5, CenterY: 0.5}}
	snap.Totals = domain.StatusTotals{EmUso: 1, Total: 1}
	f.store.Store(snap)

	n, err := f.bcast.Tick()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	typ, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, typ)

	var msg domain.SnapshotMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, domain.MessageTypeSnapshot, msg.Type)
	require.Len(t, msg.Payload.Motos, 1)
	assert.Equal(t, int64(7), msg.Payload.Motos[0].ID)
	assert.Equal(t, 1, msg.Payload.Totals.Total)
}

func TestHub_AppliesCommands(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	conn := f.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("what is this")))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"set_status","track_id":7,"status":"manutencao"}`)))

	require.Eventually(t, func() bool {
		st, ok := f.overrides.Get(7)
		return ok && st == domain.StatusMaintenance
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("clear 7")))
	require.Eventually(t, func() bool {
		_, ok := f.overrides.Get(7)
		return !ok
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, f.bcast.Count(), "bad commands must not drop the connection")
}

func TestHub_CommandsAreRateLimited(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CommandRate = 0.001
	cfg.CommandBurst = 1
	f := newFixture(t, cfg)
	conn := f.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("status 1 parada")))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("status 2 parada")))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("status 3 parada")))

	require.Eventually(t, func() bool { return f.overrides.Len() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, f.overrides.Len())
	_, ok := f.overrides.Get(1)
	assert.True(t, ok)
}

func TestHub_ClientDisconnectUnregisters(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	conn := f.dial(t)
	require.Eventually(t, func() bool { return f.bcast.Count() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()

	assert.Eventually(t, func() bool { return f.bcast.Count() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestHub_PrunedSubscriberIsDisconnected(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	conn := f.dial(t)
	require.Eventually(t, func() bool { return f.bcast.Count() == 1 }, time.Second, 5*time.Millisecond)

	f.bcast.Shutdown()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}
