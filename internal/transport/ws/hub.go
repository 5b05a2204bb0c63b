package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/xela07ax/yardwatch/internal/engine"
	"github.com/xela07ax/yardwatch/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const TransportName = "ws"

type Config struct {
	WriteTimeout time.Duration
	QueueSize    int
	MaxDropped   int
	CommandRate  float64 // команд в секунду на соединение
	CommandBurst int
	ReadLimit    int64
	PingInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		WriteTimeout: 5 * time.Second,
		QueueSize:    engine.DefaultQueueSize,
		MaxDropped:   engine.DefaultMaxDropped,
		CommandRate:  5,
		CommandBurst: 10,
		ReadLimit:    4096,
		PingInterval: 30 * time.Second,
	}
}

// Hub принимает WebSocket-подписчиков и регистрирует их в Broadcaster.
// Подписчики не аутентифицируются.
type Hub struct {
	cfg       Config
	bcast     *engine.Broadcaster
	overrides transport.OverrideApplier
	metrics   *engine.Metrics
	logger    *zap.Logger
	upgrader  websocket.Upgrader
}

func NewHub(cfg Config, bcast *engine.Broadcaster, overrides transport.OverrideApplier, metrics *engine.Metrics, logger *zap.Logger) *Hub {
	def := DefaultConfig()
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.CommandRate <= 0 {
		cfg.CommandRate = def.CommandRate
	}
	if cfg.CommandBurst <= 0 {
		cfg.CommandBurst = def.CommandBurst
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = def.ReadLimit
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if metrics == nil {
		metrics = engine.NewMetrics(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		cfg:       cfg,
		bcast:     bcast,
		overrides: overrides,
		metrics:   metrics,
		logger:    logger.Named("ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 16 * 1024,
			// дашборд открывается с любого origin
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP держит соединение до отключения клиента или его вытеснения.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		hub:  h,
		queue: engine.NewSubscriberQueue(h.cfg.QueueSize, h.cfg.MaxDropped, func() {
			h.metrics.DroppedPayloads.WithLabelValues(TransportName).Inc()
		}),
		limiter: rate.NewLimiter(rate.Limit(h.cfg.CommandRate), h.cfg.CommandBurst),
		remote:  r.RemoteAddr,
	}

	h.bcast.Register(c)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop()
	}()

	c.readLoop(r.Context())

	h.bcast.Unregister(c.id)
	c.queue.Close()
	<-writerDone
	conn.Close()
}

type client struct {
	id      string
	conn    *websocket.Conn
	hub     *Hub
	queue   *engine.SubscriberQueue
	limiter *rate.Limiter
	remote  string
}

func (c *client) ID() string        { return c.id }
func (c *client) Transport() string { return TransportName }

// Deliver только ставит payload в очередь.
func (c *client) Deliver(payload []byte) error { return c.queue.Offer(payload) }

func (c *client) Close() { c.queue.Close() }

func (c *client) writeLoop() {
	ping := time.NewTicker(c.hub.cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-c.queue.Done():
			deadline := time.Now().Add(c.hub.cfg.WriteTimeout)
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye"), deadline)
			// разблокирует readLoop
			c.conn.Close()
			return
		case payload := <-c.queue.C():
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.hub.logger.Info("websocket write failed", zap.String("subscriber", c.id), zap.Error(err))
				c.queue.Close()
				c.conn.Close()
				return
			}
		case <-ping.C:
			deadline := time.Now().Add(c.hub.cfg.WriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.queue.Close()
				c.conn.Close()
				return
			}
		}
	}
}

func (c *client) readLoop(ctx context.Context) {
	pongWait := 2 * c.hub.cfg.PingInterval
	c.conn.SetReadLimit(c.hub.cfg.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// запрос уже завершен с точки зрения HTTP; команды живут дольше
	cmdCtx := context.WithoutCancel(ctx)

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && !c.queue.Closed() {
				c.hub.logger.Info("websocket closed unexpectedly", zap.String("subscriber", c.id), zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		if !c.limiter.Allow() {
			c.hub.logger.Debug("command rate limited", zap.String("subscriber", c.id))
			continue
		}
		c.handleCommand(cmdCtx, msg)
	}
}

// handleCommand никогда не закрывает соединение: неверная команда только логируется.
func (c *client) handleCommand(ctx context.Context, msg []byte) {
	if c.hub.overrides == nil {
		return
	}
	cmd, err := transport.ParseCommand(msg)
	if err != nil {
		level := c.hub.logger.Debug
		if !errors.Is(err, transport.ErrUnknownCommand) {
			level = c.hub.logger.Info
		}
		level("command ignored", zap.String("subscriber", c.id), zap.Error(err))
		return
	}
	if err := transport.Execute(ctx, c.hub.overrides, cmd, "ws:"+c.remote); err != nil {
		c.hub.logger.Warn("command failed", zap.String("subscriber", c.id), zap.Int64("track_id", cmd.TrackID), zap.Error(err))
		return
	}
	c.hub.logger.Info("override command applied",
		zap.String("subscriber", c.id), zap.String("type", cmd.Type), zap.Int64("track_id", cmd.TrackID), zap.String("status", cmd.Status))
}
