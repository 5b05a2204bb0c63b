package detector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/xela07ax/yardwatch/internal/domain"
	"go.uber.org/zap"
)

type MQTTConfig struct {
	Broker   string // tcp://host:1883
	Topic    string
	ClientID string
	QoS      byte
	Buffer   int
}

// MQTT получает JSON-кадры {seq, ts, detections}, которые публикуют
// edge-устройства с детектором на борту. Поток бесконечный: io.EOF не бывает.
type MQTT struct {
	client mqtt.Client
	topic  string
	frames chan domain.Frame
	logger *zap.Logger

	closeOnce sync.Once
	done      chan struct{}
}

func ConnectMQTT(cfg MQTTConfig, logger *zap.Logger) (*MQTT, error) {
	if cfg.Broker == "" || cfg.Topic == "" {
		return nil, errors.New("mqtt broker and topic are required")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "yardd-" + uuid.NewString()[:8]
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := newMQTT(cfg, logger)

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second).
		SetOnConnectHandler(func(c mqtt.Client) {
			// после переподключения подписку нужно восстановить
			if token := c.Subscribe(cfg.Topic, cfg.QoS, m.handle); token.Wait() && token.Error() != nil {
				m.logger.Error("mqtt subscribe failed", zap.String("topic", cfg.Topic), zap.Error(token.Error()))
				return
			}
			m.logger.Info("mqtt subscribed", zap.String("topic", cfg.Topic))
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			m.logger.Warn("mqtt connection lost", zap.Error(err))
		})

	m.client = mqtt.NewClient(opts)
	token := m.client.Connect()
	if !token.WaitTimeout(10*time.Second) || token.Error() != nil {
		m.client.Disconnect(250)
		if token.Error() != nil {
			return nil, fmt.Errorf("failed to connect to MQTT: %w", token.Error())
		}
		return nil, errors.New("failed to connect to MQTT: timeout")
	}
	return m, nil
}

func newMQTT(cfg MQTTConfig, logger *zap.Logger) *MQTT {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}
	return &MQTT{
		topic:  cfg.Topic,
		frames: make(chan domain.Frame, cfg.Buffer),
		logger: logger.With(zap.String("mod", "detector-mqtt")),
		done:   make(chan struct{}),
	}
}

func (m *MQTT) handle(_ mqtt.Client, msg mqtt.Message) {
	m.push(msg.Payload())
}

// push не блокирует клиент paho: при переполнении кадр выбрасывается.
func (m *MQTT) push(payload []byte) {
	var wf wireFrame
	if err := json.Unmarshal(payload, &wf); err != nil {
		m.logger.Warn("invalid frame payload", zap.Int("bytes", len(payload)), zap.Error(err))
		return
	}
	select {
	case <-m.done:
	case m.frames <- wf.frame():
	default:
		m.logger.Warn("frame dropped: consumer is behind", zap.Uint64("seq", wf.Seq))
	}
}

func (m *MQTT) Next(ctx context.Context) (domain.Frame, error) {
	select {
	case <-ctx.Done():
		return domain.Frame{}, ctx.Err()
	case <-m.done:
		return domain.Frame{}, ErrSourceClosed
	case f := <-m.frames:
		return f, nil
	}
}

func (m *MQTT) Close() error {
	m.closeOnce.Do(func() {
		close(m.done)
		if m.client != nil {
			m.client.Unsubscribe(m.topic).WaitTimeout(time.Second)
			m.client.Disconnect(250)
		}
	})
	return nil
}
