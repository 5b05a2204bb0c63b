package detector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xela07ax/yardwatch/internal/domain"
	"go.uber.org/zap"
)

var (
	ErrNoClasses     = errors.New("no detection classes configured")
	ErrNotRewindable = errors.New("source cannot be rewound")
	ErrUnknownKind   = errors.New("unknown detector kind")
	ErrSourceClosed  = errors.New("source closed")
	ErrFrameTooLarge = errors.New("frame exceeds size limit")
)

const (
	KindReplay    = "replay"
	KindProcess   = "process"
	KindMQTT      = "mqtt"
	KindSimulated = "simulated"
)

// Source — поток пачек детекций. io.EOF — штатный конец потока.
type Source interface {
	Next(ctx context.Context) (domain.Frame, error)
	Close() error
}

type Config struct {
	Kind       string   `mapstructure:"kind"`
	Path       string   `mapstructure:"path"`
	FPS        float64  `mapstructure:"fps"`
	Command    string   `mapstructure:"command"`
	Args       []string `mapstructure:"args"`
	Confidence float64  `mapstructure:"confidence"`
	Classes    []string `mapstructure:"classes"`

	OnExhausted string `mapstructure:"on_exhausted"`

	MQTTBroker   string `mapstructure:"mqtt_broker"`
	MQTTTopic    string `mapstructure:"mqtt_topic"`
	MQTTClientID string `mapstructure:"mqtt_client_id"`

	SimTracks int    `mapstructure:"sim_tracks"`
	SimFrames int    `mapstructure:"sim_frames"`
	SimSeed   uint64 `mapstructure:"sim_seed"`
}

const DefaultConfidence = 0.35

// DefaultClasses — имена классов мотоцикла в COCO-подобных моделях.
var DefaultClasses = []string{"motorcycle", "motorbike"}

// wireFrame — кадр в том виде, в каком его присылают внешние детекторы
// (MessagePack по stdout или JSON по MQTT).
type wireFrame struct {
	Seq        uint64             `json:"seq" msgpack:"seq"`
	TsMs       int64              `json:"ts" msgpack:"ts"`
	Detections []domain.Detection `json:"detections" msgpack:"detections"`
}

func (w wireFrame) frame() domain.Frame {
	f := domain.Frame{Seq: w.Seq, Detections: w.Detections}
	if w.TsMs > 0 {
		f.At = time.UnixMilli(w.TsMs)
	}
	return f
}

// Open собирает источник по конфигу и оборачивает его фильтром классов.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (Source, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.Classes) == 0 {
		return nil, ErrNoClasses
	}

	var (
		src Source
		err error
	)
	switch strings.ToLower(cfg.Kind) {
	case KindReplay:
		src, err = OpenReplay(cfg.Path, cfg.FPS)
	case KindProcess:
		src, err = StartProcess(ctx, cfg.Command, cfg.Args, logger)
	case KindMQTT:
		src, err = ConnectMQTT(MQTTConfig{Broker: cfg.MQTTBroker, Topic: cfg.MQTTTopic, ClientID: cfg.MQTTClientID}, logger)
	case KindSimulated:
		src = NewSimulator(SimulatorConfig{Tracks: cfg.SimTracks, FPS: cfg.FPS, Frames: cfg.SimFrames, Seed: cfg.SimSeed})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s source: %w", cfg.Kind, err)
	}

	return NewFilter(src, cfg.Classes, cfg.Confidence)
}
