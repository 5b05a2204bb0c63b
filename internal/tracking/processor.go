package tracking

import (
	"fmt"
	"math"
	"time"

	"github.com/xela07ax/yardwatch/internal/alerts"
	"github.com/xela07ax/yardwatch/internal/domain"
	"go.uber.org/zap"
)

// SyntheticIDBase — основа для ID детекций без трека. Такие ID привязаны к
// позиции в пачке и между кадрами не стабильны.
const SyntheticIDBase int64 = -1_000_000

// OverrideLookup — доступ к ручным статусам только на чтение.
type OverrideLookup interface {
	Get(trackID int64) (domain.Status, bool)
}

// AlertSink получает каждый новый алерт. Реализации не должны блокировать.
type AlertSink interface {
	Log(ev domain.AlertEvent)
}

// DefaultGeofence — границы двора (xmin, ymin, xmax, ymax).
var DefaultGeofence = domain.Rect{XMin: 0.02, YMin: 0.02, XMax: 0.96, YMax: 0.96}

type Config struct {
	Classifier     ClassifierConfig
	SpeedHistory   int
	Geofence       domain.Rect
	Zones          []domain.Zone
	AlertCapacity  int
	SnapshotAlerts int
	TrackTTL       time.Duration // 0 — треки не вытесняются
}

func DefaultConfig() Config {
	return Config{
		Classifier:     DefaultClassifierConfig(),
		SpeedHistory:   DefaultSpeedHistory,
		Geofence:       DefaultGeofence,
		Zones:          []domain.Zone{{X: 0.05, Y: 0.05, W: 0.9, H: 0.9}},
		AlertCapacity:  alerts.DefaultCapacity,
		SnapshotAlerts: alerts.DefaultRecentLimit,
	}
}

// FrameProcessor прогоняет пачку детекций через историю движения,
// классификатор и журнал алертов и собирает один неизменяемый Snapshot.
// Вызывается из одного цикла, состояние треков принадлежит ему целиком.
type FrameProcessor struct {
	cfg       Config
	motion    *MotionStore
	idle      *IdleTracker
	log       *alerts.Log
	overrides OverrideLookup
	sinks     []AlertSink
	zones     []domain.Zone
	logger    *zap.Logger
}

func NewFrameProcessor(cfg Config, overrides OverrideLookup, logger *zap.Logger, sinks ...AlertSink) *FrameProcessor {
	if cfg.SnapshotAlerts <= 0 {
		cfg.SnapshotAlerts = alerts.DefaultRecentLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	zones := make([]domain.Zone, len(cfg.Zones))
	copy(zones, cfg.Zones)

	return &FrameProcessor{
		cfg:       cfg,
		motion:    NewMotionStore(cfg.SpeedHistory),
		idle:      NewIdleTracker(),
		log:       alerts.NewLog(cfg.AlertCapacity),
		overrides: overrides,
		sinks:     sinks,
		zones:     zones,
		logger:    logger.Named("processor"),
	}
}

// Process никогда не прерывает кадр из-за одной битой детекции.
func (p *FrameProcessor) Process(dets []domain.Detection, now time.Time) domain.Snapshot {
	motos := make([]domain.MotoView, 0, len(dets))
	var totals domain.StatusTotals
	nowMs := now.UnixMilli()

	for i, det := range dets {
		trackID := SyntheticIDBase + int64(i)
		if det.TrackID != nil {
			trackID = *det.TrackID
		}

		if !finiteBBox(det.BBox) {
			p.logger.Debug("detection geometry sanitized", zap.Int64("track_id", trackID), zap.Float64s("bbox", det.BBox[:]))
		}
		center := det.Center()
		conf := det.SafeConfidence()
		inside := p.cfg.Geofence.Contains(center)

		p.motion.Record(trackID, center, now)
		speed := p.motion.Speed(trackID)

		in := ClassifyInput{
			TrackID:    trackID,
			Speed:      speed,
			Confidence: conf,
			Center:     center,
			Inside:     inside,
			Now:        now,
		}
		if p.overrides != nil {
			in.Override, in.HasOverride = p.overrides.Get(trackID)
		}
		res := Classify(in, p.cfg.Classifier, p.idle)

		totals.Add(res.Status)

		if res.LowConfidence {
			p.emit(domain.AlertEvent{
				Level:       domain.AlertMedium,
				Title:       fmt.Sprintf("Confiança baixa em #%d", trackID),
				Description: fmt.Sprintf("conf=%.2f", conf),
				TimestampMs: nowMs,
				TrackID:     trackID,
			})
		}
		if !inside {
			p.emit(domain.AlertEvent{
				Level:       domain.AlertHigh,
				Title:       fmt.Sprintf("Moto #%d fora da área", trackID),
				Description: fmt.Sprintf("Posição %.2f,%.2f", center.X, center.Y),
				TimestampMs: nowMs,
				TrackID:     trackID,
			})
		}
		if res.Note != "" {
			p.emit(domain.AlertEvent{
				Level:       domain.AlertMedium,
				Title:       fmt.Sprintf("Moto #%d ociosa", trackID),
				Description: res.Note,
				TimestampMs: nowMs,
				TrackID:     trackID,
			})
		}

		motos = append(motos, domain.MotoView{
			ID:         trackID,
			Status:     res.Status,
			Confidence: conf,
			CenterX:    center.X,
			CenterY:    center.Y,
			Area:       det.Area(),
			Note:       res.Note,
		})
	}
	totals.Total = len(motos)

	if p.cfg.TrackTTL > 0 {
		p.evict(now)
	}

	return domain.Snapshot{
		Motos:  motos,
		Alerts: p.log.Recent(p.cfg.SnapshotAlerts),
		Totals: totals,
		Zones:  p.zones,
	}
}

func (p *FrameProcessor) emit(ev domain.AlertEvent) {
	p.log.Append(ev)
	for _, s := range p.sinks {
		s.Log(ev)
	}
}

func (p *FrameProcessor) evict(now time.Time) {
	stale := p.motion.Stale(now, p.cfg.TrackTTL)
	if len(stale) == 0 {
		return
	}
	p.motion.Forget(stale...)
	p.idle.Forget(stale...)
	p.logger.Debug("stale tracks evicted", zap.Int("count", len(stale)))
}

// TrackCount — число треков, для которых хранится история.
func (p *FrameProcessor) TrackCount() int { return p.motion.Len() }

// IdleCount — число треков с заведенным таймером простоя.
func (p *FrameProcessor) IdleCount() int { return p.idle.Len() }

// AlertCount — текущий размер журнала алертов.
func (p *FrameProcessor) AlertCount() int { return p.log.Len() }

func finiteBBox(b [4]float64) bool {
	for _, v := range b {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
