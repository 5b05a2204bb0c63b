package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/xela07ax/yardwatch/internal/domain"
)

type Metrics struct {
	// Latency: сколько занял один кадр в FrameProcessor
	FrameDuration prometheus.Histogram

	// Traffic: кадры и детекции после фильтра классов
	FramesProcessed prometheus.Counter
	Detections      prometheus.Counter

	// Состояние двора по последнему кадру
	TracksByStatus *prometheus.GaugeVec

	AlertsTotal *prometheus.CounterVec

	// Broadcast
	BroadcastTicks   prometheus.Counter
	PayloadBytes     prometheus.Gauge
	Subscribers      prometheus.Gauge
	DeliveryFailures *prometheus.CounterVec
	DroppedPayloads  *prometheus.CounterVec

	// Archive: заполненность буфера (backpressure)
	ArchiveBufferFill prometheus.Gauge

	SourceRestarts prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		FrameDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "yard_frame_processing_seconds",
			Help:    "Histogram of per-frame processing latencies.",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		}),
		FramesProcessed: f.NewCounter(prometheus.CounterOpts{
			Name: "yard_frames_processed_total",
			Help: "Total number of detection batches processed.",
		}),
		Detections: f.NewCounter(prometheus.CounterOpts{
			Name: "yard_detections_total",
			Help: "Total number of detections fed to the tracker.",
		}),
		TracksByStatus: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "yard_tracks_by_status",
			Help: "Tracked vehicles per status in the latest snapshot.",
		}, []string{"status"}),
		AlertsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "yard_alerts_total",
			Help: "Total number of alerts raised by level.",
		}, []string{"level"}),
		BroadcastTicks: f.NewCounter(prometheus.CounterOpts{
			Name: "yard_broadcast_ticks_total",
			Help: "Total number of broadcaster ticks that delivered a snapshot.",
		}),
		PayloadBytes: f.NewGauge(prometheus.GaugeOpts{
			Name: "yard_broadcast_payload_bytes",
			Help: "Size of the last serialized snapshot message.",
		}),
		Subscribers: f.NewGauge(prometheus.GaugeOpts{
			Name: "yard_subscribers",
			Help: "Currently registered subscribers.",
		}),
		DeliveryFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "yard_delivery_failures_total",
			Help: "Subscribers pruned after a failed delivery.",
		}, []string{"transport"}),
		DroppedPayloads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "yard_dropped_payloads_total",
			Help: "Payloads dropped because a subscriber queue was full.",
		}, []string{"transport"}), // типы: ws, grpc
		ArchiveBufferFill: f.NewGauge(prometheus.GaugeOpts{
			Name: "yard_archive_buffer_utilization",
			Help: "Current number of alerts waiting in the archive buffer.",
		}),
		SourceRestarts: f.NewCounter(prometheus.CounterOpts{
			Name: "yard_source_restarts_total",
			Help: "Detection source rewinds after end of stream.",
		}),
	}
}

// ObserveSnapshot выставляет gauge по статусам.
func (m *Metrics) ObserveSnapshot(s domain.Snapshot) {
	for _, st := range domain.AllStatuses {
		m.TracksByStatus.WithLabelValues(string(st)).Set(float64(s.Totals.Count(st)))
	}
}

// Log делает Metrics приемником алертов для FrameProcessor.
func (m *Metrics) Log(ev domain.AlertEvent) {
	m.AlertsTotal.WithLabelValues(string(ev.Level)).Inc()
}
