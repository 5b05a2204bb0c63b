package main

import (
	"strconv"

	"github.com/xela07ax/yardwatch/internal/alerts"
	"github.com/xela07ax/yardwatch/internal/infra"
	"github.com/xela07ax/yardwatch/internal/tracking"
)

func processorConfig(t infra.TrackingConfig) tracking.Config {
	return tracking.Config{
		Classifier: tracking.ClassifierConfig{
			MoveThreshold:  t.MoveThreshold,
			StillThreshold: t.StillThreshold(),
			LowConfidence:  t.LowConfidence,
		},
		SpeedHistory:   t.SpeedHistory,
		Geofence:       t.Geofence,
		Zones:          t.Zones,
		AlertCapacity:  t.AlertCapacity,
		SnapshotAlerts: t.SnapshotAlerts,
		TrackTTL:       t.TrackTTL,
	}
}

func reliabilityConfig(a infra.ArchiveConfig) alerts.ReliabilityConfig {
	rc := alerts.DefaultReliabilityConfig()
	if a.MaxFailures > 0 {
		rc.MaxFailures = a.MaxFailures
	}
	if a.BreakerTimeout > 0 {
		rc.Timeout = a.BreakerTimeout
	}
	if a.Attempts > 0 {
		rc.Attempts = a.Attempts
	}
	if a.CallTimeout > 0 {
		rc.CallTimeout = a.CallTimeout
	}
	return rc
}

func formatSeq(seq uint64) string { return strconv.FormatUint(seq, 10) }
