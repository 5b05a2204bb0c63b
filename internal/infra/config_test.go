package infra

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/yardwatch/internal/detector"
	"github.com/xela07ax/yardwatch/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600))
	return dir
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 8.0, cfg.Broadcast.RateHz)
	assert.False(t, cfg.Broadcast.PublishInitial)
	assert.Equal(t, 5, cfg.Tracking.SpeedHistory)
	assert.Equal(t, 30*time.Second, cfg.Tracking.StillThreshold())
	assert.Equal(t, domain.Rect{XMin: 0.02, YMin: 0.02, XMax: 0.96, YMax: 0.96}, cfg.Tracking.Geofence)
	assert.Equal(t, []domain.Zone{{X: 0.05, Y: 0.05, W: 0.9, H: 0.9}}, cfg.Tracking.Zones)
	assert.Equal(t, time.Duration(0), cfg.Tracking.TrackTTL)
	assert.Equal(t, detector.DefaultClasses, cfg.Detector.Classes)
	assert.Equal(t, 0.35, cfg.Detector.Confidence)
	assert.Equal(t, "loop", cfg.Detector.OnExhausted)
	assert.Equal(t, 500*time.Millisecond, cfg.Archive.FlushInterval)
	assert.Equal(t, DriverNone, cfg.Database.Driver)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := writeConfig(t, `
tracking:
  move_threshold: 0.02
  geofence: {xmin: 0.1, ymin: 0.1, xmax: 0.9, ymax: 0.9}
  track_ttl: 2m
broadcast:
  rate_hz: 4
  publish_initial: true
detector:
  kind: process
  command: ./detector
  args: ["--model", "yolov8n"]
database:
  driver: sqlite
  path: /tmp/yard.db
`)
	t.Setenv("TRACKING_MOVE_THRESHOLD", "0.01")
	t.Setenv("LOGGER_LEVEL", "debug")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, 0.01, cfg.Tracking.MoveThreshold, "env overrides file")
	assert.Equal(t, domain.Rect{XMin: 0.1, YMin: 0.1, XMax: 0.9, YMax: 0.9}, cfg.Tracking.Geofence)
	assert.Equal(t, 2*time.Minute, cfg.Tracking.TrackTTL)
	assert.Equal(t, 4.0, cfg.Broadcast.RateHz)
	assert.True(t, cfg.Broadcast.PublishInitial)
	assert.Equal(t, detector.KindProcess, cfg.Detector.Kind)
	assert.Equal(t, []string{"--model", "yolov8n"}, cfg.Detector.Args)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "debug", cfg.Logger.Level)
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := map[string]string{
		"inverted geofence": "tracking:\n  geofence: {xmin: 0.9, ymin: 0.1, xmax: 0.1, ymax: 0.9}\n",
		"zero rate":         "broadcast:\n  rate_hz: 0\n",
		"short history":     "tracking:\n  speed_history: 1\n",
		"unknown driver":    "database:\n  driver: mongo\n",
		"postgres no url":   "database:\n  driver: postgres\n",
		"bad exhaust":       "detector:\n  on_exhausted: explode\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestValidate_NoClasses(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	cfg.Detector.Classes = nil
	assert.ErrorIs(t, cfg.Validate(), detector.ErrNoClasses)
}

func TestLoadKeyResource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pub.pem")
	require.NoError(t, os.WriteFile(path, []byte("from-file"), 0o600))

	assert.Equal(t, []byte("from-file"), loadKeyResource(path, "YARD_TEST_KEY_DATA"))

	t.Setenv("YARD_TEST_KEY_DATA", "from-env")
	assert.Equal(t, []byte("from-env"), loadKeyResource(path, "YARD_TEST_KEY_DATA"))

	assert.Nil(t, loadKeyResource("", "YARD_TEST_KEY_MISSING"))
}

func TestNewLogger(t *testing.T) {
	l, err := NewLogger(LoggerConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, l)

	_, err = NewLogger(LoggerConfig{Level: "loud"})
	assert.Error(t, err)
}
