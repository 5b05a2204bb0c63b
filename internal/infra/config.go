package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/xela07ax/yardwatch/internal/alerts"
	"github.com/xela07ax/yardwatch/internal/detector"
	"github.com/xela07ax/yardwatch/internal/domain"
)

const (
	DriverNone     = "none"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config — корневая структура конфигурации yardd и консоли.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Console   ServerConfig    `mapstructure:"console"`
	GRPC      GRPCConfig      `mapstructure:"grpc"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Tracking  TrackingConfig  `mapstructure:"tracking"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
	Transport TransportConfig `mapstructure:"transport"`
	Detector  DetectorConfig  `mapstructure:"detector"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Logger    LoggerConfig    `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type GRPCConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// DatabaseConfig: driver none отключает архив и персистентность статусов.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	URL      string `mapstructure:"url"`  // postgres
	Path     string `mapstructure:"path"` // sqlite
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
	Migrate  bool   `mapstructure:"migrate"`
}

// RedisConfig: пустой addr — работаем одним экземпляром без Pub/Sub.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig содержит пути к RSA ключам и настройки JWT.
type AuthConfig struct {
	PublicKeyPath  string        `mapstructure:"public_key_path"`
	PrivateKeyPath string        `mapstructure:"private_key_path"` // Только для консоли
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	BcryptCost     int           `mapstructure:"bcrypt_cost"`
	PublicKey      []byte
	PrivateKey     []byte
}

type TrackingConfig struct {
	SpeedHistory   int           `mapstructure:"speed_history"`
	MoveThreshold  float64       `mapstructure:"move_threshold"`
	StillSeconds   float64       `mapstructure:"still_seconds"`
	LowConfidence  float64       `mapstructure:"low_confidence"`
	Geofence       domain.Rect   `mapstructure:"geofence"`
	Zones          []domain.Zone `mapstructure:"zones"`
	TrackTTL       time.Duration `mapstructure:"track_ttl"`
	AlertCapacity  int           `mapstructure:"alert_capacity"`
	SnapshotAlerts int           `mapstructure:"snapshot_alerts"`
}

func (t TrackingConfig) StillThreshold() time.Duration {
	return time.Duration(t.StillSeconds * float64(time.Second))
}

type BroadcastConfig struct {
	RateHz         float64 `mapstructure:"rate_hz"`
	PublishInitial bool    `mapstructure:"publish_initial"`
	MaxDropped     int     `mapstructure:"max_dropped"`
}

type TransportConfig struct {
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	QueueSize    int           `mapstructure:"queue_size"`
	CommandRate  float64       `mapstructure:"command_rate"`
	CommandBurst int           `mapstructure:"command_burst"`
	ReadLimit    int64         `mapstructure:"read_limit"`
	PingInterval time.Duration `mapstructure:"ping_interval"`
}

type DetectorConfig struct {
	detector.Config `mapstructure:",squash"`
	RewindAttempts  uint          `mapstructure:"rewind_attempts"`
	RewindDelay     time.Duration `mapstructure:"rewind_delay"`
	RewindMaxDelay  time.Duration `mapstructure:"rewind_max_delay"`
}

type ArchiveConfig struct {
	alerts.ArchiveConfig `mapstructure:",squash"`
	MaxFailures          uint32        `mapstructure:"max_failures"`
	BreakerTimeout       time.Duration `mapstructure:"breaker_timeout"`
	Attempts             uint          `mapstructure:"attempts"`
	CallTimeout          time.Duration `mapstructure:"call_timeout"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig объединяет файл config.yaml, ENV и дефолты.
// Без аргументов файл ищется в "." и "./configs".
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{".", "./configs"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	// TRACKING_MOVE_THRESHOLD=0.01 перекроет tracking.move_threshold
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет — работаем на ENV и дефолтах
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// Сначала PEM из ENV (Docker/K8s), потом файл по пути
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")
	cfg.Auth.PrivateKey = loadKeyResource(cfg.Auth.PrivateKeyPath, "AUTH_PRIVATE_KEY_DATA")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("console.host", "")
	v.SetDefault("console.port", 8000)
	v.SetDefault("console.read_timeout", 5*time.Second)
	v.SetDefault("console.shutdown_timeout", 5*time.Second)

	v.SetDefault("grpc.enabled", true)
	v.SetDefault("grpc.addr", ":50052")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("database.driver", DriverNone)
	v.SetDefault("database.url", "")
	v.SetDefault("database.path", "yard.db")
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.migrate", true)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.public_key_path", "")
	v.SetDefault("auth.private_key_path", "")
	v.SetDefault("auth.token_ttl", 12*time.Hour)
	v.SetDefault("auth.bcrypt_cost", 10)

	v.SetDefault("tracking.speed_history", 5)
	v.SetDefault("tracking.move_threshold", 0.005)
	v.SetDefault("tracking.still_seconds", 30)
	v.SetDefault("tracking.low_confidence", 0.25)
	v.SetDefault("tracking.geofence", map[string]any{"xmin": 0.02, "ymin": 0.02, "xmax": 0.96, "ymax": 0.96})
	v.SetDefault("tracking.zones", []map[string]any{{"x": 0.05, "y": 0.05, "w": 0.9, "h": 0.9}})
	v.SetDefault("tracking.track_ttl", 0)
	v.SetDefault("tracking.alert_capacity", alerts.DefaultCapacity)
	v.SetDefault("tracking.snapshot_alerts", alerts.DefaultRecentLimit)

	v.SetDefault("broadcast.rate_hz", 8.0)
	v.SetDefault("broadcast.publish_initial", false)
	v.SetDefault("broadcast.max_dropped", 40)

	v.SetDefault("transport.write_timeout", 5*time.Second)
	v.SetDefault("transport.queue_size", 4)
	v.SetDefault("transport.command_rate", 5.0)
	v.SetDefault("transport.command_burst", 10)
	v.SetDefault("transport.read_limit", 4096)
	v.SetDefault("transport.ping_interval", 30*time.Second)

	v.SetDefault("detector.kind", detector.KindReplay)
	v.SetDefault("detector.path", "detections.csv")
	v.SetDefault("detector.fps", 0)
	v.SetDefault("detector.command", "")
	v.SetDefault("detector.args", []string{})
	v.SetDefault("detector.confidence", detector.DefaultConfidence)
	v.SetDefault("detector.classes", detector.DefaultClasses)
	v.SetDefault("detector.on_exhausted", "loop")
	v.SetDefault("detector.mqtt_broker", "")
	v.SetDefault("detector.mqtt_topic", "yard/detections")
	v.SetDefault("detector.mqtt_client_id", "yardd")
	v.SetDefault("detector.sim_tracks", detector.DefaultSimTracks)
	v.SetDefault("detector.sim_frames", 0)
	v.SetDefault("detector.sim_seed", 1)
	v.SetDefault("detector.rewind_attempts", 5)
	v.SetDefault("detector.rewind_delay", 200*time.Millisecond)
	v.SetDefault("detector.rewind_max_delay", 30*time.Second)

	v.SetDefault("archive.buffer_size", 10000)
	v.SetDefault("archive.batch_size", 100)
	v.SetDefault("archive.flush_interval", 500*time.Millisecond)
	v.SetDefault("archive.max_failures", 5)
	v.SetDefault("archive.breaker_timeout", 30*time.Second)
	v.SetDefault("archive.attempts", 3)
	v.SetDefault("archive.call_timeout", 2*time.Second)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
}

// Validate отсекает конфиги, с которыми трекер будет молча врать.
func (c *Config) Validate() error {
	var errs []error

	g := c.Tracking.Geofence
	if !(g.XMin >= 0 && g.YMin >= 0 && g.XMax <= 1 && g.YMax <= 1 && g.XMin < g.XMax && g.YMin < g.YMax) {
		errs = append(errs, fmt.Errorf("tracking.geofence must be ordered and inside [0,1], got %+v", g))
	}
	if c.Tracking.SpeedHistory < 2 {
		errs = append(errs, fmt.Errorf("tracking.speed_history must be >= 2, got %d", c.Tracking.SpeedHistory))
	}
	if c.Tracking.MoveThreshold <= 0 {
		errs = append(errs, errors.New("tracking.move_threshold must be > 0"))
	}
	if c.Tracking.StillSeconds <= 0 {
		errs = append(errs, errors.New("tracking.still_seconds must be > 0"))
	}
	if c.Tracking.TrackTTL < 0 {
		errs = append(errs, errors.New("tracking.track_ttl must not be negative"))
	}
	if c.Broadcast.RateHz <= 0 {
		errs = append(errs, fmt.Errorf("broadcast.rate_hz must be > 0, got %v", c.Broadcast.RateHz))
	}
	if len(c.Detector.Classes) == 0 {
		errs = append(errs, detector.ErrNoClasses)
	}
	if c.Detector.Confidence < 0 || c.Detector.Confidence > 1 {
		errs = append(errs, fmt.Errorf("detector.confidence must be in [0,1], got %v", c.Detector.Confidence))
	}
	switch c.Detector.OnExhausted {
	case "loop", "stop":
	default:
		errs = append(errs, fmt.Errorf("detector.on_exhausted must be loop or stop, got %q", c.Detector.OnExhausted))
	}
	switch c.Database.Driver {
	case DriverNone:
	case DriverPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for postgres"))
		}
	case DriverSQLite:
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required for sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown database.driver %q", c.Database.Driver))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func loadKeyResource(path string, envDataKey string) []byte {
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
