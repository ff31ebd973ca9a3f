package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	platformstrings "achievements/pkg/platform/strings"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Event bus backends.
const (
	BusMemory = "memory"
	BusKafka  = "kafka"
)

// Config is the full process configuration, read from the environment.
type Config struct {
	Instance string `env:"ACHIEVEMENTS_INSTANCE" envDefault:"default"`
	// HostVersion is the running host version fed to the detector.
	HostVersion string `env:"ACHIEVEMENTS_HOST_VERSION"`

	Server   Server
	Log      Log
	Ledger   Ledger
	Detector Detector
	Storage  Storage
	Redis    Redis
	Postgres Postgres
	SQLite   SQLite
	Kafka    Kafka
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr              string        `env:"ACHIEVEMENTS_ADDR" envDefault:":8080"`
	ReadHeaderTimeout time.Duration `env:"ACHIEVEMENTS_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ShutdownTimeout   time.Duration `env:"ACHIEVEMENTS_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	// JWTSigningKey enables bearer authentication on POST /events when set.
	JWTSigningKey string `env:"ACHIEVEMENTS_JWT_SIGNING_KEY"`
	JWTIssuer     string `env:"ACHIEVEMENTS_JWT_ISSUER" envDefault:"achievements"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type Ledger struct {
	Delay        time.Duration `env:"ACHIEVEMENTS_LEDGER_DELAY" envDefault:"10s"`
	FlushTimeout time.Duration `env:"ACHIEVEMENTS_LEDGER_FLUSH_TIMEOUT" envDefault:"30s"`
	// Location is the zone persisted timestamps are written in. Stored
	// timestamps carry no offset, so a zone with DST makes the repeated
	// fall-back hour ambiguous on reload; "Local" selects the process zone.
	Location string `env:"ACHIEVEMENTS_LEDGER_LOCATION" envDefault:"UTC"`
}

type Detector struct {
	Enabled  bool          `env:"ACHIEVEMENTS_DETECTOR_ENABLED" envDefault:"true"`
	Interval time.Duration `env:"ACHIEVEMENTS_DETECTOR_INTERVAL" envDefault:"1h"`
}

type Storage struct {
	Backend string `env:"ACHIEVEMENTS_STORAGE" envDefault:"sqlite"`
	Bus     string `env:"ACHIEVEMENTS_BUS" envDefault:"memory"`
}

// Redis mirrors the go-redis pool options that are worth tuning.
type Redis struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

type Postgres struct {
	DSN string `env:"POSTGRES_DSN"`
}

type SQLite struct {
	Path string `env:"SQLITE_PATH" envDefault:"achievements.db"`
}

type Kafka struct {
	Brokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	Topic   string   `env:"KAFKA_TOPIC" envDefault:"achievements"`
	Group   string   `env:"KAFKA_GROUP" envDefault:"achievements-ledger"`
}

// FromEnv parses and validates the configuration.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	brokers, err := platformstrings.HostPorts(cfg.Kafka.Brokers)
	if err != nil {
		return Config{}, fmt.Errorf("KAFKA_BROKERS: %w", err)
	}
	cfg.Kafka.Brokers = brokers
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements the struct tags cannot express.
func (c Config) Validate() error {
	var errs []error
	if c.Instance == "" {
		errs = append(errs, errors.New("ACHIEVEMENTS_INSTANCE must not be empty"))
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.SQLite.Path == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite backend"))
		}
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required for the postgres backend"))
		}
	case BackendRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}
	switch c.Storage.Bus {
	case BusMemory:
	case BusKafka:
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, errors.New("KAFKA_BROKERS is required for the kafka bus"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown event bus %q", c.Storage.Bus))
	}
	if c.Ledger.Delay <= 0 {
		errs = append(errs, errors.New("ACHIEVEMENTS_LEDGER_DELAY must be positive"))
	}
	if c.Detector.Interval <= 0 {
		errs = append(errs, errors.New("ACHIEVEMENTS_DETECTOR_INTERVAL must be positive"))
	}
	if _, err := c.Ledger.LoadLocation(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// LoadLocation resolves the configured zone.
func (l Ledger) LoadLocation() (*time.Location, error) {
	if l.Location == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(l.Location)
	if err != nil {
		return nil, fmt.Errorf("ACHIEVEMENTS_LEDGER_LOCATION: %w", err)
	}
	return loc, nil
}
