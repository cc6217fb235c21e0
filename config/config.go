// Package config loads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"

	BrokerNATS  = "nats"
	BrokerKafka = "kafka"
	BrokerNone  = "none"
)

// Config holds every setting of lunad and lunactl.
type Config struct {
	Store      string `env:"LUNA_STORE"       envDefault:"postgres"`
	DSN        string `env:"LUNA_DSN"`
	SQLitePath string `env:"LUNA_SQLITE_PATH" envDefault:"lunafold.db"`

	Broker       string   `env:"LUNA_BROKER"        envDefault:"nats"`
	NATSURL      string   `env:"LUNA_NATS_URL"      envDefault:"nats://localhost:4222"`
	KafkaBrokers []string `env:"LUNA_KAFKA_BROKERS" envSeparator:","`

	RedisAddr     string        `env:"LUNA_REDIS_ADDR"     envDefault:"localhost:6379"`
	RedisPassword string        `env:"LUNA_REDIS_PASSWORD"`
	CacheTTL      time.Duration `env:"LUNA_CACHE_TTL"      envDefault:"24h"`

	SnapshotEvery  int           `env:"LUNA_SNAPSHOT_EVERY"    envDefault:"50"`
	RelayWorkers   int           `env:"LUNA_RELAY_WORKERS"     envDefault:"3"`
	RelayBatchSize int           `env:"LUNA_RELAY_BATCH_SIZE"  envDefault:"10"`
	RelayInterval  time.Duration `env:"LUNA_RELAY_INTERVAL"    envDefault:"2s"`
	MaxRetryTime   time.Duration `env:"LUNA_MAX_RETRY_TIME"    envDefault:"1m"`
	LogLevel       string        `env:"LUNA_LOG_LEVEL"         envDefault:"info"`
}

// Load reads an optional .env file and then the environment.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects inconsistent settings.
func (c Config) Validate() error {
	var errs []error
	switch c.Store {
	case StorePostgres:
		if c.DSN == "" {
			errs = append(errs, errors.New("LUNA_DSN is required with the postgres store"))
		}
	case StoreSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			errs = append(errs, errors.New("LUNA_SQLITE_PATH is required with the sqlite store"))
		}
		if c.Broker != BrokerNone {
			errs = append(errs, errors.New("the sqlite store has no outbox, set LUNA_BROKER=none"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown LUNA_STORE %q", c.Store))
	}

	switch c.Broker {
	case BrokerNATS:
		if c.NATSURL == "" {
			errs = append(errs, errors.New("LUNA_NATS_URL is required with the nats broker"))
		}
	case BrokerKafka:
		if len(c.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("LUNA_KAFKA_BROKERS is required with the kafka broker"))
		}
	case BrokerNone:
	default:
		errs = append(errs, fmt.Errorf("unknown LUNA_BROKER %q", c.Broker))
	}

	if c.SnapshotEvery < 0 {
		errs = append(errs, errors.New("LUNA_SNAPSHOT_EVERY must not be negative"))
	}
	if c.RelayWorkers < 1 || c.RelayBatchSize < 1 {
		errs = append(errs, errors.New("LUNA_RELAY_WORKERS and LUNA_RELAY_BATCH_SIZE must be positive"))
	}
	if c.RelayInterval <= 0 {
		errs = append(errs, errors.New("LUNA_RELAY_INTERVAL must be positive"))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ValidateServer rejects settings lunad cannot run with. The sqlite store has
// no outbox to relay, so it only serves lunactl.
func (c Config) ValidateServer() error {
	if c.Store != StorePostgres {
		return fmt.Errorf("lunad requires LUNA_STORE=%s, %q is only supported by lunactl", StorePostgres, c.Store)
	}
	return nil
}

// SlogLevel parses LogLevel.
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid LUNA_LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return level, nil
}
