package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0m3kk/lunafold/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("LUNA_DSN", "postgres://luna@localhost/luna")

	cfg, err := config.Load()

	require.NoError(t, err)
	assert.Equal(t, config.StorePostgres, cfg.Store)
	assert.Equal(t, config.BrokerNATS, cfg.Broker)
	assert.Equal(t, 50, cfg.SnapshotEvery)
	assert.Equal(t, 3, cfg.RelayWorkers)
	assert.Equal(t, 2*time.Second, cfg.RelayInterval)
	assert.Equal(t, 24*time.Hour, cfg.CacheTTL)
	level, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)
}

func TestLoad_KafkaBrokersList(t *testing.T) {
	t.Setenv("LUNA_DSN", "postgres://luna@localhost/luna")
	t.Setenv("LUNA_BROKER", "kafka")
	t.Setenv("LUNA_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := config.Load()

	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
}

func TestLoad_DotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("LUNA_STORE=sqlite\nLUNA_BROKER=none\nLUNA_SNAPSHOT_EVERY=7\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("LUNA_STORE")
		os.Unsetenv("LUNA_BROKER")
		os.Unsetenv("LUNA_SNAPSHOT_EVERY")
	})

	cfg, err := config.Load(path)

	require.NoError(t, err)
	assert.Equal(t, config.StoreSQLite, cfg.Store)
	assert.Equal(t, 7, cfg.SnapshotEvery)
}

func TestLoad_ParseError(t *testing.T) {
	t.Setenv("LUNA_SNAPSHOT_EVERY", "often")

	_, err := config.Load()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}

func TestValidate(t *testing.T) {
	valid := config.Config{
		Store:          config.StorePostgres,
		DSN:            "postgres://x",
		Broker:         config.BrokerNATS,
		NATSURL:        "nats://x",
		RelayWorkers:   1,
		RelayBatchSize: 1,
		RelayInterval:  time.Second,
		LogLevel:       "debug",
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(c *config.Config)
		want   string
	}{
		{name: "postgres without dsn", mutate: func(c *config.Config) { c.DSN = "" }, want: "LUNA_DSN"},
		{name: "unknown store", mutate: func(c *config.Config) { c.Store = "mongo" }, want: "LUNA_STORE"},
		{name: "sqlite with broker", mutate: func(c *config.Config) { c.Store = config.StoreSQLite; c.SQLitePath = "x.db" }, want: "LUNA_BROKER=none"},
		{name: "kafka without brokers", mutate: func(c *config.Config) { c.Broker = config.BrokerKafka }, want: "LUNA_KAFKA_BROKERS"},
		{name: "unknown broker", mutate: func(c *config.Config) { c.Broker = "amqp" }, want: "LUNA_BROKER"},
		{name: "negative snapshot", mutate: func(c *config.Config) { c.SnapshotEvery = -1 }, want: "LUNA_SNAPSHOT_EVERY"},
		{name: "no relay workers", mutate: func(c *config.Config) { c.RelayWorkers = 0 }, want: "LUNA_RELAY_WORKERS"},
		{name: "zero interval", mutate: func(c *config.Config) { c.RelayInterval = 0 }, want: "LUNA_RELAY_INTERVAL"},
		{name: "bad log level", mutate: func(c *config.Config) { c.LogLevel = "loud" }, want: "LUNA_LOG_LEVEL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)

			err := cfg.Validate()

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateServer(t *testing.T) {
	assert.NoError(t, config.Config{Store: config.StorePostgres}.ValidateServer())

	err := config.Config{Store: config.StoreSQLite}.ValidateServer()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "only supported by lunactl")
}
