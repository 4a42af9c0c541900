package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Locks.QueueCapacity)
	assert.Equal(t, time.Second, cfg.Locks.TickInterval)
	assert.Equal(t, 15*time.Minute, cfg.Sync.Interval)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		message string
	}{
		{"empty server host", func(c *Config) { c.Server.Host = "" }, "server.host"},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"zero port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"empty database host", func(c *Config) { c.Database.Host = "" }, "database.host"},
		{"empty database name", func(c *Config) { c.Database.Database = "" }, "database.database"},
		{"empty database user", func(c *Config) { c.Database.User = "" }, "database.user"},
		{"empty redis host", func(c *Config) { c.Redis.Host = "" }, "redis.host"},
		{"zero queue capacity", func(c *Config) { c.Locks.QueueCapacity = 0 }, "locks.queue_capacity"},
		{"zero tick interval", func(c *Config) { c.Locks.TickInterval = 0 }, "locks.tick_interval"},
		{"zero sync interval", func(c *Config) { c.Sync.Interval = 0 }, "sync.interval"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.message)
		})
	}
}

func TestValidate_DefaultsLogging(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = ""
	cfg.Logging.Format = ""

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_FromFile(t *testing.T) {
	content := `
server:
  host: "127.0.0.1"
  port: 9999

locks:
  queue_capacity: 5
  tick_interval: 2s

sync:
  interval: 1h
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Locks.QueueCapacity)
	assert.Equal(t, 2*time.Second, cfg.Locks.TickInterval)
	assert.Equal(t, time.Hour, cfg.Sync.Interval)

	// Sections absent from the file keep their defaults.
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 6379, cfg.Redis.Port)
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("DATABASE_HOST", "db.internal")
	t.Setenv("DATABASE_PASSWORD", "secret")
	t.Setenv("REDIS_HOST", "cache.internal")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "secret", cfg.Database.Password)
	assert.Equal(t, "cache.internal", cfg.Redis.Host)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_InvalidEnvironmentPortIgnored(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-number")

	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}
