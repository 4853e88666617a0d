package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// helper to build a minimal valid config that can be tweaked in tests.
func validBaseConfig() *Config {
	cfg := DefaultConfig()
	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.HTTP.RequestsPerSecond = 10
	cfg.RateLimiting.HTTP.Burst = 20
	cfg.RateLimiting.HTTP.MaxConcurrent = 5
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 50
	cfg.RateLimiting.WebSocket.Burst = 100
	cfg.RateLimiting.WebSocket.MaxConcurrent = 10
	cfg.RateLimiting.WebSocket.MaxMessageSizeBytes = 65536
	return cfg
}

func TestDefaultConfig_IsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	require.NoError(t, validBaseConfig().Validate())
}

func TestValidate_RateLimitingDisabled_AllowsZeroValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 0
	cfg.RateLimiting.HTTP.Burst = 0
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 0
	cfg.RateLimiting.WebSocket.Burst = 0

	assert.NoError(t, cfg.Validate())
}

func TestValidate_InvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"http rps must be > 0", func(c *Config) { c.RateLimiting.HTTP.RequestsPerSecond = 0 }},
		{"http burst must be > 0", func(c *Config) { c.RateLimiting.HTTP.Burst = 0 }},
		{"ws messages per second must be > 0", func(c *Config) { c.RateLimiting.WebSocket.MessagesPerSecond = 0 }},
		{"ws max message size must be >= 0", func(c *Config) { c.RateLimiting.WebSocket.MaxMessageSizeBytes = -1 }},
		{"pong timeout must exceed ping interval", func(c *Config) { c.Signal.PongTimeout = c.Signal.PingInterval }},
		{"redis address required when enabled", func(c *Config) {
			c.Redis.Enabled = true
			c.Redis.Address = ""
		}},
		{"jwt secret required", func(c *Config) { c.Auth.JWTSecret = "" }},
		{"join marker ttl must be > 0", func(c *Config) { c.Chat.JoinMarkerTTL = 0 }},
		{"bot id required", func(c *Config) { c.Chat.Bot.ID = "" }},
		{"lock ttl must be > 0", func(c *Config) { c.Lifecycle.LockTTL = 0 }},
		{"sample rate within bounds", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.SampleRate = 2
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validBaseConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 8*time.Hour, cfg.Chat.JoinMarkerTTL)
}

func TestLoad_YAMLAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "castline.yaml")
	yaml := []byte(`
server:
  address: ":9000"
chat:
  max_content_length: 280
redis:
  key_prefix: "test:"
`)
	require.NoError(t, os.WriteFile(path, yaml, 0o600))

	t.Setenv("CASTLINE_INGEST_SECRET", "s3cret")
	t.Setenv("CASTLINE_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Address)
	assert.Equal(t, 280, cfg.Chat.MaxContentLength)
	assert.Equal(t, "test:", cfg.Redis.KeyPrefix)
	assert.Equal(t, "s3cret", cfg.Ingest.Secret)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// untouched sections keep their defaults
	assert.Equal(t, 5*time.Second, cfg.Chat.SettingsCacheTTL)
}

func TestLoad_InvalidEnvBool(t *testing.T) {
	t.Setenv("CASTLINE_REDIS_ENABLED", "maybe")
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestFind(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(existing, []byte("logging:\n  level: warn\n"), 0o600))

	assert.Equal(t, existing, Find(filepath.Join(dir, "missing.yaml"), existing))
	assert.Empty(t, Find(filepath.Join(dir, "missing.yaml")))

	cfg, err := Load(Find(filepath.Join(dir, "missing.yaml")))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Server.Address, cfg.Server.Address)
}
