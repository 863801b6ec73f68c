package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 20, cfg.Client.ResolveAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Client.ResolveInterval)
	assert.Equal(t, ":8081", cfg.Relay.Address)
	assert.Equal(t, ":8080", cfg.Directory.Address)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Redis.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Relay.Address, cfg.Relay.Address)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
client:
  rtc_identity: alice@wonder.example
  directory_url: http://directory:8080
  resolve_attempts: 5
relay:
  address: ":9000"
logging:
  level: debug
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "alice@wonder.example", cfg.Client.RtcIdentity)
	assert.Equal(t, "http://directory:8080", cfg.Client.DirectoryURL)
	assert.Equal(t, 5, cfg.Client.ResolveAttempts)
	assert.Equal(t, ":9000", cfg.Relay.Address)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// untouched sections keep their defaults
	assert.Equal(t, 30*time.Second, cfg.Relay.PingInterval)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("WONDER_RTC_IDENTITY", "bob@wonder.example")
	t.Setenv("WONDER_LOG_LEVEL", "warn")
	t.Setenv("WONDER_JWT_SECRET", "env-secret")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "bob@wonder.example", cfg.Client.RtcIdentity)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "env-secret", cfg.Auth.JWTSecret)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero resolve attempts", func(c *Config) { c.Client.ResolveAttempts = 0 }},
		{"empty relay address", func(c *Config) { c.Relay.Address = "" }},
		{"empty directory address", func(c *Config) { c.Directory.Address = "" }},
		{"empty log level", func(c *Config) { c.Logging.Level = "" }},
		{"empty jwt secret", func(c *Config) { c.Auth.JWTSecret = "" }},
		{"redis enabled without address", func(c *Config) {
			c.Redis.Enabled = true
			c.Redis.Address = ""
		}},
		{"rate limiting enabled with zero rps", func(c *Config) {
			c.RateLimiting.Enabled = true
			c.RateLimiting.HTTP.RequestsPerSecond = 0
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
