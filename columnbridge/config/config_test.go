package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)
	assert.Equal(t, ":50051", cfg.Server.Address)
	assert.Equal(t, 5*time.Minute, cfg.Server.IdleTimeout)
	assert.False(t, cfg.Auth.Enabled)
	assert.Equal(t, "columnbridge", cfg.Metrics.Namespace)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "columnbridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  address: 127.0.0.1:6000
  idle_timeout: 30s
  parallelism: 4
zmq:
  enabled: true
  address: tcp://127.0.0.1:6001
log:
  level: debug
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:6000", cfg.Server.Address)
	assert.Equal(t, 30*time.Second, cfg.Server.IdleTimeout)
	assert.Equal(t, 4, cfg.Server.Parallelism)
	assert.True(t, cfg.ZMQ.Enabled)
	assert.Equal(t, "debug", cfg.Log.Level)
	// untouched keys keep their defaults
	assert.Equal(t, ":9090", cfg.Metrics.Address)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("COLBRIDGE_SERVER_ADDRESS", "0.0.0.0:7000")
	t.Setenv("COLBRIDGE_AUTH_ENABLED", "true")
	t.Setenv("COLBRIDGE_AUTH_TOKEN", "s3cret")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:7000", cfg.Server.Address)
	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, "s3cret", cfg.Auth.Token)
	assert.False(t, cfg.Auth.TokenGenerated())
	assert.Equal(t, "s3cret", cfg.APIAuth().Token)
}

func TestLoadGeneratesToken(t *testing.T) {
	t.Setenv("COLBRIDGE_AUTH_ENABLED", "1")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Auth.TokenGenerated())
	assert.Len(t, cfg.Auth.Token, 64)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	t.Setenv("COLBRIDGE_LOG_LEVEL", "loud")
	_, err = Load("")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty address", func(c *Config) { c.Server.Address = "" }},
		{"negative parallelism", func(c *Config) { c.Server.Parallelism = -1 }},
		{"negative idle timeout", func(c *Config) { c.Server.IdleTimeout = -time.Second }},
		{"zmq without transport", func(c *Config) { c.ZMQ.Enabled = true; c.ZMQ.Address = "localhost:1" }},
		{"metrics without address", func(c *Config) { c.Metrics.Address = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Default()
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(LogConfig{Level: "warn"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(-1))
	assert.True(t, logger.Core().Enabled(1))

	_, err = NewLogger(LogConfig{Level: "nope"})
	assert.Error(t, err)
}
