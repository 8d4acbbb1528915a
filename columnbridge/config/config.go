// Package config loads ColumnBridge settings with viper.
//
// Settings come from, in increasing precedence: built-in defaults, an
// optional YAML file, and COLBRIDGE_-prefixed environment variables
// (COLBRIDGE_SERVER_ADDRESS, COLBRIDGE_AUTH_TOKEN, ...).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/VanDung-dev/ColumnBridge/columnbridge/api"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "COLBRIDGE"

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the full probe-server configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	ZMQ     ZMQConfig     `mapstructure:"zmq"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Log     LogConfig     `mapstructure:"log"`
}

// ServerConfig configures the TCP probe.
type ServerConfig struct {
	Address     string        `mapstructure:"address"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	// Parallelism bounds concurrent column exports per batch (0 means GOMAXPROCS)
	Parallelism int `mapstructure:"parallelism"`
}

type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token"`

	generated bool
}

// TokenGenerated reports whether Token was generated by Load.
func (a AuthConfig) TokenGenerated() bool { return a.generated }

type ZMQConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Address   string `mapstructure:"address"`
	Namespace string `mapstructure:"namespace"`
}

// LogConfig selects the zap preset and level.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":50051")
	v.SetDefault("server.idle_timeout", 5*time.Minute)
	v.SetDefault("server.parallelism", 0)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.token", "")
	v.SetDefault("zmq.enabled", false)
	v.SetDefault("zmq.address", "tcp://*:5560")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.address", ":9090")
	v.SetDefault("metrics.namespace", "columnbridge")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)
	return v
}

// Default returns the configuration with no file and no environment.
func Default() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode defaults: %w", err)
	}
	return &cfg, nil
}

// Load reads path (skipped when empty), applies environment overrides and
// validates the result. When auth is enabled without a token, a random one
// is generated.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if cfg.Auth.Enabled && cfg.Auth.Token == "" {
		cfg.Auth.Token = api.GenerateToken()
		cfg.Auth.generated = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("%w: server.address is empty", ErrInvalidConfig)
	}
	if c.Server.Parallelism < 0 {
		return fmt.Errorf("%w: server.parallelism must not be negative", ErrInvalidConfig)
	}
	if c.Server.IdleTimeout < 0 {
		return fmt.Errorf("%w: server.idle_timeout must not be negative", ErrInvalidConfig)
	}
	if c.ZMQ.Enabled && !strings.Contains(c.ZMQ.Address, "://") {
		return fmt.Errorf("%w: zmq.address %q needs a transport prefix", ErrInvalidConfig, c.ZMQ.Address)
	}
	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return fmt.Errorf("%w: metrics.address is empty", ErrInvalidConfig)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// APIAuth converts the auth section for the probe server.
func (c *Config) APIAuth() api.AuthConfig {
	return api.AuthConfig{Enabled: c.Auth.Enabled, Token: c.Auth.Token}
}

// NewLogger builds a zap logger from the log section.
func NewLogger(c LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
