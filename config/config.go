// Package config holds the sensorfw daemon configuration: the local
// socket endpoint, the handshake guard, metrics exposure, and logging.
// Configuration is loaded from a YAML file and validated before any
// component starts.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/saukko/sensorfw/errors"
)

// Config represents the complete daemon configuration
type Config struct {
	// SocketPath is the local endpoint client sessions connect to.
	SocketPath string `yaml:"socket_path"`

	Handshake HandshakeConfig `yaml:"handshake"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	LogLevel  string          `yaml:"log_level"`
}

// HandshakeConfig guards the accept path against connection storms.
type HandshakeConfig struct {
	// RatePerSecond limits handshakes per second; zero disables the guard.
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// Default returns the daemon defaults used when no file is given.
func Default() *Config {
	return &Config{
		SocketPath: "/run/sensorfw/socket",
		Handshake: HandshakeConfig{
			RatePerSecond: 100,
			Burst:         20,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		LogLevel: "info",
	}
}

// Load reads and validates a YAML configuration file, layering it over
// the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, errors.WrapFatal(err, "config", "Load", "read configuration file")
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapFatal(err, "config", "Load", "parse configuration file")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.SocketPath == "" {
		return errors.WrapFatal(
			fmt.Errorf("%w: socket_path", errors.ErrMissingConfig),
			"config", "Validate", "socket path check")
	}
	if c.Handshake.RatePerSecond < 0 {
		return errors.WrapFatal(
			fmt.Errorf("%w: handshake.rate_per_second must not be negative", errors.ErrInvalidConfig),
			"config", "Validate", "handshake guard check")
	}
	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return errors.WrapFatal(
			fmt.Errorf("%w: metrics.port %d", errors.ErrInvalidConfig, c.Metrics.Port),
			"config", "Validate", "metrics port check")
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return errors.WrapFatal(
			fmt.Errorf("%w: log_level %q", errors.ErrInvalidConfig, c.LogLevel),
			"config", "Validate", "log level check")
	}
	return nil
}

// SlogLevel maps the configured level to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
