// Package config loads CLI defaults from TIMEBOX_* environment variables.
// Command-line flags override these values.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/roach88/timebox/internal/timebox"
)

// Config holds environment-provided defaults.
type Config struct {
	ReactTimeout time.Duration `env:"TIMEBOX_REACT_TIMEOUT" envDefault:"100ms"`
	MaxProducers int           `env:"TIMEBOX_MAX_PRODUCERS" envDefault:"0"`
	GuardErrors  string        `env:"TIMEBOX_GUARD_ERRORS" envDefault:"surface"`
	Journal      string        `env:"TIMEBOX_JOURNAL"`
	LogLevel     string        `env:"TIMEBOX_LOG_LEVEL" envDefault:"info"`

	// Tracing is opt-in: an empty endpoint disables export.
	OTelEndpoint string `env:"TIMEBOX_OTEL_ENDPOINT"`
	OTelEnabled  bool   `env:"TIMEBOX_OTEL_ENABLED" envDefault:"true"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values the env tags cannot express.
func (c Config) Validate() error {
	if c.ReactTimeout < 0 {
		return fmt.Errorf("TIMEBOX_REACT_TIMEOUT must not be negative, got %s", c.ReactTimeout)
	}
	if c.MaxProducers < 0 {
		return fmt.Errorf("TIMEBOX_MAX_PRODUCERS must not be negative, got %d", c.MaxProducers)
	}
	if _, ok := timebox.ParseGuardErrorPolicy(c.GuardErrors); !ok {
		return fmt.Errorf("TIMEBOX_GUARD_ERRORS: unknown policy %q (want surface or log)", c.GuardErrors)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("TIMEBOX_LOG_LEVEL: %w", err)
	}
	return nil
}

// GuardPolicy returns the parsed guard error policy.
func (c Config) GuardPolicy() timebox.GuardErrorPolicy {
	p, _ := timebox.ParseGuardErrorPolicy(c.GuardErrors)
	return p
}

// Level returns the parsed log level, defaulting to info.
func (c Config) Level() slog.Level {
	l, err := ParseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

// TracingEnabled reports whether spans should be exported.
func (c Config) TracingEnabled() bool {
	return c.OTelEnabled && c.OTelEndpoint != ""
}

// ParseLevel accepts debug, info, warn and error, case-insensitively.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return l, nil
}
