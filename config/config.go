// Package config loads service configuration from the environment,
// with an optional .env file for local development.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the service settings.
type Config struct {
	// ListenAddr is the HTTP listen address.
	ListenAddr string

	// EventDBPath is the SQLite file backing the event store.
	// ":memory:" runs without durability.
	EventDBPath string

	// RegistryDBPath is the SQLite file backing the metadata registry.
	RegistryDBPath string

	// PendingSellTTL is how long a sell request may stay pending before
	// the sweeper cancels it.
	PendingSellTTL time.Duration

	// SweepInterval is how often the sweeper runs.
	SweepInterval time.Duration

	// LogLevel is one of debug, info, warn, error.
	LogLevel string
}

// Load reads configuration from the environment. A .env file in the
// working directory is merged in when present; real environment
// variables win.
func Load() (*Config, error) {
	// A missing .env is the normal case; anything else, such as an
	// unreadable or malformed file, is a real configuration error.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := &Config{
		ListenAddr:     envOr("TONPAD_LISTEN_ADDR", ":8080"),
		EventDBPath:    envOr("TONPAD_EVENTS_DB", "tonpad-events.db"),
		RegistryDBPath: envOr("TONPAD_REGISTRY_DB", "tonpad-registry.db"),
		LogLevel:       envOr("TONPAD_LOG_LEVEL", "info"),
	}

	var err error
	cfg.PendingSellTTL, err = envDuration("TONPAD_PENDING_TTL", time.Hour)
	if err != nil {
		return nil, err
	}
	cfg.SweepInterval, err = envDuration("TONPAD_SWEEP_INTERVAL", time.Minute)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: %s must be positive, got %s", key, d)
	}
	return d, nil
}
