// Package config defines service configuration structures and loading hooks.
//
// Conventions:
//   - New(ctx) returns the defaults; Load(ctx) layers a .env file, an optional
//     YAML file and EVPULSE_ environment variables on top.
//   - Validation failures wrap ErrInvalidConfig.
package config

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json log output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DBPath points at the SQLite readings store. Empty selects the
	// in-memory source.
	DBPath string `koanf:"db_path"`

	// SimulateDevices seeds the in-memory source with a synthetic fleet.
	SimulateDevices int `koanf:"simulate_devices"`

	// WorkerCount sets the number of per-device analysis workers.
	WorkerCount int `koanf:"worker_count"`

	// QueueSize bounds the in-memory job queue.
	QueueSize int `koanf:"queue_size"`

	// DedupeSize bounds the remembered ingest batch ids; <= 0 keeps all.
	DedupeSize int `koanf:"dedupe_size"`

	// MaxRankLimit caps the limit accepted by the ranking endpoints.
	MaxRankLimit int `koanf:"max_rank_limit"`

	// ForecastDays is the default forecast horizon; MaxForecastDays caps it.
	ForecastDays    int `koanf:"forecast_days"`
	MaxForecastDays int `koanf:"max_forecast_days"`

	// RangeStart and RangeStop bound every readings query (RFC 3339).
	RangeStart string `koanf:"range_start"`
	RangeStop  string `koanf:"range_stop"`

	// Odometer thresholds in km for reset and noise detection.
	OdometerResetThreshold float64 `koanf:"odometer_reset_threshold"`
	OdometerNoiseThreshold float64 `koanf:"odometer_noise_threshold"`

	// AnomalyThreshold is the z-score above which a device is anomalous.
	AnomalyThreshold float64 `koanf:"anomaly_threshold"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:               "info",
		LogFormat:              "text",
		Addr:                   ":9080",
		SimulateDevices:        0,
		WorkerCount:            runtime.NumCPU() * 2,
		QueueSize:              1024,
		DedupeSize:             50000,
		MaxRankLimit:           1000,
		ForecastDays:           30,
		MaxForecastDays:        365,
		RangeStart:             "2022-01-01T00:00:00Z",
		RangeStop:              "2024-01-01T00:00:00Z",
		OdometerResetThreshold: -50,
		OdometerNoiseThreshold: -1,
		AnomalyThreshold:       2.5,
		ShutdownTimeout:        10 * time.Second,
	}
}

// TimeRange parses RangeStart and RangeStop.
func (c *Config) TimeRange() (time.Time, time.Time, error) {
	start, err := time.Parse(time.RFC3339, c.RangeStart)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: range_start: %w", ErrInvalidConfig, err)
	}
	stop, err := time.Parse(time.RFC3339, c.RangeStop)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: range_stop: %w", ErrInvalidConfig, err)
	}
	if !stop.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: range_stop must be after range_start", ErrInvalidConfig)
	}
	return start.UTC(), stop.UTC(), nil
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.WorkerCount < 1:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.QueueSize < 1:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.MaxRankLimit < 1:
		return fmt.Errorf("%w: max_rank_limit must be positive", ErrInvalidConfig)
	case c.MaxForecastDays < 1:
		return fmt.Errorf("%w: max_forecast_days must be positive", ErrInvalidConfig)
	case c.ForecastDays < 1 || c.ForecastDays > c.MaxForecastDays:
		return fmt.Errorf("%w: forecast_days must be within [1, max_forecast_days]", ErrInvalidConfig)
	case c.SimulateDevices < 0:
		return fmt.Errorf("%w: simulate_devices must not be negative", ErrInvalidConfig)
	case c.OdometerResetThreshold >= c.OdometerNoiseThreshold:
		return fmt.Errorf("%w: odometer_reset_threshold must be below odometer_noise_threshold", ErrInvalidConfig)
	case c.OdometerNoiseThreshold > 0:
		return fmt.Errorf("%w: odometer_noise_threshold must not be positive", ErrInvalidConfig)
	case c.AnomalyThreshold <= 0:
		return fmt.Errorf("%w: anomaly_threshold must be positive", ErrInvalidConfig)
	case c.ShutdownTimeout <= 0:
		return fmt.Errorf("%w: shutdown_timeout must be positive", ErrInvalidConfig)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: log_format must be text or json", ErrInvalidConfig)
	}
	_, _, err := c.TimeRange()
	return err
}
