package simulate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/evpulse/internal/adapters/readings"
	"github.com/okian/evpulse/internal/domain/telemetry"
	"github.com/okian/evpulse/pkg/logger"
)

// ErrIncomplete is returned when some batches could not be written.
var ErrIncomplete = errors.New("simulate: not every batch was written")

// Seed generates a fleet and inserts it into w. It is used to populate an
// in-process store.
func Seed(ctx context.Context, cfg Config, w readings.Writer) (int, error) {
	cfg = cfg.withDefaults()
	rows, err := Generate(ctx, cfg)
	if err != nil {
		return 0, err
	}
	stats := &Stats{}
	writeBatches(ctx, cfg, NewStoreSink(w), 1, rows, stats)
	if stats.BatchesFailed > 0 {
		return stats.RowsWritten, fmt.Errorf("%w: %d batches failed", ErrIncomplete, stats.BatchesFailed)
	}
	return stats.RowsWritten, nil
}

// Run executes a complete simulation: generate the fleet, write it to the
// SQLite store at cfg.DBPath or to the service at cfg.BaseURL, then verify
// that the data is visible.
func Run(ctx context.Context, cfg Config) (*Stats, error) {
	cfg = cfg.withDefaults()
	stats := &Stats{StartTime: time.Now(), Devices: cfg.Devices}

	target := cfg.BaseURL
	if cfg.DBPath != "" {
		target = cfg.DBPath
	}
	logger.Get().Info(ctx, "starting fleet simulation",
		logger.String("target", target),
		logger.Int("devices", cfg.Devices),
		logger.Int("days", cfg.Days),
		logger.Int("workers", cfg.Workers),
		logger.Bool("verbose", cfg.Verbose))

	var client *HTTPClient
	if cfg.DBPath == "" {
		client = NewHTTPClient(cfg.BaseURL, cfg.Timeout)
		if err := checkServiceHealth(ctx, client); err != nil {
			return stats, fmt.Errorf("service health check failed: %w", err)
		}
	}

	rows, err := Generate(ctx, cfg)
	if err != nil {
		return stats, fmt.Errorf("fleet generation failed: %w", err)
	}
	stats.RowsGenerated = len(rows)

	if cfg.DBPath != "" {
		err = runStore(ctx, cfg, rows, stats)
	} else {
		err = runHTTP(ctx, cfg, client, rows, stats)
	}
	if err != nil {
		return stats, err
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)

	if stats.BatchesFailed > 0 {
		return stats, fmt.Errorf("%w: %d batches failed", ErrIncomplete, stats.BatchesFailed)
	}
	return stats, nil
}

func runStore(ctx context.Context, cfg Config, rows []telemetry.Row, stats *Stats) error {
	src, err := readings.OpenSQLite(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open readings store: %w", err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			logger.Get().Error(context.Background(), "failed to close readings store", logger.Error(err))
		}
	}()

	// SQLite has a single writer.
	writeBatches(ctx, cfg, NewStoreSink(src), 1, rows, stats)

	stored, err := src.Query(ctx, readings.Query{})
	if err != nil {
		return fmt.Errorf("verification query failed: %w", err)
	}
	fleet, _ := telemetry.Group(stored)
	stats.FleetDevices = len(fleet.Devices)
	logger.Get().Info(ctx, "store verified",
		logger.Int("rows", len(stored)),
		logger.Int("devices", stats.FleetDevices))
	return nil
}

type overviewResponse struct {
	TotalDevices int `json:"total_devices"`
}

type leaderboardEntry struct {
	DeviceID string  `json:"device_id"`
	Score    float64 `json:"overall_score"`
}

func runHTTP(ctx context.Context, cfg Config, client *HTTPClient, rows []telemetry.Row, stats *Stats) error {
	writeBatches(ctx, cfg, NewHTTPSink(client), cfg.Workers, rows, stats)

	var ov overviewResponse
	if err := client.Get(ctx, "/fleet/overview", &ov); err != nil {
		return fmt.Errorf("fleet overview failed: %w", err)
	}
	stats.FleetDevices = ov.TotalDevices

	var top []leaderboardEntry
	if err := client.Get(ctx, "/leaderboard?limit=1", &top); err != nil {
		logger.Get().Warn(ctx, "leaderboard unavailable", logger.Error(err))
	} else if len(top) > 0 {
		stats.LeaderboardTop = top[0].DeviceID
	}

	if stats.FleetDevices < cfg.Devices {
		logger.Get().Warn(ctx, "service reports fewer devices than simulated",
			logger.Int("simulated", cfg.Devices),
			logger.Int("reported", stats.FleetDevices))
	}
	return nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, client *HTTPClient) error {
	logger.Get().Info(ctx, "checking service health")
	if err := client.Get(ctx, "/stats", nil); err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(ctx context.Context, stats *Stats) {
	var rowsPerSecond float64
	if stats.Duration > 0 {
		rowsPerSecond = float64(stats.RowsWritten) / stats.Duration.Seconds()
	}
	logger.Get().Info(ctx, "final statistics",
		logger.Int("devices", stats.Devices),
		logger.Int("rowsGenerated", stats.RowsGenerated),
		logger.Int("rowsWritten", stats.RowsWritten),
		logger.Int("batchesFailed", stats.BatchesFailed),
		logger.Int("fleetDevices", stats.FleetDevices),
		logger.String("leaderboardTop", stats.LeaderboardTop),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("rowsPerSecond", rowsPerSecond))
}
