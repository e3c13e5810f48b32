// Package repository holds the ranked score snapshot served by the read
// endpoints.
package repository

import (
	"context"
	"time"

	"github.com/okian/evpulse/internal/domain/scoring"
)

// Store provides read/write access to the ranking state.
type Store interface {
	// Replace ranks results and publishes them as the current snapshot.
	Replace(ctx context.Context, runID string, results []scoring.Result) error

	// Rank returns the ranked score of a device.
	// Returns ErrNotFound if the device is not in the snapshot.
	Rank(ctx context.Context, deviceID string) (scoring.Result, error)

	// TopN returns the top-N results ordered by overall score desc.
	TopN(ctx context.Context, n int) ([]scoring.Result, error)

	// Count returns the number of devices in the snapshot.
	Count(ctx context.Context) int

	// Info describes the current snapshot.
	Info(ctx context.Context) SnapshotInfo
}

// SnapshotInfo identifies the run that produced the current snapshot.
type SnapshotInfo struct {
	RunID     string    `json:"run_id"`
	Devices   int       `json:"devices"`
	UpdatedAt time.Time `json:"updated_at"`
}
