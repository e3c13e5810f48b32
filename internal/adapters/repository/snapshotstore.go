package repository

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/okian/evpulse/internal/domain/scoring"
	"github.com/okian/evpulse/pkg/metrics"
)

const defaultMaxLimit = 1000

// snapshot is an immutable ranking. Readers load it without locking and
// writers swap in a complete replacement.
type snapshot struct {
	info   SnapshotInfo
	ranked []scoring.Result
	// index into ranked by device id
	byDevice map[string]int
}

// SnapshotStore is an in-memory Store published through an atomic pointer.
type SnapshotStore struct {
	current  atomic.Pointer[snapshot]
	maxLimit int
	now      func() time.Time
}

var _ Store = (*SnapshotStore)(nil)

// NewSnapshotStore creates an empty store.
func NewSnapshotStore(opts ...Option) *SnapshotStore {
	s := &SnapshotStore{
		maxLimit: defaultMaxLimit,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Replace ranks results and swaps them in as the current snapshot.
func (s *SnapshotStore) Replace(ctx context.Context, runID string, results []scoring.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()

	ranked := scoring.Rank(results)
	byDevice := make(map[string]int, len(ranked))
	for i, r := range ranked {
		byDevice[r.DeviceID] = i
	}
	s.current.Store(&snapshot{
		info:     SnapshotInfo{RunID: runID, Devices: len(ranked), UpdatedAt: s.now()},
		ranked:   ranked,
		byDevice: byDevice,
	})

	metrics.RecordStoreSnapshot(float64(time.Since(start).Microseconds()) / 1000)
	metrics.UpdateScoredDevices(len(ranked))
	return nil
}

// Rank returns the ranked score of deviceID.
func (s *SnapshotStore) Rank(_ context.Context, deviceID string) (scoring.Result, error) {
	snap := s.current.Load()
	if snap == nil {
		return scoring.Result{}, ErrNoSnapshot
	}
	i, ok := snap.byDevice[deviceID]
	if !ok {
		return scoring.Result{}, ErrNotFound
	}
	return snap.ranked[i], nil
}

// TopN returns up to n results in rank order.
func (s *SnapshotStore) TopN(_ context.Context, n int) ([]scoring.Result, error) {
	if n < 1 || n > s.maxLimit {
		return nil, ErrInvalidLimit
	}
	snap := s.current.Load()
	if snap == nil {
		return []scoring.Result{}, nil
	}
	if n > len(snap.ranked) {
		n = len(snap.ranked)
	}
	out := make([]scoring.Result, n)
	copy(out, snap.ranked[:n])
	return out, nil
}

// Count returns the number of ranked devices.
func (s *SnapshotStore) Count(_ context.Context) int {
	snap := s.current.Load()
	if snap == nil {
		return 0
	}
	return len(snap.ranked)
}

// Info describes the current snapshot. The zero value means none yet.
func (s *SnapshotStore) Info(_ context.Context) SnapshotInfo {
	snap := s.current.Load()
	if snap == nil {
		return SnapshotInfo{}
	}
	return snap.info
}

// MaxLimit returns the largest n accepted by TopN.
func (s *SnapshotStore) MaxLimit() int { return s.maxLimit }
