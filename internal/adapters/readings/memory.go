package readings

import (
	"context"
	"sync"
	"time"

	"github.com/okian/evpulse/internal/domain/telemetry"
	"github.com/okian/evpulse/pkg/metrics"
)

const memorySourceName = "memory"

// MemorySource keeps rows in memory. It backs tests and the demo mode.
type MemorySource struct {
	mu     sync.RWMutex
	rows   []telemetry.Row
	closed bool
}

var _ Writer = (*MemorySource)(nil)

// NewMemorySource creates a source holding rows.
func NewMemorySource(rows ...telemetry.Row) *MemorySource {
	m := &MemorySource{}
	m.rows = append(m.rows, rows...)
	return m
}

// Insert appends rows.
func (m *MemorySource) Insert(ctx context.Context, rows []telemetry.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.rows = append(m.rows, rows...)
	return nil
}

// Query returns the rows matching q in insertion order.
func (m *MemorySource) Query(ctx context.Context, q Query) ([]telemetry.Row, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		metrics.RecordSourceQueryError(memorySourceName)
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		metrics.RecordSourceQueryError(memorySourceName)
		return nil, ErrClosed
	}

	out := make([]telemetry.Row, 0, len(m.rows))
	for _, r := range m.rows {
		if q.Match(r) {
			out = append(out, r)
		}
	}
	metrics.RecordSourceQuery(memorySourceName, float64(time.Since(start).Microseconds())/1000)
	return out, nil
}

// Close releases the rows. Further calls fail with ErrClosed.
func (m *MemorySource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.rows = nil
	return nil
}
