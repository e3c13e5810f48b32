// Package readings provides the telemetry stores the service queries for
// raw BMS rows.
package readings

import (
	"context"
	"strings"
	"time"

	"github.com/okian/evpulse/internal/domain/telemetry"
)

// Query selects raw rows. Empty filters match everything; the time range is
// half-open [Start, Stop) and a zero bound is unbounded.
type Query struct {
	DeviceIDs []string
	CarType   string
	Fields    []telemetry.Field
	Start     time.Time
	Stop      time.Time
}

// Source is a store of raw telemetry rows.
type Source interface {
	Query(ctx context.Context, q Query) ([]telemetry.Row, error)
	Close() error
}

// Writer is a Source that also accepts rows.
type Writer interface {
	Source
	Insert(ctx context.Context, rows []telemetry.Row) error
}

// Match reports whether r passes the filters of q.
func (q Query) Match(r telemetry.Row) bool {
	if len(q.DeviceIDs) > 0 && !contains(q.DeviceIDs, r.DeviceID) {
		return false
	}
	if q.CarType != "" && !strings.EqualFold(strings.TrimSpace(r.CarType), q.CarType) {
		return false
	}
	if len(q.Fields) > 0 {
		f := telemetry.ParseField(r.Field)
		found := false
		for _, want := range q.Fields {
			if f == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !q.Start.IsZero() && r.Time.Before(q.Start) {
		return false
	}
	if !q.Stop.IsZero() && !r.Time.Before(q.Stop) {
		return false
	}
	return true
}

func contains(list []string, s string) bool {
	s = strings.TrimSpace(s)
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func fieldNames(fs []telemetry.Field) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.String()
	}
	return out
}
