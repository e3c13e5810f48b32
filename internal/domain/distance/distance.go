// Package distance reconstructs driven distance and driving sessions from a
// noisy odometer series.
package distance

import (
	"fmt"
	"math"
	"time"

	"github.com/okian/evpulse/internal/domain/telemetry"
)

// Odometer delta thresholds, in km. They were calibrated empirically and are
// kept as-is: a delta of -42 km counts as noise, not as a reset.
const (
	ResetThreshold = -50.0
	NoiseThreshold = -1.0
	StopGap        = 3 * time.Minute
)

const dayLayout = "2006-01-02"

// Session is one contiguous stretch of odometer increases.
type Session struct {
	Start       time.Time     `json:"start_time"`
	End         time.Time     `json:"end_time"`
	DistanceKm  float64       `json:"distance_km"`
	Duration    time.Duration `json:"-"`
	DurationSec float64       `json:"duration_seconds"`
}

// Summary is the reconstruction result for one device.
type Summary struct {
	TotalDistance        float64            `json:"total_distance"`
	Sessions             []Session          `json:"sessions"`
	Daily                map[string]float64 `json:"daily"`
	MinOdometer          float64            `json:"min_odometer"`
	MaxOdometer          float64            `json:"max_odometer"`
	SessionCount         int                `json:"session_count"`
	DrivingTimeSeconds   float64            `json:"driving_time_seconds"`
	DrivingTimeFormatted string             `json:"driving_time_formatted"`
	InsufficientData     bool               `json:"insufficient_data"`
}

// Option tunes the reconstructor thresholds.
type Option func(*settings)

type settings struct {
	reset   float64
	noise   float64
	stopGap time.Duration
}

// WithResetThreshold overrides the delta at or below which the odometer is
// considered reset.
func WithResetThreshold(km float64) Option {
	return func(s *settings) {
		if km < 0 {
			s.reset = km
		}
	}
}

// WithNoiseThreshold overrides the delta at or below which a decrease is
// treated as sensor noise.
func WithNoiseThreshold(km float64) Option {
	return func(s *settings) {
		if km < 0 {
			s.noise = km
		}
	}
}

// WithStopGap overrides the sample gap that ends a session.
func WithStopGap(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.stopGap = d
		}
	}
}

// Reconstruct folds an odometer series into cumulative distance, driving
// sessions and per-day distance. Fewer than two samples yield an empty
// summary flagged InsufficientData.
func Reconstruct(odometer telemetry.Series, opts ...Option) Summary {
	cfg := settings{reset: ResetThreshold, noise: NoiseThreshold, stopGap: StopGap}
	for _, opt := range opts {
		opt(&cfg)
	}

	sum := Summary{Sessions: []Session{}, Daily: map[string]float64{}}
	if len(odometer) < 2 {
		sum.InsufficientData = true
		sum.DrivingTimeFormatted = FormatDuration(0)
		if len(odometer) == 1 {
			sum.MinOdometer = odometer[0].Value
			sum.MaxOdometer = odometer[0].Value
		}
		return sum
	}

	sum.MinOdometer = math.Inf(1)
	sum.MaxOdometer = math.Inf(-1)
	for _, r := range odometer {
		sum.MinOdometer = math.Min(sum.MinOdometer, r.Value)
		sum.MaxOdometer = math.Max(sum.MaxOdometer, r.Value)
	}

	var (
		open    bool
		start   time.Time
		current float64
		driving time.Duration
	)
	closeSession := func(end time.Time) {
		if !open {
			return
		}
		d := end.Sub(start)
		sum.Sessions = append(sum.Sessions, Session{
			Start:       start,
			End:         end,
			DistanceKm:  current,
			Duration:    d,
			DurationSec: d.Seconds(),
		})
		driving += d
		open = false
		current = 0
	}

	for i := 1; i < len(odometer); i++ {
		prev, curr := odometer[i-1], odometer[i]
		diff := curr.Value - prev.Value
		dt := curr.Time.Sub(prev.Time)

		switch {
		case diff > 0:
			if !open {
				open = true
				start = prev.Time
			}
			sum.TotalDistance += diff
			current += diff
			sum.Daily[curr.Time.UTC().Format(dayLayout)] += diff
		case diff <= cfg.noise && diff > cfg.reset:
			// sensor noise; an open session stays open
		case diff <= cfg.reset || dt >= cfg.stopGap:
			closeSession(prev.Time)
		}
	}
	closeSession(odometer[len(odometer)-1].Time)

	sum.SessionCount = len(sum.Sessions)
	sum.DrivingTimeSeconds = driving.Seconds()
	sum.DrivingTimeFormatted = FormatDuration(driving)
	return sum
}

// FormatDuration renders a duration as "1h 2m 3s", dropping leading zero units.
func FormatDuration(d time.Duration) string {
	secs := int64(d.Seconds())
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
