// Package charging reconstructs charge sessions from SOC, current and voltage
// series independently of the segment classifier.
package charging

import (
	"math"
	"time"

	"github.com/okian/evpulse/internal/domain/telemetry"
)

// Detector thresholds.
const (
	StartSOCDelta = 0.1 // percent between consecutive samples
	MaxGap        = 30 * time.Minute
	// FastCurrent is the average current magnitude above which a session is
	// fast charging. Pack current is negative while charging, so the
	// comparison is made on |avg_current|.
	FastCurrent = 50.0
)

// Session is one reconstructed charge.
type Session struct {
	Start           time.Time `json:"start_time"`
	End             time.Time `json:"end_time"`
	StartSOC        float64   `json:"start_soc"`
	EndSOC          float64   `json:"end_soc"`
	SOCIncrease     float64   `json:"soc_increase"`
	DurationMinutes float64   `json:"duration_minutes"`
	AvgCurrent      float64   `json:"avg_current"`
	AvgVoltage      float64   `json:"avg_voltage"`
	EnergyKWh       float64   `json:"energy_kwh"`
	Fast            bool      `json:"is_fast_charging"`
}

// Summary aggregates all sessions of a device.
type Summary struct {
	TotalSessions       int       `json:"total_sessions"`
	TotalHours          float64   `json:"total_charging_time_hours"`
	TotalEnergyKWh      float64   `json:"total_energy_kwh"`
	FastSessions        int       `json:"fast_charging_sessions"`
	SlowSessions        int       `json:"slow_charging_sessions"`
	AvgEnergyPerSession float64   `json:"avg_energy_per_session"`
	Sessions            []Session `json:"sessions"`
}

// Input carries the series the detector reads.
type Input struct {
	SOC         telemetry.Series
	PackCurrent telemetry.Series
	PackVolt    telemetry.Series
}

// InputFrom extracts detector input from a grouped device.
func InputFrom(d *telemetry.Device) Input {
	return Input{
		SOC:         d.Series(telemetry.FieldSOC),
		PackCurrent: d.Series(telemetry.FieldPackCurrent),
		PackVolt:    d.Series(telemetry.FieldPackVolt),
	}
}

// Option tunes the detector.
type Option func(*settings)

type settings struct {
	startDelta  float64
	maxGap      time.Duration
	fastCurrent float64
}

// WithMaxGap overrides the sample gap that ends a session.
func WithMaxGap(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.maxGap = d
		}
	}
}

// WithFastCurrent overrides the fast charging current, in amperes.
func WithFastCurrent(a float64) Option {
	return func(s *settings) {
		if a > 0 {
			s.fastCurrent = a
		}
	}
}

// Detect folds the SOC series into charge sessions. A session opens on an
// SOC rise above StartSOCDelta, extends while SOC keeps rising within the
// gap limit and closes otherwise. A session still open after the last
// sample is closed at its last extension.
func Detect(in Input, opts ...Option) Summary {
	cfg := settings{startDelta: StartSOCDelta, maxGap: MaxGap, fastCurrent: FastCurrent}
	for _, opt := range opts {
		opt(&cfg)
	}

	sum := Summary{Sessions: []Session{}}
	var (
		open    bool
		session Session
	)
	flush := func() {
		if !open {
			return
		}
		sum.Sessions = append(sum.Sessions, finish(session, in, cfg))
		open = false
	}

	soc := in.SOC
	for i := 1; i < len(soc); i++ {
		prev, curr := soc[i-1], soc[i]
		gap := curr.Time.Sub(prev.Time)

		if open {
			if curr.Value > prev.Value && gap <= cfg.maxGap {
				session.End = curr.Time
				session.EndSOC = curr.Value
				continue
			}
			flush()
		}
		if curr.Value > prev.Value+cfg.startDelta {
			open = true
			session = Session{
				Start:    prev.Time,
				End:      curr.Time,
				StartSOC: prev.Value,
				EndSOC:   curr.Value,
			}
		}
	}
	flush()

	for _, s := range sum.Sessions {
		sum.TotalSessions++
		sum.TotalHours += s.DurationMinutes / 60
		sum.TotalEnergyKWh += s.EnergyKWh
		if s.Fast {
			sum.FastSessions++
		}
	}
	sum.SlowSessions = sum.TotalSessions - sum.FastSessions
	sum.AvgEnergyPerSession = telemetry.SafeDiv(sum.TotalEnergyKWh, float64(sum.TotalSessions))
	return sum
}

func finish(s Session, in Input, cfg settings) Session {
	s.SOCIncrease = s.EndSOC - s.StartSOC
	s.DurationMinutes = s.End.Sub(s.Start).Minutes()
	s.AvgCurrent = telemetry.Mean(in.PackCurrent.Window(s.Start, s.End).Values())
	s.AvgVoltage = telemetry.Mean(in.PackVolt.Window(s.Start, s.End).Values())

	magnitude := math.Abs(s.AvgCurrent)
	s.EnergyKWh = magnitude * s.AvgVoltage * (s.DurationMinutes / 60) / 1000
	s.Fast = magnitude > cfg.fastCurrent
	return s
}
