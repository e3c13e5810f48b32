// Package segment classifies consecutive SOC samples into driving, charging
// and idle segments.
package segment

import (
	"math"
	"sort"
	"time"

	"github.com/okian/evpulse/internal/domain/distance"
	"github.com/okian/evpulse/internal/domain/telemetry"
)

// Classification thresholds.
const (
	SOCNoiseEps        = 0.05 // percent
	MinSegmentDuration = 2 * time.Minute
	JoinTolerance      = 60 * time.Second
	DriveMinDistance   = 0.05 // km
	LongHaulDistance   = 100.0
	ChargeMinSOCDelta  = 0.1 // percent
	// ChargeCurrentStart is the current magnitude above which a stationary
	// segment counts as charging. Pack current is negative while charging.
	ChargeCurrentStart = 5.0
	ParkedDuration     = 5 * time.Minute
)

// MainActivity is the coarse activity of a segment.
type MainActivity string

// SubActivity refines the main activity.
type SubActivity string

// Activity values.
const (
	Drive      MainActivity = "drive"
	Stationary MainActivity = "stationary"

	ShortHaul SubActivity = "short_haul"
	LongHaul  SubActivity = "long_haul"
	Charging  SubActivity = "charging"
	Stopped   SubActivity = "stopped"
	Parked    SubActivity = "parked"
)

// DrivingType labels a device's whole-period distance.
type DrivingType string

// Driving types.
const (
	DrivingShort DrivingType = "short_distance"
	DrivingLong  DrivingType = "long_distance"
)

// Segment is one classified interval between two consecutive SOC samples.
type Segment struct {
	MainActivity MainActivity `json:"main_activity"`
	SubActivity  SubActivity  `json:"sub_activity"`
	Season       string       `json:"season"`
	Start        time.Time    `json:"start_time"`
	End          time.Time    `json:"end_time"`
	SOH          float64      `json:"soh"`
	PackVolt     float64      `json:"pack_volt"`
	PackCurrent  float64      `json:"pack_current"`
	SOCStart     float64      `json:"soc_start"`
	SOCEnd       float64      `json:"soc_end"`
	SOCDelta     float64      `json:"soc_delta"`
	DistanceKm   float64      `json:"distance_km"`
	EnergyKWh    float64      `json:"energy_kwh"`
}

// Duration returns the segment length.
func (s Segment) Duration() time.Duration { return s.End.Sub(s.Start) }

// Input carries the synchronized series of one device.
type Input struct {
	SOC         telemetry.Series
	SOH         telemetry.Series
	PackVolt    telemetry.Series
	PackCurrent telemetry.Series
	Odometer    telemetry.Series
}

// InputFrom extracts the classifier input from a grouped device.
func InputFrom(d *telemetry.Device) Input {
	return Input{
		SOC:         d.Series(telemetry.FieldSOC),
		SOH:         d.Series(telemetry.FieldSOH),
		PackVolt:    d.Series(telemetry.FieldPackVolt),
		PackCurrent: d.Series(telemetry.FieldPackCurrent),
		Odometer:    d.Series(telemetry.FieldOdometer),
	}
}

// Summary counts segments by activity.
type Summary struct {
	Total    int `json:"total_segments"`
	Charging int `json:"charging_sessions"`
	Driving  int `json:"driving_sessions"`
	Idle     int `json:"idle_sessions"`
	Parked   int `json:"parked_sessions"`
}

// Period is the span covered by the SOC series.
type Period struct {
	Start     time.Time `json:"start_time"`
	End       time.Time `json:"end_time"`
	TotalDays int       `json:"total_days"`
}

// Report is the classifier output for one device.
type Report struct {
	Segments       []Segment   `json:"segments"`
	Summary        Summary     `json:"summary"`
	DeviceDistance float64     `json:"device_distance"`
	DrivingType    DrivingType `json:"driving_type"`
	Period         Period      `json:"period"`
}

// Option tunes the odometer threshold used for segment distance.
type Option func(*settings)

type settings struct {
	reset float64
}

// WithResetThreshold overrides the odometer delta at or below which distance
// accumulation inside a segment stops.
func WithResetThreshold(km float64) Option {
	return func(s *settings) {
		if km < 0 {
			s.reset = km
		}
	}
}

// Classify walks each calendar month of the SOC series and emits a segment
// for every consecutive pair that clears the jitter and duration filters.
func Classify(in Input, opts ...Option) Report {
	cfg := settings{reset: distance.ResetThreshold}
	for _, opt := range opts {
		opt(&cfg)
	}

	rep := Report{Segments: []Segment{}, DrivingType: DrivingShort}

	for _, month := range byMonth(in.SOC) {
		for i := 1; i < len(month); i++ {
			if seg, ok := classifyPair(in, month[i-1], month[i], cfg); ok {
				rep.Segments = append(rep.Segments, seg)
			}
		}
	}
	sort.SliceStable(rep.Segments, func(i, j int) bool {
		return rep.Segments[i].Start.Before(rep.Segments[j].Start)
	})

	for _, s := range rep.Segments {
		rep.Summary.Total++
		switch {
		case s.MainActivity == Drive:
			rep.Summary.Driving++
		default:
			rep.Summary.Idle++
			if s.SubActivity == Charging {
				rep.Summary.Charging++
			}
			if s.SubActivity == Parked {
				rep.Summary.Parked++
			}
		}
	}

	if len(in.Odometer) > 0 {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, r := range in.Odometer {
			lo = math.Min(lo, r.Value)
			hi = math.Max(hi, r.Value)
		}
		rep.DeviceDistance = hi - lo
	}
	if rep.DeviceDistance >= LongHaulDistance {
		rep.DrivingType = DrivingLong
	}

	if first, ok := firstReading(in.SOC); ok {
		last, _ := in.SOC.Latest()
		span := last.Time.Sub(first.Time)
		rep.Period = Period{
			Start:     first.Time,
			End:       last.Time,
			TotalDays: int(math.Ceil(span.Hours() / 24)),
		}
	}
	return rep
}

func classifyPair(in Input, prev, curr telemetry.Reading, cfg settings) (Segment, bool) {
	delta := curr.Value - prev.Value
	if math.Abs(delta) < SOCNoiseEps {
		return Segment{}, false
	}
	dur := curr.Time.Sub(prev.Time)
	if dur < MinSegmentDuration {
		return Segment{}, false
	}

	dist := segmentDistance(in.Odometer, prev.Time, curr.Time, cfg)
	volt := meanOfEnds(in.PackVolt, prev.Time, curr.Time)
	current := segmentCurrent(in.PackCurrent, prev.Time, curr.Time)
	soh, _ := in.SOH.Nearest(prev.Time, JoinTolerance)

	seg := Segment{
		Season:      Season(prev.Time),
		Start:       prev.Time,
		End:         curr.Time,
		SOH:         soh,
		PackVolt:    volt,
		PackCurrent: current,
		SOCStart:    prev.Value,
		SOCEnd:      curr.Value,
		SOCDelta:    delta,
		DistanceKm:  dist,
		EnergyKWh:   volt * current * dur.Hours() / 1000,
	}

	switch {
	case dist > DriveMinDistance && delta < 0:
		seg.MainActivity = Drive
		seg.SubActivity = ShortHaul
		if dist >= LongHaulDistance {
			seg.SubActivity = LongHaul
		}
	case delta > ChargeMinSOCDelta && current < -ChargeCurrentStart:
		seg.MainActivity = Stationary
		seg.SubActivity = Charging
	default:
		seg.MainActivity = Stationary
		seg.SubActivity = Stopped
		if dur >= ParkedDuration {
			seg.SubActivity = Parked
		}
	}
	return seg, true
}

// segmentDistance sums positive odometer deltas inside [start, end], skipping
// noise and stopping at the first reset. With at most one sample in the
// window it falls back to the nearest samples around the segment ends.
func segmentDistance(odo telemetry.Series, start, end time.Time, cfg settings) float64 {
	window := odo.Window(start, end)
	if len(window) <= 1 {
		a, okA := odo.Nearest(start, JoinTolerance)
		b, okB := odo.Nearest(end, JoinTolerance)
		if !okA || !okB {
			return 0
		}
		return math.Max(0, b-a)
	}

	var total float64
	for i := 1; i < len(window); i++ {
		switch diff := window[i].Value - window[i-1].Value; {
		case diff > 0:
			total += diff
		case diff <= cfg.reset:
			return total
		}
	}
	return total
}

func meanOfEnds(s telemetry.Series, start, end time.Time) float64 {
	var vals []float64
	if v, ok := s.Nearest(start, JoinTolerance); ok {
		vals = append(vals, v)
	}
	if v, ok := s.Nearest(end, JoinTolerance); ok {
		vals = append(vals, v)
	}
	return telemetry.Mean(vals)
}

func segmentCurrent(s telemetry.Series, start, end time.Time) float64 {
	window := s.Window(start, end)
	if len(window) > 0 {
		return telemetry.Median(window.Values())
	}
	return meanOfEnds(s, start, end)
}

// byMonth splits the SOC series into UTC calendar months, in time order.
func byMonth(soc telemetry.Series) []telemetry.Series {
	var (
		out     []telemetry.Series
		lastKey string
	)
	for _, r := range soc {
		key := r.Time.UTC().Format("2006-01")
		if len(out) == 0 || key != lastKey {
			out = append(out, telemetry.Series{})
			lastKey = key
		}
		out[len(out)-1] = append(out[len(out)-1], r)
	}
	return out
}

func firstReading(s telemetry.Series) (telemetry.Reading, bool) {
	if len(s) == 0 {
		return telemetry.Reading{}, false
	}
	return s[0], true
}

// Season names the meteorological season of t (northern hemisphere, UTC).
func Season(t time.Time) string {
	switch m := t.UTC().Month(); {
	case m >= time.March && m <= time.May:
		return "spring"
	case m >= time.June && m <= time.August:
		return "summer"
	case m >= time.September && m <= time.November:
		return "autumn"
	default:
		return "winter"
	}
}
