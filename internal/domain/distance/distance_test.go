package distance_test

import (
	"testing"
	"time"

	"github.com/okian/evpulse/internal/domain/distance"
	"github.com/okian/evpulse/internal/domain/telemetry"
	. "github.com/smartystreets/goconvey/convey"
)

var t0 = time.Date(2023, 5, 10, 23, 58, 0, 0, time.UTC)

// minuteSeries builds an odometer series with one sample per minute.
func minuteSeries(values ...float64) telemetry.Series {
	s := make(telemetry.Series, len(values))
	for i, v := range values {
		s[i] = telemetry.Reading{Time: t0.Add(time.Duration(i) * time.Minute), Value: v}
	}
	return s
}

func TestReconstruct_Insufficient(t *testing.T) {
	Convey("Given fewer than two odometer samples", t, func() {
		Convey("An empty series yields a zeroed summary", func() {
			sum := distance.Reconstruct(nil)
			So(sum.InsufficientData, ShouldBeTrue)
			So(sum.TotalDistance, ShouldEqual, 0)
			So(sum.Sessions, ShouldBeEmpty)
			So(sum.Daily, ShouldBeEmpty)
			So(sum.SessionCount, ShouldEqual, 0)
			So(sum.DrivingTimeFormatted, ShouldEqual, "0s")
		})

		Convey("A single sample reports its odometer reading only", func() {
			sum := distance.Reconstruct(minuteSeries(1234))
			So(sum.InsufficientData, ShouldBeTrue)
			So(sum.MinOdometer, ShouldEqual, 1234)
			So(sum.MaxOdometer, ShouldEqual, 1234)
			So(sum.TotalDistance, ShouldEqual, 0)
		})
	})
}

func TestReconstruct_MonotonicSeries(t *testing.T) {
	Convey("Given an odometer series with only positive deltas", t, func() {
		s := minuteSeries(1000, 1002, 1005, 1011, 1020)
		sum := distance.Reconstruct(s)

		Convey("Then the total equals last minus first", func() {
			So(sum.TotalDistance, ShouldEqual, 1020-1000)
		})

		Convey("Then a single session spans the whole series", func() {
			So(sum.SessionCount, ShouldEqual, 1)
			So(sum.Sessions[0].Start, ShouldEqual, s[0].Time)
			So(sum.Sessions[0].End, ShouldEqual, s[4].Time)
			So(sum.Sessions[0].DistanceKm, ShouldEqual, 20)
			So(sum.DrivingTimeSeconds, ShouldEqual, 240)
			So(sum.DrivingTimeFormatted, ShouldEqual, "4m 0s")
		})

		Convey("Then daily buckets are keyed by the UTC date of the later sample", func() {
			So(sum.Daily["2023-05-10"], ShouldEqual, 2)
			So(sum.Daily["2023-05-11"], ShouldEqual, 18)
		})

		Convey("Then min and max odometer are reported", func() {
			So(sum.MinOdometer, ShouldEqual, 1000)
			So(sum.MaxOdometer, ShouldEqual, 1020)
		})
	})
}

func TestReconstruct_ThresholdBoundaries(t *testing.T) {
	Convey("Given a session interrupted by a single negative delta", t, func() {
		build := func(drop float64) distance.Summary {
			// +10, drop, +5 with one-minute spacing
			return distance.Reconstruct(minuteSeries(100, 110, 110+drop, 115+drop))
		}

		Convey("A delta of exactly -1 is noise", func() {
			sum := build(-1)
			So(sum.SessionCount, ShouldEqual, 1)
			So(sum.TotalDistance, ShouldEqual, 15)
		})

		Convey("A delta of -1.0001 is noise", func() {
			sum := build(-1.0001)
			So(sum.SessionCount, ShouldEqual, 1)
			So(sum.TotalDistance, ShouldAlmostEqual, 15, 1e-9)
		})

		Convey("A delta of exactly -50 is a reset", func() {
			sum := build(-50)
			So(sum.SessionCount, ShouldEqual, 2)
			So(sum.TotalDistance, ShouldEqual, 15)
			So(sum.Sessions[0].DistanceKm, ShouldEqual, 10)
			So(sum.Sessions[0].End, ShouldEqual, t0.Add(time.Minute))
			So(sum.Sessions[1].DistanceKm, ShouldEqual, 5)
		})

		Convey("A delta of -50.0001 is a reset", func() {
			sum := build(-50.0001)
			So(sum.SessionCount, ShouldEqual, 2)
			So(sum.Sessions[0].DistanceKm, ShouldEqual, 10)
			So(sum.TotalDistance, ShouldAlmostEqual, 15, 1e-9)
		})

		Convey("A small decrease above the noise threshold leaves the session open", func() {
			sum := build(-0.5)
			So(sum.SessionCount, ShouldEqual, 1)
			So(sum.TotalDistance, ShouldEqual, 15)
		})
	})
}

func TestReconstruct_ResetNeverCounts(t *testing.T) {
	Convey("Given a reset in the middle of a drive", t, func() {
		sum := distance.Reconstruct(minuteSeries(5000, 5010, 20, 25))

		Convey("Then the reset closes the open session and adds no distance", func() {
			So(sum.TotalDistance, ShouldEqual, 15)
			So(sum.SessionCount, ShouldEqual, 2)
			So(sum.Sessions[0].DistanceKm, ShouldEqual, 10)
		})
	})
}

func TestReconstruct_DocumentedTrace(t *testing.T) {
	Convey("Given the odometer trace 100, 105, 102, 60, 65 at one-minute spacing", t, func() {
		sum := distance.Reconstruct(minuteSeries(100, 105, 102, 60, 65))

		Convey("Then -3 and -42 are both treated as noise, never as resets", func() {
			So(sum.TotalDistance, ShouldEqual, 10)
			So(sum.SessionCount, ShouldEqual, 1)
			So(sum.Sessions[0].Start, ShouldEqual, t0)
			So(sum.Sessions[0].End, ShouldEqual, t0.Add(4*time.Minute))
		})
	})
}

func TestReconstruct_StopGap(t *testing.T) {
	Convey("Given a long stop between two drives", t, func() {
		s := telemetry.Series{
			{Time: t0, Value: 10},
			{Time: t0.Add(time.Minute), Value: 12},
			{Time: t0.Add(11 * time.Minute), Value: 12},
			{Time: t0.Add(12 * time.Minute), Value: 15},
		}
		sum := distance.Reconstruct(s)

		Convey("Then the gap closes the first session at the last moving sample", func() {
			So(sum.SessionCount, ShouldEqual, 2)
			So(sum.Sessions[0].End, ShouldEqual, t0.Add(time.Minute))
			So(sum.Sessions[1].Start, ShouldEqual, t0.Add(11*time.Minute))
			So(sum.DrivingTimeSeconds, ShouldEqual, 120)
		})

		Convey("Then a wider stop gap option keeps a single session", func() {
			wide := distance.Reconstruct(s, distance.WithStopGap(time.Hour))
			So(wide.SessionCount, ShouldEqual, 1)
		})
	})
}

func TestFormatDuration(t *testing.T) {
	Convey("Durations are rendered with the largest non-zero unit first", t, func() {
		So(distance.FormatDuration(45*time.Second), ShouldEqual, "45s")
		So(distance.FormatDuration(61*time.Second), ShouldEqual, "1m 1s")
		So(distance.FormatDuration(3723*time.Second), ShouldEqual, "1h 2m 3s")
	})
}
