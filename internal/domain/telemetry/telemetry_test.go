package telemetry_test

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/okian/evpulse/internal/domain/telemetry"
	. "github.com/smartystreets/goconvey/convey"
)

var t0 = time.Date(2023, 3, 1, 8, 0, 0, 0, time.UTC)

func at(minutes float64) time.Time {
	return t0.Add(time.Duration(minutes * float64(time.Minute)))
}

func TestParseField(t *testing.T) {
	Convey("Given store field names", t, func() {
		Convey("Known names resolve regardless of case", func() {
			So(telemetry.ParseField("soc"), ShouldEqual, telemetry.FieldSOC)
			So(telemetry.ParseField(" Pack_Current "), ShouldEqual, telemetry.FieldPackCurrent)
			So(telemetry.ParseField("mod_avg_temp"), ShouldEqual, telemetry.FieldModAvgTemp)
		})

		Convey("Unknown names map to the unknown variant", func() {
			So(telemetry.ParseField("speed"), ShouldEqual, telemetry.FieldUnknown)
			So(telemetry.ParseField(""), ShouldEqual, telemetry.FieldUnknown)
		})

		Convey("String round-trips every known field", func() {
			for _, f := range telemetry.KnownFields() {
				So(telemetry.ParseField(f.String()), ShouldEqual, f)
			}
			So(telemetry.Field(99).String(), ShouldEqual, "unknown")
		})
	})
}

func TestParseValue(t *testing.T) {
	Convey("Given loosely typed values", t, func() {
		v, ok := telemetry.ParseValue(12.5)
		So(ok, ShouldBeTrue)
		So(v, ShouldEqual, 12.5)

		v, ok = telemetry.ParseValue("42")
		So(ok, ShouldBeTrue)
		So(v, ShouldEqual, 42)

		v, ok = telemetry.ParseValue(json.Number("3.25"))
		So(ok, ShouldBeTrue)
		So(v, ShouldEqual, 3.25)

		v, ok = telemetry.ParseValue(int64(7))
		So(ok, ShouldBeTrue)
		So(v, ShouldEqual, 7)

		for _, bad := range []any{nil, "NaN", "nan", "abc", "", math.NaN(), math.Inf(1), struct{}{}} {
			_, ok = telemetry.ParseValue(bad)
			So(ok, ShouldBeFalse)
		}
	})
}

func TestGroup(t *testing.T) {
	Convey("Given raw rows for two devices", t, func() {
		rows := []telemetry.Row{
			{DeviceID: "b", CarType: "GV60", Field: "soc", Time: at(2), Value: 50.0},
			{DeviceID: "a", CarType: "PORTER2", Field: "soc", Time: at(1), Value: "60"},
			{DeviceID: "b", Field: "soc", Time: at(1), Value: 51.0},
			{DeviceID: "b", Field: "soc", Time: at(1), Value: 51.5},
			{DeviceID: "b", Field: "soh", Time: at(3), Value: nil},
			{DeviceID: "b", Field: "soh", Time: at(3), Value: "NaN"},
			{DeviceID: "b", Field: "speed", Time: at(3), Value: 80.0},
			{DeviceID: "", Field: "soc", Time: at(3), Value: 1.0},
		}

		fleet, stats := telemetry.Group(rows)

		Convey("Then devices keep first-appearance order", func() {
			So(fleet.Order, ShouldResemble, []string{"b", "a"})
			So(len(fleet.List()), ShouldEqual, 2)
		})

		Convey("Then series are sorted and same-timestamp rows are kept", func() {
			b, ok := fleet.Device("b")
			So(ok, ShouldBeTrue)
			soc := b.Series(telemetry.FieldSOC)
			So(soc.Len(), ShouldEqual, 3)
			So(soc.Values(), ShouldResemble, []float64{51.0, 51.5, 50.0})
			So(b.CarType, ShouldEqual, "GV60")
			So(b.LastUpdated, ShouldEqual, at(2))
		})

		Convey("Then invalid rows are counted and discarded", func() {
			So(stats.Accepted, ShouldEqual, 4)
			So(stats.InvalidValue, ShouldEqual, 2)
			So(stats.UnknownField, ShouldEqual, 1)
			So(stats.MissingID, ShouldEqual, 1)
			So(stats.Dropped(), ShouldEqual, 4)
			b, _ := fleet.Device("b")
			So(b.Series(telemetry.FieldSOH), ShouldBeNil)
		})
	})
}

func TestSeriesLookups(t *testing.T) {
	Convey("Given a sorted series", t, func() {
		s := telemetry.Series{
			{Time: at(0), Value: 1},
			{Time: at(1), Value: 2},
			{Time: at(2), Value: 3},
			{Time: at(5), Value: 4},
		}

		Convey("Window is inclusive at both ends", func() {
			w := s.Window(at(1), at(2))
			So(w.Values(), ShouldResemble, []float64{2, 3})
			So(s.Window(at(3), at(4)), ShouldBeNil)
			So(s.Window(at(2), at(1)), ShouldBeNil)
		})

		Convey("Nearest honours the tolerance", func() {
			v, ok := s.Nearest(at(1.4), time.Minute)
			So(ok, ShouldBeTrue)
			So(v, ShouldEqual, 2)

			v, ok = s.Nearest(at(3.5), time.Minute)
			So(ok, ShouldBeFalse)
			So(v, ShouldEqual, 0)

			v, ok = s.Nearest(at(4.5), time.Minute)
			So(ok, ShouldBeTrue)
			So(v, ShouldEqual, 4)
		})

		Convey("Nearest prefers the earlier reading on ties", func() {
			v, ok := s.Nearest(at(0.5), time.Minute)
			So(ok, ShouldBeTrue)
			So(v, ShouldEqual, 1)
		})

		Convey("Latest returns the last reading", func() {
			r, ok := s.Latest()
			So(ok, ShouldBeTrue)
			So(r.Value, ShouldEqual, 4)
			_, ok = telemetry.Series(nil).Latest()
			So(ok, ShouldBeFalse)
		})
	})
}

func TestStatistics(t *testing.T) {
	Convey("Given small samples", t, func() {
		So(telemetry.Mean(nil), ShouldEqual, 0)
		So(telemetry.Mean([]float64{1, 2, 3}), ShouldEqual, 2)
		So(telemetry.Median([]float64{5, 1, 3}), ShouldEqual, 3)
		So(telemetry.Median([]float64{4, 1, 3, 2}), ShouldEqual, 2.5)
		So(telemetry.SampleStd([]float64{7}), ShouldEqual, 0)
		So(telemetry.SampleStd([]float64{2, 4}), ShouldAlmostEqual, math.Sqrt(2), 1e-12)
		So(telemetry.PopulationStd([]float64{2, 4}), ShouldEqual, 1)
		So(telemetry.SafeDiv(1, 0), ShouldEqual, 0)
		So(telemetry.Round2(1.23456), ShouldEqual, 1.23)
		So(telemetry.Clamp(120, 0, 100), ShouldEqual, 100)
	})
}
