package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/evpulse/internal/adapters/readings"
	"github.com/okian/evpulse/internal/adapters/repository"
	service "github.com/okian/evpulse/internal/app"
	"github.com/okian/evpulse/internal/domain/cohort"
	"github.com/okian/evpulse/internal/domain/forecast"
	"github.com/okian/evpulse/internal/domain/telemetry"
	"github.com/okian/evpulse/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

var now = t0.Add(21 * 24 * time.Hour)

func started(rows []telemetry.Row, opts ...service.Option) *service.Service {
	opts = append([]service.Option{
		service.WithSource(readings.NewMemorySource(rows...)),
		service.WithWorkerCount(4),
		service.WithQueueSize(8),
		service.WithClock(func() time.Time { return now }),
	}, opts...)
	svc := service.New(opts...)
	if err := svc.Start(context.Background()); err != nil {
		panic(err)
	}
	return svc
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithWorkerCount(3), service.WithQueueSize(16))

		Convey("When it has not been started", func() {
			_, err := svc.Scores(ctx, "")

			Convey("Then fleet work is refused", func() {
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
				So(svc.GetStats()["started"], ShouldBeFalse)
			})
		})

		Convey("When it is started twice and stopped", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			stats := svc.GetStats()
			So(stats["started"], ShouldBeTrue)
			So(stats["workerCount"], ShouldEqual, 3)
			So(stats["queueLength"], ShouldEqual, 0)

			So(svc.Stop(ctx), ShouldBeNil)

			Convey("Then stopping again is a no-op", func() {
				So(svc.Stop(ctx), ShouldBeNil)
				So(svc.GetStats()["started"], ShouldBeFalse)
			})
		})
	})
}

func TestService_Vehicle(t *testing.T) {
	Convey("Given a service with a trip, a charge and a fleet", t, func() {
		ctx := context.Background()
		rows := append(fleetRows(), tripRows("trip-1")...)
		rows = append(rows, chargeRows("chg-1")...)
		svc := started(rows)
		defer func() { _ = svc.Stop(ctx) }()

		Convey("When the driving summary of the trip is requested", func() {
			sum, err := svc.DrivingSummary(ctx, "trip-1")

			Convey("Then odometer drops are noise, not resets", func() {
				So(err, ShouldBeNil)
				So(sum.TotalDistance, ShouldEqual, 10)
				So(sum.SessionCount, ShouldEqual, 1)
			})
		})

		Convey("When the charging summary is requested", func() {
			sum, err := svc.ChargingSummary(ctx, "chg-1")

			Convey("Then one session is found from 20% to 80%", func() {
				So(err, ShouldBeNil)
				So(sum.TotalSessions, ShouldEqual, 1)
				So(sum.Sessions[0].SOCIncrease, ShouldEqual, 60)
				So(sum.Sessions[0].AvgCurrent, ShouldEqual, -40)
				So(sum.TotalEnergyKWh, ShouldBeGreaterThan, 0)
			})
		})

		Convey("When segments and a battery profile are requested", func() {
			rep, err := svc.Segments(ctx, "chg-1")
			So(err, ShouldBeNil)
			prof, err := svc.BatteryProfile(ctx, "p-00")
			So(err, ShouldBeNil)

			Convey("Then both are derived from the stored readings", func() {
				So(rep.Summary.Charging, ShouldBeGreaterThanOrEqualTo, 1)
				So(prof.DeviceID, ShouldEqual, "p-00")
				So(prof.LatestSOC, ShouldEqual, 60)
				So(prof.DataPoints.SOH, ShouldEqual, 20)
			})
		})

		Convey("When a forecast is requested", func() {
			res, err := svc.Forecast(ctx, "p-bad", 0)

			Convey("Then the default horizon and a cohort comparison are used", func() {
				So(err, ShouldBeNil)
				So(res.Status, ShouldEqual, forecast.StatusOK)
				So(res.Days, ShouldEqual, 30)
				So(len(res.Predictions), ShouldEqual, 30)
				So(res.Comparison, ShouldNotBeNil)
				So(res.Comparison.Compared, ShouldEqual, 11)
			})
		})

		Convey("When the forecast horizon is out of range", func() {
			_, err := svc.Forecast(ctx, "p-bad", 400)
			So(errors.Is(err, service.ErrInvalidHorizon), ShouldBeTrue)
			_, err = svc.Forecast(ctx, "p-bad", -1)
			So(errors.Is(err, service.ErrInvalidHorizon), ShouldBeTrue)
		})

		Convey("When an unknown device is requested", func() {
			_, err := svc.DrivingSummary(ctx, "nope")

			Convey("Then ErrDeviceNotFound is returned", func() {
				So(errors.Is(err, service.ErrDeviceNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestService_Fleet(t *testing.T) {
	Convey("Given a started service over a mixed fleet", t, func() {
		ctx := context.Background()
		svc := started(fleetRows())
		defer func() { _ = svc.Stop(ctx) }()

		Convey("When the fleet overview is requested", func() {
			ov, err := svc.FleetOverview(ctx)

			Convey("Then both car types are summarized", func() {
				So(err, ShouldBeNil)
				So(ov.TotalDevices, ShouldEqual, 13)
				So(len(ov.CarTypes), ShouldEqual, 2)
				So(ov.CarTypes[0].CarType, ShouldEqual, "GV60")
			})
		})

		Convey("When fleet sessions are requested for one car type", func() {
			rep, err := svc.FleetSessions(ctx, "gv60")

			Convey("Then every device of the type has a summary", func() {
				So(err, ShouldBeNil)
				So(rep.RunID, ShouldNotBeEmpty)
				So(len(rep.Devices), ShouldEqual, 2)
				So(rep.Failed, ShouldEqual, 0)
				So(rep.Devices[0].DeviceID, ShouldEqual, "g-1")
				So(rep.Devices[0].Driving.TotalDistance, ShouldEqual, 760)
				So(rep.Devices[0].Charging, ShouldNotBeNil)
			})
		})

		Convey("When anomalies are detected", func() {
			rep, err := svc.Anomalies(ctx, "", "")

			Convey("Then the degraded device leads the list", func() {
				So(err, ShouldBeNil)
				So(rep.Analyzed, ShouldEqual, 13)
				So(len(rep.Anomalies), ShouldBeGreaterThan, 0)
				So(rep.Anomalies[0].DeviceID, ShouldEqual, "p-bad")
				So(rep.Statistics.TotalAnomalies, ShouldEqual, len(rep.Anomalies))
				So(rep.Baselines["PORTER2"].Devices, ShouldEqual, 11)
			})
		})

		Convey("When anomalies are filtered to a type nobody has", func() {
			rep, err := svc.Anomalies(ctx, "", cohort.TypeTemp)

			Convey("Then the list is empty, not nil", func() {
				So(err, ShouldBeNil)
				So(rep.Anomalies, ShouldNotBeNil)
				So(rep.Anomalies, ShouldBeEmpty)
			})
		})

		Convey("When cohort baselines are requested", func() {
			bs, err := svc.CohortBaselines(ctx, "")

			Convey("Then there is one baseline per car type", func() {
				So(err, ShouldBeNil)
				So(len(bs), ShouldEqual, 2)
				So(bs["GV60"].SOH.N, ShouldEqual, 2)
			})
		})
	})
}

func TestService_Scores(t *testing.T) {
	Convey("Given a started service", t, func() {
		ctx := context.Background()
		svc := started(fleetRows(), service.WithMaxRankLimit(5))
		defer func() { _ = svc.Stop(ctx) }()

		Convey("When a device is ranked before any scoring run", func() {
			r, err := svc.Rank(ctx, "p-01")

			Convey("Then the fleet is scored on demand", func() {
				So(err, ShouldBeNil)
				So(r.Rank, ShouldBeGreaterThan, 0)
				So(svc.Snapshot(ctx).Devices, ShouldEqual, 13)
			})
		})

		Convey("When the whole fleet is scored", func() {
			rep, err := svc.Scores(ctx, "")
			So(err, ShouldBeNil)

			Convey("Then results are ranked and published", func() {
				So(rep.Total, ShouldEqual, 13)
				So(rep.Scores[0].Rank, ShouldEqual, 1)
				for i := 1; i < len(rep.Scores); i++ {
					So(rep.Scores[i-1].Overall, ShouldBeGreaterThanOrEqualTo, rep.Scores[i].Overall)
				}
				So(svc.Snapshot(ctx).RunID, ShouldEqual, rep.RunID)

				top, err := svc.TopN(ctx, 3)
				So(err, ShouldBeNil)
				So(len(top), ShouldEqual, 3)
				So(top[0].DeviceID, ShouldEqual, rep.Scores[0].DeviceID)
			})

			Convey("Then the degraded device ranks last", func() {
				r, err := svc.Rank(ctx, "p-bad")
				So(err, ShouldBeNil)
				So(r.Rank, ShouldEqual, 13)
			})
		})

		Convey("When only one car type is scored", func() {
			rep, err := svc.Scores(ctx, "GV60")

			Convey("Then the published snapshot is left alone", func() {
				So(err, ShouldBeNil)
				So(rep.Total, ShouldEqual, 2)
				So(svc.Snapshot(ctx).RunID, ShouldBeEmpty)
			})
		})

		Convey("When TopN gets a limit outside 1..max", func() {
			_, err0 := svc.TopN(ctx, 0)
			_, err6 := svc.TopN(ctx, 6)

			Convey("Then ErrInvalidLimit is returned", func() {
				So(errors.Is(err0, repository.ErrInvalidLimit), ShouldBeTrue)
				So(errors.Is(err6, repository.ErrInvalidLimit), ShouldBeTrue)
			})
		})

		Convey("When an unknown device is ranked", func() {
			_, err := svc.Rank(ctx, "ghost")
			So(errors.Is(err, service.ErrDeviceNotFound), ShouldBeTrue)
		})
	})
}

type readOnly struct{ readings.Source }

func TestService_Ingest(t *testing.T) {
	Convey("Given a service over a writable store", t, func() {
		ctx := context.Background()
		svc := started(nil)
		defer func() { _ = svc.Stop(ctx) }()

		Convey("When a trip is ingested", func() {
			n, dup, err := svc.Ingest(ctx, "", tripRows("new-1"))
			So(err, ShouldBeNil)
			So(dup, ShouldBeFalse)
			So(n, ShouldEqual, 5)

			Convey("Then it can be analyzed right away", func() {
				sum, err := svc.DrivingSummary(ctx, "new-1")
				So(err, ShouldBeNil)
				So(sum.TotalDistance, ShouldEqual, 10)
			})
		})

		Convey("When the same batch id is ingested twice", func() {
			_, first, err := svc.Ingest(ctx, "batch-1", tripRows("new-2"))
			So(err, ShouldBeNil)
			n, second, err := svc.Ingest(ctx, "batch-1", tripRows("new-2"))
			So(err, ShouldBeNil)

			Convey("Then the replay is not stored again", func() {
				So(first, ShouldBeFalse)
				So(second, ShouldBeTrue)
				So(n, ShouldEqual, 0)
				sum, err := svc.DrivingSummary(ctx, "new-2")
				So(err, ShouldBeNil)
				So(sum.TotalDistance, ShouldEqual, 10)
				So(svc.GetStats()["batchesSeen"], ShouldEqual, 1)
			})
		})
	})

	Convey("Given a service over a read-only store", t, func() {
		svc := service.New(service.WithSource(readOnly{readings.NewMemorySource()}))

		Convey("Then ingest is refused", func() {
			_, _, err := svc.Ingest(context.Background(), "batch-1", tripRows("new-1"))
			So(errors.Is(err, service.ErrReadOnly), ShouldBeTrue)
		})
	})
}
