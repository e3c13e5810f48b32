package simulate_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/evpulse/internal/adapters/http/api"
	"github.com/okian/evpulse/internal/adapters/readings"
	service "github.com/okian/evpulse/internal/app"
	"github.com/okian/evpulse/internal/domain/telemetry"
	"github.com/okian/evpulse/internal/simulate"
	. "github.com/smartystreets/goconvey/convey"
)

func config() simulate.Config {
	return simulate.Config{
		Devices:   5,
		Days:      2,
		Interval:  30 * time.Minute,
		Seed:      3,
		Workers:   2,
		BatchSize: 250,
		Timeout:   5 * time.Second,
	}
}

type failingWriter struct{}

func (failingWriter) Query(context.Context, readings.Query) ([]telemetry.Row, error) { return nil, nil }
func (failingWriter) Close() error { return nil }
func (failingWriter) Insert(context.Context, []telemetry.Row) error {
	return errors.New("disk full")
}

func TestSeed(t *testing.T) {
	Convey("Given an in-memory store", t, func() {
		ctx := context.Background()
		mem := readings.NewMemorySource()

		Convey("When it is seeded", func() {
			n, err := simulate.Seed(ctx, config(), mem)

			Convey("Then every generated row is stored", func() {
				So(err, ShouldBeNil)
				rows, err := mem.Query(ctx, readings.Query{})
				So(err, ShouldBeNil)
				So(len(rows), ShouldEqual, n)
			})
		})
	})

	Convey("Given a store that rejects writes", t, func() {
		_, err := simulate.Seed(context.Background(), config(), failingWriter{})

		Convey("Then the run is reported incomplete", func() {
			So(errors.Is(err, simulate.ErrIncomplete), ShouldBeTrue)
		})
	})
}

func TestRun_SQLite(t *testing.T) {
	Convey("Given a SQLite target", t, func() {
		ctx := context.Background()
		cfg := config()
		cfg.DBPath = filepath.Join(t.TempDir(), "fleet.db")

		Convey("When the simulation runs", func() {
			stats, err := simulate.Run(ctx, cfg)

			Convey("Then every row is written and every device is visible", func() {
				So(err, ShouldBeNil)
				So(stats.RowsWritten, ShouldEqual, stats.RowsGenerated)
				So(stats.BatchesFailed, ShouldEqual, 0)
				So(stats.FleetDevices, ShouldEqual, 5)
			})
		})
	})
}

func TestRun_HTTP(t *testing.T) {
	Convey("Given a running service", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithWorkerCount(2), service.WithQueueSize(8))
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		mux := http.NewServeMux()
		api.NewServer(svc, svc).Register(mux)
		srv := httptest.NewServer(mux)
		defer srv.Close()

		cfg := config()
		cfg.BaseURL = srv.URL

		Convey("When the simulation posts to it", func() {
			stats, err := simulate.Run(ctx, cfg)

			Convey("Then the service sees the whole fleet", func() {
				So(err, ShouldBeNil)
				So(stats.RowsWritten, ShouldEqual, stats.RowsGenerated)
				So(stats.FleetDevices, ShouldEqual, 5)
				So(stats.LeaderboardTop, ShouldNotBeEmpty)
			})
		})
	})

	Convey("Given no service at the base URL", t, func() {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()
		cfg := config()
		cfg.BaseURL = srv.URL

		Convey("Then the health check fails", func() {
			_, err := simulate.Run(context.Background(), cfg)
			So(err, ShouldNotBeNil)
		})
	})
}
