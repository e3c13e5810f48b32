package simulate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/evpulse/internal/domain/telemetry"
	. "github.com/smartystreets/goconvey/convey"
)

func sinkRows() []telemetry.Row {
	at := time.Date(2023, 3, 1, 8, 0, 0, 0, time.UTC)
	return []telemetry.Row{
		{DeviceID: "ev-1", CarType: "GV60", Field: "soc", Time: at, Value: 55.0},
		{DeviceID: "ev-1", CarType: "GV60", Field: "soh", Time: at, Value: "NaN"},
	}
}

func TestHTTPSink(t *testing.T) {
	Convey("Given a service that drops the first upload", t, func() {
		var calls atomic.Int64
		var ids []string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body batchPayload
			_ = json.NewDecoder(r.Body).Decode(&body)
			ids = append(ids, body.BatchID)
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(ackResponse{Status: "accepted", Accepted: len(body.Readings)})
		}))
		defer srv.Close()

		sink := NewHTTPSink(NewHTTPClient(srv.URL, time.Second))

		Convey("When a batch is written", func() {
			err := sink.Write(context.Background(), sinkRows())

			Convey("Then it is retried under the same batch id", func() {
				So(err, ShouldBeNil)
				So(calls.Load(), ShouldEqual, 2)
				So(ids[0], ShouldNotBeEmpty)
				So(ids[1], ShouldEqual, ids[0])
			})
		})
	})

	Convey("Given a service that already stored the batch", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(ackResponse{Status: "duplicate", Duplicate: true})
		}))
		defer srv.Close()

		Convey("Then the duplicate counts as written", func() {
			err := NewHTTPSink(NewHTTPClient(srv.URL, time.Second)).Write(context.Background(), sinkRows())
			So(err, ShouldBeNil)
		})
	})

	Convey("Given a service that rejects the batch", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, `{"code":"bad_request"}`, http.StatusBadRequest)
		}))
		defer srv.Close()

		Convey("Then a StatusError is returned", func() {
			err := NewHTTPSink(NewHTTPClient(srv.URL, time.Second)).Write(context.Background(), sinkRows())
			status, ok := err.(*StatusError)
			So(ok, ShouldBeTrue)
			So(status.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}
