package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	. "github.com/smartystreets/goconvey/convey"
)

func value(m prometheus.Metric) float64 {
	var out dto.Metric
	if err := m.Write(&out); err != nil {
		return -1
	}
	switch {
	case out.Counter != nil:
		return out.Counter.GetValue()
	case out.Gauge != nil:
		return out.Gauge.GetValue()
	}
	return -1
}

func TestManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then defaults are applied", func() {
				So(manager, ShouldNotBeNil)
				So(manager.Enabled(), ShouldBeTrue)
				So(manager.RefreshInterval(), ShouldEqual, defaultRefreshInterval)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("fleet"),
				WithSubsystem("battery"),
				WithMetricPrefix("v2"),
				WithHistogramBuckets([]float64{1.0, 0.1, 0.5}),
				WithMetricsEnabled(false),
				WithRefreshInterval(5*time.Second),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then metric names carry namespace, subsystem and prefix", func() {
				manager.readingsAccepted.Add(3)
				families, err := registry.Gather()
				So(err, ShouldBeNil)

				var found bool
				for _, mf := range families {
					if mf.GetName() == "fleet_battery_v2_readings_accepted_total" {
						found = true
						So(mf.GetMetric()[0].GetLabel()[0].GetName(), ShouldEqual, "env")
					}
				}
				So(found, ShouldBeTrue)
			})

			Convey("Then the options are kept", func() {
				So(manager.Enabled(), ShouldBeFalse)
				So(manager.RefreshInterval(), ShouldEqual, 5*time.Second)
				So(manager.histogramBuckets, ShouldResemble, []float64{0.1, 0.5, 1.0})
			})
		})

		Convey("When invalid option values are given", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace(""),
				WithSubsystem(""),
				WithMetricPrefix(""),
				WithHistogramBuckets(nil),
				WithCustomLabels(nil),
				WithRefreshInterval(-time.Second),
				WithPrometheusRegistry(nil),
				WithPrometheusRegistry(registry),
			)

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "evpulse")
				So(manager.subsystem, ShouldEqual, "analytics")
				So(manager.metricPrefix, ShouldEqual, "")
				So(manager.histogramBuckets, ShouldResemble, prometheus.DefBuckets)
				So(manager.RefreshInterval(), ShouldEqual, defaultRefreshInterval)
			})
		})
	})
}

func TestGlobalRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		So(Default(), ShouldNotBeNil)
		So(Check(), ShouldBeNil)

		Convey("When readings are accepted and dropped", func() {
			before := value(Default().readingsAccepted)
			RecordReadingsAccepted(5)
			RecordReadingsAccepted(0)
			RecordReadingsDropped("invalid_value", 2)

			Convey("Then the counters move by the given amounts", func() {
				So(value(Default().readingsAccepted)-before, ShouldEqual, 5)
				So(value(Default().readingsDropped.WithLabelValues("invalid_value")), ShouldBeGreaterThanOrEqualTo, 2)
			})
		})

		Convey("When a duplicate batch is counted", func() {
			before := value(Default().duplicateBatches)
			RecordDuplicateBatch()

			Convey("Then the counter moves by one", func() {
				So(value(Default().duplicateBatches)-before, ShouldEqual, 1)
			})
		})

		Convey("When gauges are updated", func() {
			UpdateScoredDevices(12)
			UpdateAnomalies("critical", 3)
			UpdateQueueSize(7)
			UpdateWorkerCount(4)

			Convey("Then they hold the last value", func() {
				So(value(Default().scoredDevices), ShouldEqual, 12)
				So(value(Default().anomalies.WithLabelValues("critical")), ShouldEqual, 3)
				So(value(Default().queueSize), ShouldEqual, 7)
				So(value(Default().workerCount), ShouldEqual, 4)
			})
		})

		Convey("When the remaining recorders are called", func() {
			So(func() {
				RecordSourceQuery("sqlite", 1.5)
				RecordSourceQueryError("sqlite")
				RecordAnalysis("segments", 4.2)
				RecordDeviceFailure("fleet_sessions")
				RecordStoreSnapshot(0.3)
				RecordHTTPRequest("/stats", "GET", "200")
				RecordHTTPRequestDuration("/stats", "GET", "200", 1)
				UpdateQueueCapacity(64)
				UpdateQueueUtilization(0.25)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError()
				RecordWorkerProcessingLatency(2)
				RecordWorkerError()
				RecordWorkerPanic()
				RecordErrorByComponent("api", "bad_request")
				CollectSystemMetrics()
			}, ShouldNotPanic)
		})
	})
}

func TestDisabledManager(t *testing.T) {
	Convey("Given a disabled global manager", t, func() {
		saved := globalManager
		globalManager = NewManager(WithMetricsEnabled(false), WithPrometheusRegistry(prometheus.NewRegistry()))
		defer func() { globalManager = saved }()

		Convey("Then recording is a no-op", func() {
			RecordReadingsAccepted(10)
			UpdateScoredDevices(9)
			So(value(globalManager.readingsAccepted), ShouldEqual, 0)
			So(value(globalManager.scoredDevices), ShouldEqual, 0)
			So(Check(), ShouldEqual, ErrMetricsDisabled)
		})
	})
}

func TestConcurrentRecording(t *testing.T) {
	Convey("Given concurrent recorders", t, func() {
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					RecordAnalysis("scores", float64(j))
					UpdateQueueSize(j)
					RecordHTTPRequest("/analytics/scores", "GET", "200")
				}
			}()
		}
		wg.Wait()

		Convey("Then nothing panics", func() {
			So(value(Default().analyses.WithLabelValues("scores")), ShouldBeGreaterThanOrEqualTo, 1000)
		})
	})
}
