// Package metrics provides Prometheus metrics for the evpulse analytics service.
package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval    = 10 * time.Second
	nanosecondsPerMillisecond = 1e6
)

// Manager manages all Prometheus metrics for the evpulse service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Ingest Metrics - what the readings store handed us
	readingsAccepted   prometheus.Counter
	readingsDropped    *prometheus.CounterVec
	sourceQueryLatency *prometheus.HistogramVec
	sourceQueryErrors  *prometheus.CounterVec
	duplicateBatches   prometheus.Counter

	// Analysis Metrics - the derivation pipeline
	analyses        *prometheus.CounterVec
	analysisLatency *prometheus.HistogramVec
	deviceFailures  *prometheus.CounterVec
	scoredDevices   prometheus.Gauge
	anomalies       *prometheus.GaugeVec

	// Store Metrics - ranked score snapshots
	storeSnapshotRebuildDuration prometheus.Histogram
	storeSnapshotLastUnix        prometheus.Gauge
	storeSnapshotCount           prometheus.Counter

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Queue Metrics - per-device job queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueueRate   prometheus.Counter
	queueDequeueRate   prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Worker Metrics - per-device processing
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter
	workerPanics            prometheus.Counter

	// Error Metrics
	errorRateByComponent *prometheus.CounterVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "evpulse",
		subsystem:        "analytics",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.readingsAccepted = auto.NewCounter(m.counterOpts("readings_accepted_total",
		"Total number of raw readings accepted into a series"))
	m.readingsDropped = auto.NewCounterVec(m.counterOpts("readings_dropped_total",
		"Total number of raw readings discarded, by reason"), []string{"reason"})
	m.sourceQueryLatency = auto.NewHistogramVec(m.histogramOpts("source_query_duration_milliseconds",
		"Readings source query latency in milliseconds", m.histogramBuckets), []string{"source"})
	m.sourceQueryErrors = auto.NewCounterVec(m.counterOpts("source_query_errors_total",
		"Total number of failed readings source queries"), []string{"source"})
	m.duplicateBatches = auto.NewCounter(m.counterOpts("duplicate_batches_total",
		"Total number of ingest batches ignored as duplicates"))

	m.analyses = auto.NewCounterVec(m.counterOpts("analyses_total",
		"Total number of analyses served, by operation"), []string{"operation"})
	m.analysisLatency = auto.NewHistogramVec(m.histogramOpts("analysis_duration_milliseconds",
		"End-to-end analysis latency in milliseconds, by operation", m.histogramBuckets), []string{"operation"})
	m.deviceFailures = auto.NewCounterVec(m.counterOpts("device_failures_total",
		"Total number of per-device failures isolated during an analysis"), []string{"operation"})
	m.scoredDevices = auto.NewGauge(m.gaugeOpts("scored_devices",
		"Number of devices in the latest ranked score snapshot"))
	m.anomalies = auto.NewGaugeVec(m.gaugeOpts("anomalies",
		"Number of anomalous devices in the latest detection run, by risk"), []string{"risk"})

	m.storeSnapshotRebuildDuration = auto.NewHistogram(m.histogramOpts("store_snapshot_rebuild_duration_milliseconds",
		"Duration to rebuild the ranked score snapshot in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}))
	m.storeSnapshotLastUnix = auto.NewGauge(m.gaugeOpts("store_snapshot_last_unix",
		"Unix time of the last ranked score snapshot"))
	m.storeSnapshotCount = auto.NewCounter(m.counterOpts("store_snapshot_total",
		"Total number of ranked score snapshots published"))

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total",
		"Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", m.histogramBuckets),
		[]string{"endpoint", "method", "status_code"})

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Current number of queued device jobs"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Capacity of the device job queue"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("queue_utilization", "Queue size over capacity"))
	m.queueEnqueueRate = auto.NewCounter(m.counterOpts("queue_enqueue_total", "Total number of enqueued jobs"))
	m.queueDequeueRate = auto.NewCounter(m.counterOpts("queue_dequeue_total", "Total number of dequeued jobs"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total", "Total number of rejected enqueues"))

	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count", "Number of running workers"))
	m.workerProcessingLatency = auto.NewHistogram(m.histogramOpts("worker_processing_latency_milliseconds",
		"Per-device job latency in milliseconds", m.histogramBuckets))
	m.workerErrors = auto.NewCounter(m.counterOpts("worker_errors_total", "Total number of failed device jobs"))
	m.workerPanics = auto.NewCounter(m.counterOpts("worker_panics_total", "Total number of recovered device job panics"))

	m.errorRateByComponent = auto.NewCounterVec(m.counterOpts("errors_by_component_total",
		"Total number of errors by component"), []string{"component", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "System memory usage in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts("system_gc_pause_time_milliseconds",
		"GC pause time in milliseconds", []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}))
}

// RefreshInterval returns the configured interval for polling gauges.
func (m *Manager) RefreshInterval() time.Duration { return m.refreshInterval }

// Enabled reports whether metric recording is on.
func (m *Manager) Enabled() bool { return m.enabled }

// Ingest Metrics Functions.

// RecordReadingsAccepted adds n to the accepted readings counter.
func RecordReadingsAccepted(n int) {
	if !globalManager.enabled || n <= 0 {
		return
	}
	globalManager.readingsAccepted.Add(float64(n))
}

// RecordReadingsDropped adds n to the dropped readings counter for reason.
func RecordReadingsDropped(reason string, n int) {
	if !globalManager.enabled || n <= 0 {
		return
	}
	globalManager.readingsDropped.WithLabelValues(reason).Add(float64(n))
}

// RecordDuplicateBatch counts an ingest batch ignored as a duplicate.
func RecordDuplicateBatch() {
	if !globalManager.enabled {
		return
	}
	globalManager.duplicateBatches.Inc()
}

// RecordSourceQuery records a readings source query latency.
func RecordSourceQuery(source string, latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.sourceQueryLatency.WithLabelValues(source).Observe(latencyMs)
}

// RecordSourceQueryError increments the failed source query counter.
func RecordSourceQueryError(source string) {
	if !globalManager.enabled {
		return
	}
	globalManager.sourceQueryErrors.WithLabelValues(source).Inc()
}

// Analysis Metrics Functions.

// RecordAnalysis counts one served analysis and its latency.
func RecordAnalysis(operation string, latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.analyses.WithLabelValues(operation).Inc()
	globalManager.analysisLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordDeviceFailure counts one isolated per-device failure.
func RecordDeviceFailure(operation string) {
	if !globalManager.enabled {
		return
	}
	globalManager.deviceFailures.WithLabelValues(operation).Inc()
}

// UpdateScoredDevices sets the number of ranked devices.
func UpdateScoredDevices(count int) {
	if !globalManager.enabled {
		return
	}
	globalManager.scoredDevices.Set(float64(count))
}

// UpdateAnomalies sets the anomaly count for a risk tier.
func UpdateAnomalies(risk string, count int) {
	if !globalManager.enabled {
		return
	}
	globalManager.anomalies.WithLabelValues(risk).Set(float64(count))
}

// Store Metrics Functions.

// RecordStoreSnapshot records a snapshot publish and its rebuild duration.
func RecordStoreSnapshot(durationMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.storeSnapshotRebuildDuration.Observe(durationMs)
	globalManager.storeSnapshotLastUnix.Set(float64(time.Now().Unix()))
	globalManager.storeSnapshotCount.Inc()
}

// HTTP Metrics Functions.

// RecordHTTPRequest increments the HTTP request counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if !globalManager.enabled {
		return
	}
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Queue Metrics Functions.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	if !globalManager.enabled {
		return
	}
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	if !globalManager.enabled {
		return
	}
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	if !globalManager.enabled {
		return
	}
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	if !globalManager.enabled {
		return
	}
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	if !globalManager.enabled {
		return
	}
	globalManager.queueEnqueueErrors.Inc()
}

// Worker Metrics Functions.

// UpdateWorkerCount sets the number of running workers.
func UpdateWorkerCount(count int) {
	if !globalManager.enabled {
		return
	}
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records a device job latency in milliseconds.
func RecordWorkerProcessingLatency(latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	if !globalManager.enabled {
		return
	}
	globalManager.workerErrors.Inc()
}

// RecordWorkerPanic increments the recovered panic counter.
func RecordWorkerPanic() {
	if !globalManager.enabled {
		return
	}
	globalManager.workerPanics.Inc()
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	if !globalManager.enabled {
		return
	}
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	if !globalManager.enabled {
		return
	}
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	if !globalManager.enabled {
		return
	}
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// CollectSystemMetrics samples the Go runtime once.
func CollectSystemMetrics() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	UpdateSystemMemoryUsage(ms.Alloc)
	UpdateSystemGoroutineCount(runtime.NumGoroutine())
	if ms.NumGC > 0 {
		RecordSystemGCPauseTime(float64(ms.PauseTotalNs) / float64(ms.NumGC) / nanosecondsPerMillisecond)
	}
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Default returns the global manager.
func Default() *Manager {
	return globalManager
}
