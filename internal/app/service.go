// Package service provides the analytics service behind the HTTP API. It
// loads readings from the configured store, runs the per-device analyses and
// fans fleet-wide work out across the worker pool.
package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/okian/evpulse/internal/adapters/mq/queue"
	"github.com/okian/evpulse/internal/adapters/mq/worker"
	"github.com/okian/evpulse/internal/adapters/readings"
	"github.com/okian/evpulse/internal/adapters/repository"
	"github.com/okian/evpulse/internal/domain/dedupe"
	"github.com/okian/evpulse/internal/domain/distance"
	"github.com/okian/evpulse/internal/domain/scoring"
	"github.com/okian/evpulse/internal/domain/telemetry"
	"github.com/okian/evpulse/pkg/logger"
	"github.com/okian/evpulse/pkg/metrics"
)

// Defaults for the analysis window and thresholds.
var (
	DefaultRangeStart = time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	DefaultRangeStop  = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
)

const (
	defaultQueueSize       = 1024
	defaultMaxRankLimit    = 1000
	defaultForecastDays    = 30
	defaultMaxForecastDays = 365
	defaultAnomalyZ        = 2.5
)

// Service implements the API dependencies for the analytics system.
type Service struct {
	mu sync.RWMutex

	// Core components
	source readings.Source
	store  *repository.SnapshotStore
	queue  *queue.InMemoryQueue
	pool   *worker.Pool
	scorer *scoring.Scorer
	dedupe dedupe.Deduper

	// Configuration
	workerCount      int
	queueSize        int
	dedupeSize       int
	maxRankLimit     int
	rangeStart       time.Time
	rangeStop        time.Time
	resetThreshold   float64
	noiseThreshold   float64
	anomalyThreshold float64
	forecastDays     int
	maxForecastDays  int
	scorerOpts       []scoring.Option
	now              func() time.Time

	// State
	started bool

	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:      runtime.NumCPU() * 2,
		queueSize:        defaultQueueSize,
		dedupeSize:       dedupe.DefaultMaxSize,
		maxRankLimit:     defaultMaxRankLimit,
		rangeStart:       DefaultRangeStart,
		rangeStop:        DefaultRangeStop,
		resetThreshold:   distance.ResetThreshold,
		noiseThreshold:   distance.NoiseThreshold,
		anomalyThreshold: defaultAnomalyZ,
		forecastDays:     defaultForecastDays,
		maxForecastDays:  defaultMaxForecastDays,
		now:              time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.source == nil {
		s.source = readings.NewMemorySource()
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.scorer = scoring.NewScorer(s.scorerOpts...)
	s.dedupe = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.store = repository.NewSnapshotStore(
		repository.WithMaxLimit(s.maxRankLimit),
		repository.WithClock(s.now),
	)
	return s
}

// Start creates the job queue and starts the worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting analytics service...")

	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.queue)
	s.pool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "analytics service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Time("rangeStart", s.rangeStart),
		logger.Time("rangeStop", s.rangeStop),
	)
	return nil
}

// Stop drains the worker pool and closes the readings store.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.logger.Info(ctx, "stopping analytics service...")

	var err error
	if s.pool != nil {
		err = s.pool.Shutdown(ctx)
	}
	if cerr := s.source.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("close readings: %w", cerr)
	}

	s.started = false
	s.logger.Info(ctx, "analytics service stopped", logger.Int64("processed", s.pool.Processed()))
	return err
}

// enqueuer returns the queue when the service is running.
func (s *Service) enqueuer() (worker.Enqueuer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.queue, nil
}

// load queries the store within the configured time range and groups the
// rows. Dropped rows are counted per reason.
func (s *Service) load(ctx context.Context, q readings.Query) (telemetry.Fleet, error) {
	q.Start, q.Stop = s.rangeStart, s.rangeStop
	rows, err := s.source.Query(ctx, q)
	if err != nil {
		return telemetry.Fleet{}, fmt.Errorf("query readings: %w", err)
	}

	f, st := telemetry.Group(rows)
	metrics.RecordReadingsAccepted(st.Accepted)
	metrics.RecordReadingsDropped("invalid_value", st.InvalidValue)
	metrics.RecordReadingsDropped("unknown_field", st.UnknownField)
	metrics.RecordReadingsDropped("missing_id", st.MissingID)
	if st.Dropped() > 0 {
		s.logger.Debug(ctx, "dropped malformed readings",
			logger.Int("accepted", st.Accepted),
			logger.Int("invalidValue", st.InvalidValue),
			logger.Int("unknownField", st.UnknownField),
			logger.Int("missingID", st.MissingID),
		)
	}
	return f, nil
}

// device loads every field of one device.
func (s *Service) device(ctx context.Context, id string, fields ...telemetry.Field) (*telemetry.Device, error) {
	f, err := s.load(ctx, readings.Query{DeviceIDs: []string{id}, Fields: fields})
	if err != nil {
		return nil, err
	}
	d, ok := f.Device(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return d, nil
}

// observe records the latency of one analysis.
func (s *Service) observe(op string, start time.Time) {
	metrics.RecordAnalysis(op, float64(time.Since(start).Microseconds())/1000)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	info := s.store.Info(ctx)
	stats := map[string]interface{}{
		"started":       s.started,
		"workerCount":   s.workerCount,
		"queueSize":     s.queueSize,
		"batchesSeen":   s.dedupe.Size(),
		"rangeStart":    s.rangeStart,
		"rangeStop":     s.rangeStop,
		"scoredDevices": info.Devices,
		"lastRun":       info.RunID,
	}

	if s.started {
		queueLen := s.queue.Len()
		stats["queueLength"] = queueLen
		stats["processedJobs"] = s.pool.Processed()

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateWorkerCount(s.pool.Size())
	}
	metrics.UpdateScoredDevices(info.Devices)

	return stats
}
