package service

import (
	"time"

	"github.com/okian/evpulse/internal/adapters/readings"
	"github.com/okian/evpulse/internal/domain/scoring"
	"github.com/okian/evpulse/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of per-device workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the job queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many ingest batch ids are remembered. A size <= 0
// remembers every id.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		s.dedupeSize = size
	}
}

// WithMaxRankLimit caps the limit accepted by TopN.
func WithMaxRankLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxRankLimit = n
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSource sets the readings store.
func WithSource(src readings.Source) Option {
	return func(s *Service) {
		if src != nil {
			s.source = src
		}
	}
}

// WithClock sets the time source used for score freshness.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTimeRange bounds every readings query to [start, stop).
func WithTimeRange(start, stop time.Time) Option {
	return func(s *Service) {
		if stop.After(start) {
			s.rangeStart, s.rangeStop = start, stop
		}
	}
}

// WithOdometerThresholds overrides the odometer reset and noise thresholds.
func WithOdometerThresholds(reset, noise float64) Option {
	return func(s *Service) {
		if reset < noise && noise <= 0 {
			s.resetThreshold, s.noiseThreshold = reset, noise
		}
	}
}

// WithAnomalyThreshold sets the z-score above which a device is anomalous.
func WithAnomalyThreshold(z float64) Option {
	return func(s *Service) {
		if z > 0 {
			s.anomalyThreshold = z
		}
	}
}

// WithForecastHorizon sets the default and maximum forecast days.
func WithForecastHorizon(def, maxDays int) Option {
	return func(s *Service) {
		if def > 0 && maxDays >= def {
			s.forecastDays, s.maxForecastDays = def, maxDays
		}
	}
}

// WithScoreWeights replaces the composite score weights.
func WithScoreWeights(w scoring.Weights) Option {
	return func(s *Service) {
		s.scorerOpts = append(s.scorerOpts, scoring.WithWeights(w))
	}
}
