package service

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/evpulse/internal/adapters/readings"
	"github.com/okian/evpulse/internal/domain/battery"
	"github.com/okian/evpulse/internal/domain/charging"
	"github.com/okian/evpulse/internal/domain/distance"
	"github.com/okian/evpulse/internal/domain/forecast"
	"github.com/okian/evpulse/internal/domain/segment"
	"github.com/okian/evpulse/internal/domain/telemetry"
	"github.com/okian/evpulse/pkg/logger"
	"github.com/okian/evpulse/pkg/metrics"
)

// DrivingSummary reconstructs the driving distance and sessions of a device
// from its odometer.
func (s *Service) DrivingSummary(ctx context.Context, deviceID string) (distance.Summary, error) {
	defer s.observe("driving", time.Now())

	d, err := s.device(ctx, deviceID, telemetry.FieldOdometer)
	if err != nil {
		return distance.Summary{}, err
	}
	return s.driving(d), nil
}

// Segments classifies the activity of a device between consecutive SOC
// readings.
func (s *Service) Segments(ctx context.Context, deviceID string) (segment.Report, error) {
	defer s.observe("segments", time.Now())

	d, err := s.device(ctx, deviceID)
	if err != nil {
		return segment.Report{}, err
	}
	return s.segments(d), nil
}

// ChargingSummary detects the charging sessions of a device.
func (s *Service) ChargingSummary(ctx context.Context, deviceID string) (charging.Summary, error) {
	defer s.observe("charging", time.Now())

	d, err := s.device(ctx, deviceID,
		telemetry.FieldSOC,
		telemetry.FieldPackCurrent,
		telemetry.FieldPackVolt,
	)
	if err != nil {
		return charging.Summary{}, err
	}
	return charging.Detect(charging.InputFrom(d)), nil
}

// BatteryProfile summarizes the battery readings of a device.
func (s *Service) BatteryProfile(ctx context.Context, deviceID string) (battery.Profile, error) {
	defer s.observe("battery", time.Now())

	d, err := s.device(ctx, deviceID)
	if err != nil {
		return battery.Profile{}, err
	}
	return battery.Analyze(d), nil
}

// Forecast projects the SOH of a device days ahead and compares its
// degradation rate with the other devices of its car type. A zero horizon
// uses the configured default.
func (s *Service) Forecast(ctx context.Context, deviceID string, days int) (forecast.Result, error) {
	defer s.observe("forecast", time.Now())

	if days == 0 {
		days = s.forecastDays
	}
	if days < 0 || days > s.maxForecastDays {
		return forecast.Result{}, fmt.Errorf("%w: %d not in 1..%d", ErrInvalidHorizon, days, s.maxForecastDays)
	}

	d, err := s.device(ctx, deviceID, telemetry.FieldSOH)
	if err != nil {
		return forecast.Result{}, err
	}

	// A missing cohort only loses the comparison.
	var cmp *forecast.Comparison
	cohort, err := s.load(ctx, readings.Query{CarType: d.CarType, Fields: []telemetry.Field{telemetry.FieldSOH}})
	if err != nil {
		s.logger.Warn(ctx, "cohort comparison skipped",
			logger.String("deviceID", deviceID),
			logger.String("carType", d.CarType),
			logger.Error(err),
		)
	} else {
		series := make(map[string]telemetry.Series, len(cohort.Devices))
		for id, peer := range cohort.Devices {
			series[id] = peer.Series(telemetry.FieldSOH)
		}
		series[d.ID] = d.Series(telemetry.FieldSOH)
		cmp = forecast.Compare(d.ID, series)
	}

	return forecast.Forecast(d.Series(telemetry.FieldSOH), days, cmp), nil
}

func (s *Service) driving(d *telemetry.Device) distance.Summary {
	return distance.Reconstruct(d.Series(telemetry.FieldOdometer),
		distance.WithResetThreshold(s.resetThreshold),
		distance.WithNoiseThreshold(s.noiseThreshold),
	)
}

func (s *Service) segments(d *telemetry.Device) segment.Report {
	return segment.Classify(segment.InputFrom(d), segment.WithResetThreshold(s.resetThreshold))
}

// Ingest appends rows to the readings store. The store must accept writes.
// A non-empty batchID makes the upload idempotent: a batch id that was
// already stored is reported as a duplicate and nothing is written.
func (s *Service) Ingest(ctx context.Context, batchID string, rows []telemetry.Row) (int, bool, error) {
	defer s.observe("ingest", time.Now())

	w, ok := s.source.(readings.Writer)
	if !ok {
		return 0, false, ErrReadOnly
	}
	if batchID != "" && s.dedupe.SeenAndRecord(ctx, batchID) {
		s.logger.Debug(ctx, "duplicate batch ignored", logger.String("batch_id", batchID))
		metrics.RecordDuplicateBatch()
		return 0, true, nil
	}
	if err := w.Insert(ctx, rows); err != nil {
		if batchID != "" {
			s.dedupe.Unrecord(ctx, batchID)
		}
		return 0, false, fmt.Errorf("insert readings: %w", err)
	}
	s.logger.Debug(ctx, "readings ingested",
		logger.String("batch_id", batchID),
		logger.Int("rows", len(rows)))
	return len(rows), false, nil
}
