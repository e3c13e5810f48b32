package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/evpulse/internal/adapters/mq/worker"
	"github.com/okian/evpulse/internal/adapters/readings"
	"github.com/okian/evpulse/internal/adapters/repository"
	"github.com/okian/evpulse/internal/domain/charging"
	"github.com/okian/evpulse/internal/domain/cohort"
	"github.com/okian/evpulse/internal/domain/distance"
	"github.com/okian/evpulse/internal/domain/fleet"
	"github.com/okian/evpulse/internal/domain/model"
	"github.com/okian/evpulse/internal/domain/scoring"
	"github.com/okian/evpulse/internal/domain/segment"
	"github.com/okian/evpulse/internal/domain/types"
	"github.com/okian/evpulse/pkg/logger"
	"github.com/okian/evpulse/pkg/metrics"
)

// DeviceSessions is the driving, charging and segment summary of one device.
// Error is set instead of the summaries when the device failed.
type DeviceSessions struct {
	DeviceID string            `json:"device_id"`
	CarType  string            `json:"car_type"`
	Driving  *distance.Summary `json:"driving,omitempty"`
	Charging *charging.Summary `json:"charging,omitempty"`
	Segments *segment.Summary  `json:"segments,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// SessionsReport lists the per-device sessions of one run.
type SessionsReport struct {
	RunID   string           `json:"run_id"`
	CarType string           `json:"car_type,omitempty"`
	Devices []DeviceSessions `json:"devices"`
	Failed  int              `json:"failed_devices"`
}

// AnomalyReport is the result of one anomaly detection run.
type AnomalyReport struct {
	RunID      string                     `json:"run_id"`
	Analyzed   int                        `json:"total_devices_analyzed"`
	Threshold  float64                    `json:"threshold"`
	Anomalies  []cohort.Anomaly           `json:"anomalies"`
	Statistics cohort.Statistics          `json:"statistics"`
	Baselines  map[string]cohort.Baseline `json:"baselines"`
}

// ScoreReport is the ranked result of one scoring run.
type ScoreReport struct {
	RunID   string           `json:"run_id"`
	CarType string           `json:"car_type,omitempty"`
	Total   int              `json:"total_devices"`
	Scores  []scoring.Result `json:"scores"`
}

// FleetOverview summarizes the latest SOC and SOH of every device per car
// type.
func (s *Service) FleetOverview(ctx context.Context) (fleet.Overview, error) {
	defer s.observe("fleet_overview", time.Now())

	f, err := s.load(ctx, readings.Query{})
	if err != nil {
		return fleet.Overview{}, err
	}
	return fleet.Summarize(f), nil
}

// FleetSessions summarizes driving, charging and segments for every device
// of a car type in parallel. An empty car type covers the whole fleet.
// A failing device is marked in its own entry and does not affect the rest.
func (s *Service) FleetSessions(ctx context.Context, carType string) (SessionsReport, error) {
	const op = "fleet_sessions"
	defer s.observe(op, time.Now())

	q, err := s.enqueuer()
	if err != nil {
		return SessionsReport{}, err
	}
	f, err := s.load(ctx, readings.Query{CarType: carType})
	if err != nil {
		return SessionsReport{}, err
	}

	runID := uuid.NewString()
	outs := worker.Dispatch(ctx, q, runID, f.Order, func(_ context.Context, id string) (DeviceSessions, error) {
		d := f.Devices[id]
		drv := s.driving(d)
		chg := charging.Detect(charging.InputFrom(d))
		seg := s.segments(d).Summary
		return DeviceSessions{
			DeviceID: d.ID,
			CarType:  d.CarType,
			Driving:  &drv,
			Charging: &chg,
			Segments: &seg,
		}, nil
	})

	report := SessionsReport{RunID: runID, CarType: carType, Devices: make([]DeviceSessions, len(outs))}
	for i, o := range outs {
		if o.OK() {
			report.Devices[i] = o.Value
			continue
		}
		report.Failed++
		report.Devices[i] = DeviceSessions{
			DeviceID: o.DeviceID,
			CarType:  f.Devices[o.DeviceID].CarType,
			Error:    o.Err.Error(),
		}
		s.deviceFailed(ctx, op, runID, o.DeviceID, o.Err)
	}
	return report, nil
}

// Anomalies compares every device with its car type baseline and returns the
// devices that deviate, largest z-score first. An empty anomaly type keeps
// every type; an empty car type covers the whole fleet.
func (s *Service) Anomalies(ctx context.Context, carType string, typ cohort.Type) (AnomalyReport, error) {
	const op = "anomalies"
	defer s.observe(op, time.Now())

	runID := uuid.NewString()
	vitals, err := s.vitals(ctx, op, runID, carType)
	if err != nil {
		return AnomalyReport{}, err
	}

	baselines := cohort.ComputeBaselines(vitals)
	found := cohort.Filter(cohort.Detect(vitals, baselines, cohort.WithTypeThreshold(s.anomalyThreshold)), typ)
	if found == nil {
		found = []cohort.Anomaly{}
	}
	cohort.SortByZScore(found)
	stats := cohort.Summarize(found)

	metrics.UpdateAnomalies(string(cohort.RiskCritical), stats.ByRisk.Critical)
	metrics.UpdateAnomalies(string(cohort.RiskHigh), stats.ByRisk.High)
	metrics.UpdateAnomalies(string(cohort.RiskMedium), stats.ByRisk.Medium)
	metrics.UpdateAnomalies(string(cohort.RiskLow), stats.ByRisk.Low)

	s.logger.Info(ctx, "anomaly detection finished",
		logger.String("runID", runID),
		logger.Int("devices", len(vitals)),
		logger.Int("anomalies", stats.TotalAnomalies),
	)

	return AnomalyReport{
		RunID:      runID,
		Analyzed:   len(vitals),
		Threshold:  s.anomalyThreshold,
		Anomalies:  found,
		Statistics: stats,
		Baselines:  baselines,
	}, nil
}

// CohortBaselines returns the per car type statistics anomalies are measured
// against.
func (s *Service) CohortBaselines(ctx context.Context, carType string) (map[string]cohort.Baseline, error) {
	const op = "cohorts"
	defer s.observe(op, time.Now())

	vitals, err := s.vitals(ctx, op, uuid.NewString(), carType)
	if err != nil {
		return nil, err
	}
	return cohort.ComputeBaselines(vitals), nil
}

// Scores computes the composite score of every device and ranks them. A
// whole-fleet run also replaces the snapshot served by Rank and TopN.
func (s *Service) Scores(ctx context.Context, carType string) (ScoreReport, error) {
	const op = "scores"
	defer s.observe(op, time.Now())

	runID := uuid.NewString()
	vitals, err := s.vitals(ctx, op, runID, carType)
	if err != nil {
		return ScoreReport{}, err
	}

	now := s.now()
	results := make([]scoring.Result, len(vitals))
	for i, v := range vitals {
		results[i] = s.scorer.Score(scoring.InputFrom(v), now)
	}

	if carType == "" {
		if err := s.store.Replace(ctx, runID, results); err != nil {
			return ScoreReport{}, fmt.Errorf("publish scores: %w", err)
		}
	}

	ranked := scoring.Rank(results)
	return ScoreReport{RunID: runID, CarType: carType, Total: len(ranked), Scores: ranked}, nil
}

// Rank returns the ranked score of a device from the latest whole-fleet run.
// The first call scores the fleet when no run has been published yet.
func (s *Service) Rank(ctx context.Context, deviceID string) (scoring.Result, error) {
	r, err := s.store.Rank(ctx, deviceID)
	if errors.Is(err, repository.ErrNoSnapshot) {
		if _, err = s.Scores(ctx, ""); err != nil {
			return scoring.Result{}, err
		}
		r, err = s.store.Rank(ctx, deviceID)
	}
	if errors.Is(err, repository.ErrNotFound) {
		return scoring.Result{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}
	return r, err
}

// TopN returns the n best scored devices of the latest whole-fleet run.
func (s *Service) TopN(ctx context.Context, n int) ([]types.Entry, error) {
	if n <= 0 || n > s.store.MaxLimit() {
		return nil, fmt.Errorf("%w: %d", repository.ErrInvalidLimit, n)
	}
	if s.store.Info(ctx).RunID == "" {
		if _, err := s.Scores(ctx, ""); err != nil {
			return nil, err
		}
	}
	rs, err := s.store.TopN(ctx, n)
	if err != nil {
		return nil, err
	}
	return types.Entries(rs), nil
}

// Snapshot describes the run currently served by Rank and TopN.
func (s *Service) Snapshot(ctx context.Context) repository.SnapshotInfo {
	return s.store.Info(ctx)
}

// vitals loads the fleet and snapshots every device on the worker pool. It
// returns once every device has finished, which is the barrier the cohort
// baselines need. Failed devices are left out.
func (s *Service) vitals(ctx context.Context, op, runID, carType string) ([]cohort.Vitals, error) {
	q, err := s.enqueuer()
	if err != nil {
		return nil, err
	}
	f, err := s.load(ctx, readings.Query{CarType: carType})
	if err != nil {
		return nil, err
	}

	outs := worker.Dispatch(ctx, q, runID, f.Order, func(_ context.Context, id string) (cohort.Vitals, error) {
		return cohort.Snapshot(f.Devices[id]), nil
	})
	for _, o := range outs {
		if !o.OK() {
			s.deviceFailed(ctx, op, runID, o.DeviceID, o.Err)
		}
	}
	return model.Values(outs), nil
}

func (s *Service) deviceFailed(ctx context.Context, op, runID, deviceID string, err error) {
	metrics.RecordDeviceFailure(op)
	s.logger.Warn(ctx, "device analysis failed",
		logger.String("operation", op),
		logger.String("runID", runID),
		logger.String("deviceID", deviceID),
		logger.Error(err),
	)
}
