package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	service "github.com/okian/evpulse/internal/app"
	"github.com/okian/evpulse/internal/domain/cohort"
)

// AnalyticsDependencies defines the cohort analyses.
type AnalyticsDependencies interface {
	Anomalies(ctx context.Context, carType string, typ cohort.Type) (service.AnomalyReport, error)
	CohortBaselines(ctx context.Context, carType string) (map[string]cohort.Baseline, error)
	Scores(ctx context.Context, carType string) (service.ScoreReport, error)
}

// AnalyticsHandler handles cohort analytics requests.
type AnalyticsHandler struct {
	deps AnalyticsDependencies
}

// NewAnalyticsHandler creates a new analytics handler.
func NewAnalyticsHandler(deps AnalyticsDependencies) *AnalyticsHandler {
	return &AnalyticsHandler{deps: deps}
}

// HandleAnomalies handles GET /analytics/anomalies?car_type=X&type=Y requests.
func (h *AnalyticsHandler) HandleAnomalies(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	typ, err := anomalyType(r.URL.Query().Get("type"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	rep, err := h.deps.Anomalies(r.Context(), carType(r), typ)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// HandleCohorts handles GET /analytics/cohorts?car_type=X requests.
func (h *AnalyticsHandler) HandleCohorts(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	bs, err := h.deps.CohortBaselines(r.Context(), carType(r))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bs)
}

// HandleScores handles GET /analytics/scores?car_type=X requests.
func (h *AnalyticsHandler) HandleScores(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	rep, err := h.deps.Scores(r.Context(), carType(r))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func anomalyType(raw string) (cohort.Type, error) {
	switch t := cohort.Type(strings.ToLower(strings.TrimSpace(raw))); t {
	case "", "all":
		return "", nil
	case cohort.TypeSOH, cohort.TypeHealth, cohort.TypeBalance, cohort.TypeTemp:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unknown anomaly type %q", ErrBadRequest, raw)
	}
}
