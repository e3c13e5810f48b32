// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/evpulse/internal/adapters/readings"
	"github.com/okian/evpulse/internal/adapters/repository"
	service "github.com/okian/evpulse/internal/app"
	"github.com/okian/evpulse/internal/domain/types"
)

// Dependencies required by HTTP handlers. Each handler only sees the slice
// of the service it needs.
type Dependencies interface {
	VehicleDependencies
	FleetDependencies
	AnalyticsDependencies
	RankDependencies
	LeaderboardDependencies
	IngestDependencies
}

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = types.Entry

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	vehicleHandler     *VehicleHandler
	fleetHandler       *FleetHandler
	analyticsHandler   *AnalyticsHandler
	rankHandler        *RankHandler
	leaderboardHandler *LeaderboardHandler
	ingestHandler      *IngestHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		vehicleHandler:     NewVehicleHandler(deps),
		fleetHandler:       NewFleetHandler(deps),
		analyticsHandler:   NewAnalyticsHandler(deps),
		rankHandler:        NewRankHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps),
		ingestHandler:      NewIngestHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", s.healthHandler.HandleHealth)
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/readings", MetricsMiddleware(s.ingestHandler.HandlePostReadings, "readings"))
	mux.HandleFunc("/vehicles/", MetricsMiddleware(s.vehicleHandler.HandleVehicle, "vehicles"))
	mux.HandleFunc("/fleet/overview", MetricsMiddleware(s.fleetHandler.HandleOverview, "fleet_overview"))
	mux.HandleFunc("/fleet/sessions", MetricsMiddleware(s.fleetHandler.HandleSessions, "fleet_sessions"))
	mux.HandleFunc("/analytics/anomalies", MetricsMiddleware(s.analyticsHandler.HandleAnomalies, "anomalies"))
	mux.HandleFunc("/analytics/cohorts", MetricsMiddleware(s.analyticsHandler.HandleCohorts, "cohorts"))
	mux.HandleFunc("/analytics/scores", MetricsMiddleware(s.analyticsHandler.HandleScores, "scores"))
	mux.HandleFunc("/rank/", MetricsMiddleware(s.rankHandler.HandleGetRank, "rank"))
	mux.HandleFunc("/leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure maps a service error onto its HTTP status.
func writeFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, repository.ErrInvalidLimit),
		errors.Is(err, service.ErrInvalidHorizon):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, ErrNotFound),
		errors.Is(err, service.ErrDeviceNotFound),
		errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, service.ErrReadOnly):
		writeError(w, http.StatusMethodNotAllowed, "read_only", err)
	case errors.Is(err, service.ErrNotStarted),
		errors.Is(err, readings.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
