package api

import (
	"context"
	"net/http"

	service "github.com/okian/evpulse/internal/app"
	"github.com/okian/evpulse/internal/domain/fleet"
)

// FleetDependencies defines the fleet-wide summaries.
type FleetDependencies interface {
	FleetOverview(ctx context.Context) (fleet.Overview, error)
	FleetSessions(ctx context.Context, carType string) (service.SessionsReport, error)
}

// FleetHandler handles fleet requests.
type FleetHandler struct {
	deps FleetDependencies
}

// NewFleetHandler creates a new fleet handler.
func NewFleetHandler(deps FleetDependencies) *FleetHandler {
	return &FleetHandler{deps: deps}
}

// HandleOverview handles GET /fleet/overview requests.
func (h *FleetHandler) HandleOverview(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	ov, err := h.deps.FleetOverview(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

// HandleSessions handles GET /fleet/sessions?car_type=X requests.
func (h *FleetHandler) HandleSessions(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	rep, err := h.deps.FleetSessions(r.Context(), carType(r))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
