package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/okian/evpulse/internal/domain/battery"
	"github.com/okian/evpulse/internal/domain/charging"
	"github.com/okian/evpulse/internal/domain/distance"
	"github.com/okian/evpulse/internal/domain/forecast"
	"github.com/okian/evpulse/internal/domain/segment"
)

// VehicleDependencies defines the per-device analyses.
type VehicleDependencies interface {
	DrivingSummary(ctx context.Context, deviceID string) (distance.Summary, error)
	Segments(ctx context.Context, deviceID string) (segment.Report, error)
	ChargingSummary(ctx context.Context, deviceID string) (charging.Summary, error)
	BatteryProfile(ctx context.Context, deviceID string) (battery.Profile, error)
	Forecast(ctx context.Context, deviceID string, days int) (forecast.Result, error)
}

// VehicleHandler handles per-device analysis requests.
type VehicleHandler struct {
	deps VehicleDependencies
}

// NewVehicleHandler creates a new vehicle handler.
func NewVehicleHandler(deps VehicleDependencies) *VehicleHandler {
	return &VehicleHandler{deps: deps}
}

// HandleVehicle handles GET /vehicles/{device_id}/{analysis} requests where
// analysis is driving, segments, charging, battery or forecast.
func (h *VehicleHandler) HandleVehicle(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/vehicles/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: want /vehicles/{device_id}/{analysis}", ErrBadRequest))
		return
	}
	id, analysis := parts[0], parts[1]

	var (
		out any
		err error
	)
	ctx := r.Context()
	switch analysis {
	case "driving":
		out, err = h.deps.DrivingSummary(ctx, id)
	case "segments":
		out, err = h.deps.Segments(ctx, id)
	case "charging":
		out, err = h.deps.ChargingSummary(ctx, id)
	case "battery":
		out, err = h.deps.BatteryProfile(ctx, id)
	case "forecast":
		var days int
		if days, err = queryInt(r, "days", 0); err == nil {
			out, err = h.deps.Forecast(ctx, id, days)
		}
	default:
		err = fmt.Errorf("%w: unknown analysis %q", ErrNotFound, analysis)
	}
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vehicleResponse{DeviceID: id, Analysis: analysis, Result: out})
}

type vehicleResponse struct {
	DeviceID string `json:"device_id"`
	Analysis string `json:"analysis"`
	Result   any    `json:"result"`
}
