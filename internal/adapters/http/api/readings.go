package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/okian/evpulse/internal/domain/telemetry"
)

const maxIngestBatch = 10000

// IngestDependencies defines how readings are stored.
type IngestDependencies interface {
	Ingest(ctx context.Context, batchID string, rows []telemetry.Row) (int, bool, error)
}

// IngestHandler handles reading uploads.
type IngestHandler struct {
	deps IngestDependencies
}

// NewIngestHandler creates a new ingest handler.
func NewIngestHandler(deps IngestDependencies) *IngestHandler {
	return &IngestHandler{deps: deps}
}

// readingRequest is one raw reading. Value stays loosely typed; malformed
// values are dropped at analysis time, not rejected here.
type readingRequest struct {
	DeviceID string `json:"device_id"`
	CarType  string `json:"car_type"`
	Field    string `json:"field"`
	TS       string `json:"ts"`
	Value    any    `json:"value"`
}

func (rr readingRequest) row() (telemetry.Row, error) {
	switch {
	case strings.TrimSpace(rr.DeviceID) == "":
		return telemetry.Row{}, errors.New("missing device_id")
	case strings.TrimSpace(rr.Field) == "":
		return telemetry.Row{}, errors.New("missing field")
	case strings.TrimSpace(rr.TS) == "":
		return telemetry.Row{}, errors.New("missing ts")
	}
	ts, err := time.Parse(time.RFC3339, rr.TS)
	if err != nil {
		return telemetry.Row{}, errors.New("invalid ts; must be RFC3339")
	}
	return telemetry.Row{
		DeviceID: rr.DeviceID,
		CarType:  rr.CarType,
		Field:    rr.Field,
		Time:     ts.UTC(),
		Value:    rr.Value,
	}, nil
}

type ingestRequest struct {
	BatchID  string           `json:"batch_id"`
	Readings []readingRequest `json:"readings"`
}

type ackResponse struct {
	Status    string `json:"status"`
	Accepted  int    `json:"accepted"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// HandlePostReadings handles POST /readings requests. A batch that repeats an
// already stored batch_id is answered with 200 and not stored again.
func (h *IngestHandler) HandlePostReadings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	if len(req.Readings) == 0 || len(req.Readings) > maxIngestBatch {
		writeFailure(w, fmt.Errorf("%w: batch must hold 1..%d readings", ErrBadRequest, maxIngestBatch))
		return
	}

	rows := make([]telemetry.Row, len(req.Readings))
	for i, rr := range req.Readings {
		row, err := rr.row()
		if err != nil {
			writeFailure(w, fmt.Errorf("%w: reading %d: %w", ErrBadRequest, i, err))
			return
		}
		rows[i] = row
	}

	n, dup, err := h.deps.Ingest(r.Context(), strings.TrimSpace(req.BatchID), rows)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if dup {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", Accepted: n})
}
