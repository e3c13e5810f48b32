package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/evpulse/internal/adapters/readings"
	"github.com/okian/evpulse/internal/domain/telemetry"
	"github.com/okian/evpulse/pkg/logger"
)

// Sink receives batches of generated readings.
type Sink interface {
	Write(ctx context.Context, rows []telemetry.Row) error
}

// StoreSink writes straight into a readings store.
type StoreSink struct {
	w readings.Writer
}

// NewStoreSink wraps a readings writer.
func NewStoreSink(w readings.Writer) *StoreSink {
	return &StoreSink{w: w}
}

func (s *StoreSink) Write(ctx context.Context, rows []telemetry.Row) error {
	return s.w.Insert(ctx, rows)
}

// StatusError is returned when the service answers with an unexpected status.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// HTTPClient wraps http.Client with timeout
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

// NewHTTPClient creates a client for a running service.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Get performs a GET request and decodes a JSON response into out.
func (c *HTTPClient) Get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, http.StatusOK, out)
}

// Post sends body as JSON and expects the given status.
func (c *HTTPClient) Post(ctx context.Context, path string, body any, want int, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, want, out)
}

func (c *HTTPClient) do(req *http.Request, want int, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != want {
		return &StatusError{
			Method: req.Method,
			Path:   req.URL.Path,
			Code:   resp.StatusCode,
			Body:   string(bytes.TrimSpace(body)),
		}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

// HTTPSink posts batches to POST /readings.
type HTTPSink struct {
	client *HTTPClient
}

// NewHTTPSink creates a sink for a running service.
func NewHTTPSink(client *HTTPClient) *HTTPSink {
	return &HTTPSink{client: client}
}

type readingPayload struct {
	DeviceID string `json:"device_id"`
	CarType  string `json:"car_type"`
	Field    string `json:"field"`
	TS       string `json:"ts"`
	Value    any    `json:"value"`
}

type batchPayload struct {
	BatchID  string           `json:"batch_id"`
	Readings []readingPayload `json:"readings"`
}

type ackResponse struct {
	Status    string `json:"status"`
	Accepted  int    `json:"accepted"`
	Duplicate bool   `json:"duplicate"`
}

// Write posts rows as one batch. The batch id is derived from the first row
// so a retried batch is stored by the service only once. A failed post is
// retried once.
func (s *HTTPSink) Write(ctx context.Context, rows []telemetry.Row) error {
	if len(rows) == 0 {
		return nil
	}
	first := rows[0]
	payload := batchPayload{
		BatchID:  fmt.Sprintf("%s/%s/%d/%d", first.DeviceID, first.Field, first.Time.UnixMilli(), len(rows)),
		Readings: make([]readingPayload, len(rows)),
	}
	for i, r := range rows {
		payload.Readings[i] = readingPayload{
			DeviceID: r.DeviceID,
			CarType:  r.CarType,
			Field:    r.Field,
			TS:       r.Time.UTC().Format(time.RFC3339),
			Value:    r.Value,
		}
	}
	err := s.post(ctx, payload)
	if err != nil && ctx.Err() == nil {
		logger.Get().Debug(ctx, "retrying batch", logger.String("batch_id", payload.BatchID), logger.Error(err))
		err = s.post(ctx, payload)
	}
	return err
}

func (s *HTTPSink) post(ctx context.Context, payload batchPayload) error {
	var ack ackResponse
	err := s.client.Post(ctx, "/readings", payload, http.StatusAccepted, &ack)
	var status *StatusError
	if errors.As(err, &status) && status.Code == http.StatusOK {
		// Already stored by an earlier attempt.
		return nil
	}
	if err != nil {
		return err
	}
	if ack.Accepted != len(payload.Readings) {
		return fmt.Errorf("service accepted %d of %d readings", ack.Accepted, len(payload.Readings))
	}
	return nil
}

// writeBatches splits rows into batches and writes them with a pool of
// workers. Failed batches are counted, not retried.
func writeBatches(ctx context.Context, cfg Config, sink Sink, workers int, rows []telemetry.Row, stats *Stats) {
	logger.Get().Info(ctx, "writing readings",
		logger.Int("rows", len(rows)),
		logger.Int("batchSize", cfg.BatchSize),
		logger.Int("workers", workers))

	var (
		written int64
		failed  int64
		wg      sync.WaitGroup
		batches = make(chan []telemetry.Row, workers*2)
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for batch := range batches {
				if err := sink.Write(ctx, batch); err != nil {
					atomic.AddInt64(&failed, 1)
					logger.Get().Warn(ctx, "batch write failed",
						logger.Int("worker", workerID),
						logger.Int("rows", len(batch)),
						logger.Error(err))
					continue
				}
				n := atomic.AddInt64(&written, int64(len(batch)))
				if cfg.Verbose {
					logger.Get().Debug(ctx, "batch written",
						logger.Int("worker", workerID),
						logger.Int64("written", n),
						logger.Int("total", len(rows)))
				}
			}
		}(i)
	}

	go func() {
		defer close(batches)
		for start := 0; start < len(rows); start += cfg.BatchSize {
			end := min(start+cfg.BatchSize, len(rows))
			select {
			case <-ctx.Done():
				return
			case batches <- rows[start:end]:
			}
		}
	}()

	wg.Wait()

	stats.RowsWritten = int(atomic.LoadInt64(&written))
	stats.BatchesFailed = int(atomic.LoadInt64(&failed))
	logger.Get().Info(ctx, "readings written",
		logger.Int("written", stats.RowsWritten),
		logger.Int("batchesFailed", stats.BatchesFailed))
}
