// Package worker runs per-device analysis jobs taken off the queue and
// fans device work out across the pool.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/evpulse/internal/domain/model"
	"github.com/okian/evpulse/pkg/logger"
	"github.com/okian/evpulse/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 2 // multiplier for runtime.NumCPU()
	metricsUpdateInterval   = 5 * time.Second
	poolShutdownTimeout     = 30 * time.Second
)

// Job abstracts what workers read off the queue.
type Job = model.Job

// Queue defines how workers receive jobs.
type Queue interface {
	Next(ctx context.Context) (Job, error)
}

// Enqueuer defines how callers hand jobs to the pool.
type Enqueuer interface {
	Enqueue(ctx context.Context, j Job) error
}

// Worker processes jobs until the queue is drained or it is stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue closes.
	Run(ctx context.Context)

	// Shutdown stops the worker without waiting for the queue to drain.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker for processing jobs.
type InMemoryWorker struct {
	queue Queue
	name  string

	processed *atomic.Int64

	// Shutdown control
	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     queue,
		name:      "worker",
		processed: new(atomic.Int64),
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Get().Named("worker"),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.shutdown:
			cancel()
		case <-runCtx.Done():
		}
	}()

	for {
		job, err := w.queue.Next(runCtx)
		if err != nil {
			return
		}
		w.process(runCtx, job)
	}
}

// Shutdown stops the worker loop.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed when the worker loop has returned.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

// process runs one job and replies to its caller.
func (w *InMemoryWorker) process(ctx context.Context, job Job) {
	start := time.Now()

	jobCtx := job.Ctx
	if jobCtx == nil {
		jobCtx = ctx
	}

	res := model.Result{Seq: job.Seq, DeviceID: job.DeviceID}
	if err := jobCtx.Err(); err != nil {
		res.Err = fmt.Errorf("%w: %w", ErrNotProcessed, err)
	} else {
		res.Value, res.Err = w.exec(jobCtx, job)
	}
	res.Took = time.Since(start)

	metrics.RecordWorkerProcessingLatency(float64(res.Took.Microseconds()) / 1000)
	if res.Err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "device_error")
		w.logger.Debug(ctx, "device job failed",
			logger.String("run_id", job.RunID),
			logger.String("device_id", job.DeviceID),
			logger.Error(res.Err),
		)
	}
	w.processed.Add(1)

	if job.Reply != nil {
		job.Reply <- res
	}
}

// exec calls the job function, turning a panic into an error.
func (w *InMemoryWorker) exec(ctx context.Context, job Job) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordWorkerPanic()
			w.logger.Error(ctx, "device job panicked",
				logger.String("run_id", job.RunID),
				logger.String("device_id", job.DeviceID),
				logger.Any("panic", r),
			)
			v, err = nil, fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()

	if job.Exec == nil {
		return nil, ErrNoExec
	}
	return job.Exec(ctx)
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	processed atomic.Int64

	shutdown     chan struct{}
	shutdownOnce sync.Once

	logger logger.Logger
}

// NewPool creates a new worker pool. A count below one uses a multiple of
// the CPU count.
func NewPool(workerCount int, queue Queue, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	pool := &Pool{
		workers:  make([]*InMemoryWorker, workerCount),
		queue:    queue,
		shutdown: make(chan struct{}),
		logger:   logger.Get().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		w := NewInMemoryWorker(queue, wopts...)
		w.processed = &pool.processed
		pool.workers[i] = w
	}

	metrics.UpdateWorkerCount(workerCount)

	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Processed returns the number of jobs handled since start.
func (p *Pool) Processed() int64 { return p.processed.Load() }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, worker := range p.workers {
		go worker.Run(ctx)
	}

	go p.startMetricsUpdater(ctx)
}

// startMetricsUpdater refreshes pool and queue gauges.
func (p *Pool) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case <-ticker.C:
			p.updateMetrics()
		}
	}
}

func (p *Pool) updateMetrics() {
	running := 0
	for _, w := range p.workers {
		select {
		case <-w.done:
		default:
			running++
		}
	}
	metrics.UpdateWorkerCount(running)
	if l, ok := p.queue.(interface{ Len() int }); ok {
		l.Len()
	}
}

// Shutdown closes the queue, lets the workers drain it and stops any worker
// still running when ctx or the pool timeout expires.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	p.shutdownOnce.Do(func() { close(p.shutdown) })

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var errs []error
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker drain timed out", logger.Int("worker_id", i))
			stopCtx, stop := context.WithTimeout(context.Background(), time.Second)
			errs = append(errs, w.Shutdown(stopCtx))
			stop()
		}
	}
	metrics.UpdateWorkerCount(0)
	return errors.Join(errs...)
}

// Dispatch runs fn for every id through the pool behind q and returns one
// outcome per id in input order. A device whose job fails, panics or never
// runs gets an error in its own slot only. Dispatch returns early with
// ErrNotProcessed in the unfinished slots when ctx is done.
func Dispatch[T any](ctx context.Context, q Enqueuer, runID string, ids []string, fn func(ctx context.Context, id string) (T, error)) []model.Outcome[T] {
	outs := make([]model.Outcome[T], len(ids))
	pending := make([]bool, len(ids))
	reply := make(chan model.Result, len(ids))

	sent := 0
	for i, id := range ids {
		outs[i].DeviceID = id
		job := Job{
			RunID:    runID,
			Seq:      i,
			DeviceID: id,
			Ctx:      ctx,
			Exec:     func(c context.Context) (any, error) { return fn(c, id) },
			Reply:    reply,
		}
		if err := q.Enqueue(ctx, job); err != nil {
			outs[i].Err = fmt.Errorf("%w: %w", ErrNotProcessed, err)
			continue
		}
		pending[i] = true
		sent++
	}

	for received := 0; received < sent; received++ {
		select {
		case r := <-reply:
			pending[r.Seq] = false
			outs[r.Seq].Value, outs[r.Seq].Err = resultValue[T](r)
		case <-ctx.Done():
			for i := range outs {
				if pending[i] {
					outs[i].Err = fmt.Errorf("%w: %w", ErrNotProcessed, ctx.Err())
				}
			}
			return outs
		}
	}
	return outs
}

func resultValue[T any](r model.Result) (T, error) {
	var zero T
	if r.Err != nil {
		return zero, r.Err
	}
	if r.Value == nil {
		return zero, nil
	}
	v, ok := r.Value.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %T", ErrBadResult, r.Value)
	}
	return v, nil
}
