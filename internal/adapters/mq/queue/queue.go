// Package queue carries per-device analysis jobs from the service to the
// worker pool through a bounded in-memory channel.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/okian/evpulse/internal/domain/model"
	"github.com/okian/evpulse/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 1024
)

// Job is the payload type flowing through the queue.
type Job = model.Job

// Queue provides blocking enqueue and dequeue of jobs.
type Queue interface {
	// Enqueue adds a job, waiting for room while ctx allows.
	// Returns ErrClosed once the queue is closed.
	Enqueue(ctx context.Context, j Job) error

	// TryEnqueue adds a job without waiting. Returns ErrFull when there is
	// no room.
	TryEnqueue(j Job) error

	// Next waits for the next job. Queued jobs are still handed out after
	// Close; ErrClosed is returned once the queue is closed and drained.
	Next(ctx context.Context) (Job, error)

	// Len returns the current number of queued jobs.
	Len() int

	// Close stops accepting jobs. It is safe to call more than once.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	jobs     chan Job
	capacity int

	mu        sync.RWMutex
	closed    bool
	done      chan struct{}
	closeOnce sync.Once
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(q)
	}

	q.jobs = make(chan Job, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0.0)

	return q
}

// Capacity returns the configured capacity.
func (q *InMemoryQueue) Capacity() int { return q.capacity }

// Enqueue adds a job to the queue, blocking while it is full.
func (q *InMemoryQueue) Enqueue(ctx context.Context, j Job) error {
	// Close waits for the write lock, so a blocked sender must also watch done.
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.rejected("closed")
		return ErrClosed
	}
	if j.Enqueued.IsZero() {
		j.Enqueued = time.Now()
	}

	select {
	case q.jobs <- j:
		q.accepted()
		return nil
	case <-q.done:
		q.rejected("closed")
		return ErrClosed
	case <-ctx.Done():
		q.rejected("context_cancelled")
		return ctx.Err()
	}
}

// TryEnqueue adds a job without blocking.
func (q *InMemoryQueue) TryEnqueue(j Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.rejected("closed")
		return ErrClosed
	}
	if j.Enqueued.IsZero() {
		j.Enqueued = time.Now()
	}

	select {
	case q.jobs <- j:
		q.accepted()
		return nil
	default:
		q.rejected("queue_full")
		return ErrFull
	}
}

// Next returns the next queued job.
func (q *InMemoryQueue) Next(ctx context.Context) (Job, error) {
	select {
	case j, ok := <-q.jobs:
		if !ok {
			return Job{}, ErrClosed
		}
		metrics.RecordQueueDequeue()
		q.observeSize()
		return j, nil
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
}

// Len returns the current number of queued jobs.
func (q *InMemoryQueue) Len() int {
	return q.observeSize()
}

// Close stops accepting jobs and lets consumers drain what is queued.
func (q *InMemoryQueue) Close() error {
	q.closeOnce.Do(func() {
		close(q.done)

		q.mu.Lock()
		defer q.mu.Unlock()
		close(q.jobs)
		q.closed = true
	})
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

func (q *InMemoryQueue) accepted() {
	metrics.RecordQueueEnqueue()
	q.observeSize()
}

func (q *InMemoryQueue) rejected(reason string) {
	metrics.RecordQueueEnqueueError()
	metrics.RecordErrorByComponent("queue", reason)
}

func (q *InMemoryQueue) observeSize() int {
	size := len(q.jobs)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
	return size
}
