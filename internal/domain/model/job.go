// Package model contains the work items passed between the service, the
// queue and the worker pool.
package model

import (
	"context"
	"time"
)

// Job is one unit of per-device work carried by the queue. Ctx is the
// context of the request that produced the job; workers skip jobs whose
// context is already done.
type Job struct {
	RunID    string // analysis run the job belongs to
	Seq      int    // slot of the device in the caller's result slice
	DeviceID string
	Ctx      context.Context //nolint:containedctx // request scope travels with the job
	Exec     func(ctx context.Context) (any, error)
	Reply    chan<- Result
	Enqueued time.Time
}

// Result is what a worker sends back for a Job.
type Result struct {
	Seq      int
	DeviceID string
	Value    any
	Err      error
	Took     time.Duration
}

// Outcome is the typed result of one device in a fan-out.
type Outcome[T any] struct {
	DeviceID string `json:"device_id"`
	Value    T      `json:"value"`
	Err      error  `json:"-"`
}

// OK reports whether the device was processed without error.
func (o Outcome[T]) OK() bool { return o.Err == nil }

// Values returns the values of the successful outcomes in order.
func Values[T any](outs []Outcome[T]) []T {
	vals := make([]T, 0, len(outs))
	for _, o := range outs {
		if o.OK() {
			vals = append(vals, o.Value)
		}
	}
	return vals
}

// Failed counts the outcomes that carry an error.
func Failed[T any](outs []Outcome[T]) int {
	n := 0
	for _, o := range outs {
		if !o.OK() {
			n++
		}
	}
	return n
}
