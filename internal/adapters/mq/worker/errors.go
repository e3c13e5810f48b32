package worker

import "errors"

// Sentinel kinds for worker errors.
var (
	ErrNotProcessed = errors.New("device not processed")
	ErrPanic        = errors.New("device job panicked")
	ErrNoExec       = errors.New("job has no exec function")
	ErrBadResult    = errors.New("unexpected job result type")
)
