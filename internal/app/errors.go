package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrNotStarted     = errors.New("service not started")
	ErrInvalidHorizon = errors.New("invalid forecast horizon")
	ErrReadOnly       = errors.New("readings store is read-only")
)
