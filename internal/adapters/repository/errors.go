package repository

import "errors"

// Sentinel kinds for ranking store errors.
var (
	ErrNotFound     = errors.New("device not found")
	ErrInvalidLimit = errors.New("invalid ranking limit")
	ErrNoSnapshot   = errors.New("no score snapshot yet")
)
