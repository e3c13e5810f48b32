package readings

import "errors"

// Sentinel kinds for readings store errors.
var (
	ErrClosed = errors.New("readings source closed")
	ErrQuery  = errors.New("readings query failed")
)
