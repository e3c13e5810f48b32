package config

import (
	"errors"
)

// Sentinel errors returned by New, Load and Validate.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)
