package metrics

import (
	"errors"
)

// Sentinel kinds for metrics errors.
var (
	ErrMetricsDisabled = errors.New("metrics disabled")
)

// Check returns ErrMetricsDisabled when the global manager is off.
func Check() error {
	if !globalManager.enabled {
		return ErrMetricsDisabled
	}
	return nil
}
