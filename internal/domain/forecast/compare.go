package forecast

import (
	"sort"

	"github.com/okian/evpulse/internal/domain/telemetry"
)

// Verdict places a device's degradation rate within its cohort.
type Verdict string

// Verdicts.
const (
	Worse   Verdict = "worse"
	Better  Verdict = "better"
	Average Verdict = "average"
	Unknown Verdict = "unknown"
)

// Cohort rate bands relative to the cohort average.
const (
	WorseFactor  = 1.2
	BetterFactor = 0.8
)

// Comparison is a device's daily SOH loss against its cohort.
type Comparison struct {
	AverageRate float64 `json:"average_degradation_rate"`
	DeviceRate  float64 `json:"current_vehicle_degradation_rate"`
	Verdict     Verdict `json:"comparison"`
	Compared    int     `json:"total_vehicles_compared"`
}

// Compare computes each cohort device's first-to-last daily SOH loss and
// classifies deviceID against the average of the positive rates. It returns
// nil when no device in the cohort has a usable rate.
func Compare(deviceID string, cohort map[string]telemetry.Series) *Comparison {
	ids := make([]string, 0, len(cohort))
	for id := range cohort {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rates := make(map[string]float64, len(ids))
	var sum float64
	for _, id := range ids {
		r, ok := dailyLoss(cohort[id])
		if !ok || r <= 0 {
			continue
		}
		rates[id] = r
		sum += r
	}
	if len(rates) == 0 {
		return nil
	}

	cmp := &Comparison{
		AverageRate: sum / float64(len(rates)),
		Verdict:     Unknown,
		Compared:    len(rates),
	}
	own, ok := rates[deviceID]
	if !ok {
		return cmp
	}
	cmp.DeviceRate = own
	switch {
	case own > cmp.AverageRate*WorseFactor:
		cmp.Verdict = Worse
	case own < cmp.AverageRate*BetterFactor:
		cmp.Verdict = Better
	default:
		cmp.Verdict = Average
	}
	return cmp
}

func dailyLoss(s telemetry.Series) (float64, bool) {
	if len(s) < 2 {
		return 0, false
	}
	s = s.Sorted()
	first, last := s[0], s[len(s)-1]
	span := last.Time.Sub(first.Time).Hours() / 24
	if span <= 0 {
		return 0, false
	}
	return (first.Value - last.Value) / span, true
}
