package forecast

// Priority ranks how soon a device needs attention.
type Priority string

// Priorities.
const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// SOH levels that trigger a recommendation.
const (
	ReplaceBelow = 70.0
	InspectBelow = 80.0
)

// Recommendation is the maintenance advice derived from a forecast.
type Recommendation struct {
	Message      string   `json:"message"`
	Priority     Priority `json:"priority"`
	PredictedSOH float64  `json:"predicted_soh_after_horizon"`
}

// Recommend applies the decision table to the SOH expected at the end of the
// forecast horizon and the optional cohort comparison.
func Recommend(predicted float64, cmp *Comparison) Recommendation {
	rec := Recommendation{PredictedSOH: predicted}
	switch {
	case predicted < ReplaceBelow:
		rec.Priority = PriorityHigh
		rec.Message = "Battery replacement is likely needed. Schedule a service center visit."
	case predicted < InspectBelow:
		rec.Priority = PriorityMedium
		rec.Message = "Battery performance is expected to decline. A scheduled inspection is recommended."
	case cmp != nil && cmp.Verdict == Worse:
		rec.Priority = PriorityMedium
		rec.Message = "Degradation is faster than the car type average. An early inspection is recommended."
	default:
		rec.Priority = PriorityLow
		rec.Message = "Battery condition is good. Keep the routine inspection schedule."
	}
	return rec
}
