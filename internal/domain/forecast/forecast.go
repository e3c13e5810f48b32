// Package forecast projects a device's SOH trend with a least-squares fit and
// turns the projection into a maintenance recommendation.
package forecast

import (
	"math"
	"time"

	"github.com/okian/evpulse/internal/domain/telemetry"
)

const (
	// MinSamples is the smallest positive-SOH history that gets a forecast.
	MinSamples = 10
	// HistoryLen is the number of trailing samples echoed in a Result.
	HistoryLen = 30
	// DefaultDays is the default forecast horizon.
	DefaultDays = 30

	day = 24 * time.Hour
)

// Status reports whether a forecast could be made.
type Status string

// Forecast statuses.
const (
	StatusOK           Status = "ok"
	StatusInsufficient Status = "insufficient_data"
)

// Prediction is the projected SOH for one future day.
type Prediction struct {
	Date         string  `json:"date"`
	PredictedSOH float64 `json:"predicted_soh"`
	DaysFromNow  int     `json:"days_from_now"`
}

// Result is the forecast for one device.
type Result struct {
	Status          Status              `json:"status"`
	Samples         int                 `json:"samples"`
	CurrentSOH      float64             `json:"current_soh"`
	Days            int                 `json:"prediction_days"`
	Slope           float64             `json:"slope"`
	Intercept       float64             `json:"intercept"`
	DaysPerSample   float64             `json:"days_per_sample"`
	Predictions     []Prediction        `json:"predictions"`
	History         []telemetry.Reading `json:"historical_data"`
	DegradationRate float64             `json:"degradation_rate"`
	Confidence      float64             `json:"prediction_confidence"`
	Comparison      *Comparison         `json:"comparison,omitempty"`
	Recommendation  Recommendation      `json:"recommendation"`
}

// Forecast fits soh = slope*index + intercept over the positive samples of
// the series and projects it days ahead. Fewer than MinSamples positive
// samples yield StatusInsufficient with neutral fields.
func Forecast(soh telemetry.Series, days int, cmp *Comparison) Result {
	if days < 0 {
		days = 0
	}
	pts := soh.Filter(func(r telemetry.Reading) bool { return r.Value > 0 }).Sorted()
	res := Result{
		Status:      StatusInsufficient,
		Samples:     len(pts),
		Days:        days,
		Predictions: []Prediction{},
		History:     []telemetry.Reading{},
		Comparison:  cmp,
	}
	if last, ok := pts.Latest(); ok {
		res.CurrentSOH = last.Value
	}
	if len(pts) < MinSamples {
		return res
	}
	res.Status = StatusOK

	n := len(pts)
	values := pts.Values()
	res.Slope, res.Intercept = fit(values)

	first, last := pts[0], pts[n-1]
	spanDays := last.Time.Sub(first.Time).Hours() / 24
	res.DaysPerSample = telemetry.SafeDiv(spanDays, float64(n-1))

	// Without a time span there is no way to map days onto sample steps.
	if res.DaysPerSample > 0 {
		for i := 1; i <= days; i++ {
			idx := float64(n-1) + float64(i)/res.DaysPerSample
			res.Predictions = append(res.Predictions, Prediction{
				Date:         last.Time.Add(time.Duration(i) * day).UTC().Format("2006-01-02"),
				PredictedSOH: telemetry.Clamp(res.Slope*idx+res.Intercept, 0, 100),
				DaysFromNow:  i,
			})
		}
	}

	res.DegradationRate = telemetry.SafeDiv(first.Value-last.Value, spanDays)
	res.Confidence = confidence(values)

	tail := pts
	if len(tail) > HistoryLen {
		tail = tail[len(tail)-HistoryLen:]
	}
	res.History = append(res.History, tail...)

	horizon := res.CurrentSOH
	if k := len(res.Predictions); k > 0 {
		horizon = res.Predictions[k-1].PredictedSOH
	}
	res.Recommendation = Recommend(horizon, cmp)
	return res
}

// fit returns the ordinary least squares line through (i, ys[i]).
func fit(ys []float64) (slope, intercept float64) {
	n := float64(len(ys))
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range ys {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	slope = telemetry.SafeDiv(n*sumXY-sumX*sumY, n*sumXX-sumX*sumX)
	intercept = telemetry.SafeDiv(sumY-slope*sumX, n)
	return slope, intercept
}

func confidence(values []float64) float64 {
	dataPoints := math.Min(1, float64(len(values))/50)
	consistency := math.Max(0.1, 1-telemetry.PopulationStd(values)/10)
	return telemetry.Round2(0.6*dataPoints + 0.4*consistency)
}
