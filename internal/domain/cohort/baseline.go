package cohort

import (
	"math"

	"github.com/okian/evpulse/internal/domain/telemetry"
)

// Stat is the mean and Bessel-corrected standard deviation of one metric.
type Stat struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
	N    int     `json:"n"`
}

// Baseline holds the cohort statistics of one car type.
type Baseline struct {
	CarType string `json:"car_type"`
	Devices int    `json:"devices"`
	SOH     Stat   `json:"soh"`
	Health  Stat   `json:"health"`
	Balance Stat   `json:"balance"`
	Temp    Stat   `json:"temp"`
}

// ComputeBaselines groups vitals by car type and computes per-metric
// statistics over devices whose metric value is positive. It has no state:
// every call recomputes from the given snapshot.
func ComputeBaselines(vitals []Vitals) map[string]Baseline {
	type bucket struct {
		devices                    int
		soh, health, balance, temp []float64
	}
	buckets := make(map[string]*bucket)
	for _, v := range vitals {
		b, ok := buckets[v.CarType]
		if !ok {
			b = &bucket{}
			buckets[v.CarType] = b
		}
		b.devices++
		b.soh = appendPositive(b.soh, v.SOH)
		b.health = appendPositive(b.health, v.Health)
		b.balance = appendPositive(b.balance, v.CellBalance)
		b.temp = appendPositive(b.temp, v.Temp)
	}

	out := make(map[string]Baseline, len(buckets))
	for carType, b := range buckets {
		out[carType] = Baseline{
			CarType: carType,
			Devices: b.devices,
			SOH:     statOf(b.soh),
			Health:  statOf(b.health),
			Balance: statOf(b.balance),
			Temp:    statOf(b.temp),
		}
	}
	return out
}

func appendPositive(xs []float64, x float64) []float64 {
	if x > 0 {
		return append(xs, x)
	}
	return xs
}

func statOf(xs []float64) Stat {
	return Stat{Mean: telemetry.Mean(xs), Std: telemetry.SampleStd(xs), N: len(xs)}
}

// ZScore returns |x-mean|/std, or 0 when the cohort has no spread.
func ZScore(x float64, s Stat) float64 {
	if s.Std <= 0 {
		return 0
	}
	return math.Abs(x-s.Mean) / s.Std
}
