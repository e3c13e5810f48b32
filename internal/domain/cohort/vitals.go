// Package cohort derives per-device battery indices, baselines them per car
// type and flags devices that deviate from their cohort.
package cohort

import (
	"math"
	"time"

	"github.com/okian/evpulse/internal/domain/telemetry"
)

// Vitals is the latest-value snapshot of one device plus its derived indices.
type Vitals struct {
	DeviceID    string    `json:"device_id"`
	CarType     string    `json:"car_type"`
	SOH         float64   `json:"soh"`
	SOC         float64   `json:"soc"`
	PackVolt    float64   `json:"pack_volt"`
	Temp        float64   `json:"mod_avg_temp"`
	MaxCellVolt float64   `json:"max_cell_volt"`
	MinCellVolt float64   `json:"min_cell_volt"`
	Odometer    float64   `json:"odometer"`
	CellBalance float64   `json:"cell_balance_index"`
	Health      float64   `json:"composite_health_index"`
	LastUpdated time.Time `json:"last_updated"`
}

// Snapshot takes the latest reading of every field of d. Missing fields are 0.
func Snapshot(d *telemetry.Device) Vitals {
	latest := func(f telemetry.Field) float64 {
		r, _ := d.Series(f).Latest()
		return r.Value
	}
	v := Vitals{
		DeviceID:    d.ID,
		CarType:     d.CarType,
		SOH:         latest(telemetry.FieldSOH),
		SOC:         latest(telemetry.FieldSOC),
		PackVolt:    latest(telemetry.FieldPackVolt),
		Temp:        latest(telemetry.FieldModAvgTemp),
		MaxCellVolt: latest(telemetry.FieldMaxCellVolt),
		MinCellVolt: latest(telemetry.FieldMinCellVolt),
		Odometer:    latest(telemetry.FieldOdometer),
		LastUpdated: d.LastUpdated,
	}
	v.CellBalance = CellBalanceIndex(v.MaxCellVolt, v.MinCellVolt, v.PackVolt)
	v.Health = CompositeHealthIndex(v.SOH, v.SOC, v.Temp, v.CellBalance)
	return v
}

// CellBalanceIndex is the cell voltage spread as a percentage of pack
// voltage. It is 0 when any operand is non-positive.
func CellBalanceIndex(maxCell, minCell, pack float64) float64 {
	if maxCell <= 0 || minCell <= 0 || pack <= 0 {
		return 0
	}
	return (maxCell - minCell) / pack * 100
}

// CompositeHealthIndex blends SOH, SOC, temperature distance from 25°C and
// cell balance into a [0,100] index.
func CompositeHealthIndex(soh, soc, temp, cbi float64) float64 {
	tempScore := math.Max(0, 100-2*math.Abs(temp-25))
	balanceScore := math.Max(0, 100-10*cbi)
	return telemetry.Clamp(0.4*soh+0.2*soc+0.2*tempScore+0.2*balanceScore, 0, 100)
}
