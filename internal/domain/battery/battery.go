// Package battery profiles a single device's battery readings.
package battery

import (
	"github.com/okian/evpulse/internal/domain/telemetry"
)

// Label is a coarse rating.
type Label string

// Labels.
const (
	Excellent Label = "excellent"
	Good      Label = "good"
	Fair      Label = "fair"
	Caution   Label = "caution"
	NA        Label = "n/a"
)

// Bands used by the profile.
const (
	ColdBelow    = 15.0 // °C
	HotAbove     = 35.0 // °C
	LowSOCBelow  = 20.0 // percent
	HighSOCFrom  = 80.0 // percent
	voltageGood  = 0.1
	voltageFair  = 0.5
	sohExcellent = 95.0
	sohGood      = 85.0
	sohFair      = 70.0
)

// TemperatureRanges counts temperature samples per band.
type TemperatureRanges struct {
	Optimal int `json:"optimal"`
	Cold    int `json:"cold"`
	Hot     int `json:"hot"`
}

// SOCRanges counts SOC samples per band.
type SOCRanges struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// DataPoints counts samples per field.
type DataPoints struct {
	SOC         int `json:"soc"`
	SOH         int `json:"soh"`
	Voltage     int `json:"voltage"`
	Current     int `json:"current"`
	Temperature int `json:"temperature"`
}

// Profile summarizes one device's battery over the queried range.
type Profile struct {
	DeviceID          string            `json:"device_id"`
	AvgSOC            float64           `json:"avg_soc"`
	AvgSOH            float64           `json:"avg_soh"`
	AvgVoltage        float64           `json:"avg_voltage"`
	AvgCurrent        float64           `json:"avg_current"`
	AvgTemperature    float64           `json:"avg_temperature"`
	LatestSOC         float64           `json:"latest_soc"`
	LatestSOH         float64           `json:"latest_soh"`
	LatestVoltage     float64           `json:"latest_voltage"`
	LatestCurrent     float64           `json:"latest_current"`
	LatestTemperature float64           `json:"latest_temperature"`
	Health            Label             `json:"battery_health"`
	CellBalance       Label             `json:"cell_balance"`
	TemperatureRanges TemperatureRanges `json:"temperature_ranges"`
	SOCRanges         SOCRanges         `json:"soc_ranges"`
	DataPoints        DataPoints        `json:"data_points"`
}

// Analyze builds the battery profile of d.
func Analyze(d *telemetry.Device) Profile {
	soc := d.Series(telemetry.FieldSOC)
	soh := d.Series(telemetry.FieldSOH)
	volt := d.Series(telemetry.FieldPackVolt)
	current := d.Series(telemetry.FieldPackCurrent)
	temp := d.Series(telemetry.FieldModAvgTemp)

	p := Profile{
		DeviceID:          d.ID,
		AvgSOC:            telemetry.Mean(soc.Values()),
		AvgSOH:            telemetry.Mean(soh.Values()),
		AvgVoltage:        telemetry.Mean(volt.Values()),
		AvgCurrent:        telemetry.Mean(current.Values()),
		AvgTemperature:    telemetry.Mean(temp.Values()),
		LatestSOC:         latest(soc),
		LatestSOH:         latest(soh),
		LatestVoltage:     latest(volt),
		LatestCurrent:     latest(current),
		LatestTemperature: latest(temp),
		DataPoints: DataPoints{
			SOC:         soc.Len(),
			SOH:         soh.Len(),
			Voltage:     volt.Len(),
			Current:     current.Len(),
			Temperature: temp.Len(),
		},
	}

	p.Health = NA
	if soh.Len() > 0 {
		p.Health = HealthLabel(p.AvgSOH)
	}
	p.CellBalance = BalanceLabel(volt.Values())

	for _, r := range temp {
		switch {
		case r.Value < ColdBelow:
			p.TemperatureRanges.Cold++
		case r.Value > HotAbove:
			p.TemperatureRanges.Hot++
		default:
			p.TemperatureRanges.Optimal++
		}
	}
	for _, r := range soc {
		switch {
		case r.Value >= HighSOCFrom:
			p.SOCRanges.High++
		case r.Value < LowSOCBelow:
			p.SOCRanges.Low++
		default:
			p.SOCRanges.Medium++
		}
	}
	return p
}

// HealthLabel rates an average SOH.
func HealthLabel(soh float64) Label {
	switch {
	case soh >= sohExcellent:
		return Excellent
	case soh >= sohGood:
		return Good
	case soh >= sohFair:
		return Fair
	default:
		return Caution
	}
}

// BalanceLabel rates the spread of pack voltage samples by their population
// standard deviation. Fewer than two samples give NA.
func BalanceLabel(volts []float64) Label {
	if len(volts) < 2 {
		return NA
	}
	switch std := telemetry.PopulationStd(volts); {
	case std < voltageGood:
		return Good
	case std < voltageFair:
		return Fair
	default:
		return Caution
	}
}

func latest(s telemetry.Series) float64 {
	r, _ := s.Latest()
	return r.Value
}
