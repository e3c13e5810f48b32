// Package fleet summarizes the latest state of every device per car type.
package fleet

import (
	"sort"

	"github.com/okian/evpulse/internal/domain/telemetry"
)

// DeviceStatus is the latest SOC/SOH of one device with its letter grade.
type DeviceStatus struct {
	DeviceID string  `json:"device_id"`
	SOC      float64 `json:"soc"`
	SOH      float64 `json:"soh"`
	Grade    string  `json:"performance_grade"`
}

// CarType aggregates the devices of one car type.
type CarType struct {
	CarType      string         `json:"car_type"`
	DeviceCount  int            `json:"device_count"`
	AvgSOC       float64        `json:"avg_soc"`
	AvgSOH       float64        `json:"avg_soh"`
	TotalRecords int            `json:"total_records"`
	Devices      []DeviceStatus `json:"devices"`
}

// Overview is the fleet-wide summary.
type Overview struct {
	TotalDevices int       `json:"total_devices"`
	TotalRecords int       `json:"total_records"`
	CarTypes     []CarType `json:"car_types"`
}

// Summarize groups the fleet by car type, in car type name order. Devices
// keep fleet order within their car type. Averages only count devices that
// reported the field.
func Summarize(f telemetry.Fleet) Overview {
	byType := make(map[string]*CarType)
	socs := make(map[string][]float64)
	sohs := make(map[string][]float64)

	var ov Overview
	for _, d := range f.List() {
		ct, ok := byType[d.CarType]
		if !ok {
			ct = &CarType{CarType: d.CarType, Devices: []DeviceStatus{}}
			byType[d.CarType] = ct
		}
		st := DeviceStatus{DeviceID: d.ID}
		if r, ok := d.Series(telemetry.FieldSOC).Latest(); ok {
			st.SOC = r.Value
			socs[d.CarType] = append(socs[d.CarType], r.Value)
		}
		if r, ok := d.Series(telemetry.FieldSOH).Latest(); ok {
			st.SOH = r.Value
			sohs[d.CarType] = append(sohs[d.CarType], r.Value)
		}
		st.Grade = LetterGrade(st.SOH)

		records := 0
		for _, s := range d.Fields {
			records += s.Len()
		}
		ct.DeviceCount++
		ct.TotalRecords += records
		ct.Devices = append(ct.Devices, st)
		ov.TotalDevices++
		ov.TotalRecords += records
	}

	names := make([]string, 0, len(byType))
	for name := range byType {
		names = append(names, name)
	}
	sort.Strings(names)

	ov.CarTypes = make([]CarType, 0, len(names))
	for _, name := range names {
		ct := byType[name]
		ct.AvgSOC = telemetry.Round2(telemetry.Mean(socs[name]))
		ct.AvgSOH = telemetry.Round2(telemetry.Mean(sohs[name]))
		ov.CarTypes = append(ov.CarTypes, *ct)
	}
	return ov
}

// LetterGrade grades an SOH value A through D.
func LetterGrade(soh float64) string {
	switch {
	case soh >= 95:
		return "A"
	case soh >= 85:
		return "B"
	case soh >= 70:
		return "C"
	default:
		return "D"
	}
}
