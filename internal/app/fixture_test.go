package service_test

import (
	"fmt"
	"time"

	"github.com/okian/evpulse/internal/domain/telemetry"
)

var t0 = time.Date(2023, 3, 1, 8, 0, 0, 0, time.UTC)

func row(id, carType, field string, at time.Time, v any) telemetry.Row {
	return telemetry.Row{DeviceID: id, CarType: carType, Field: field, Time: at, Value: v}
}

// fleetRows builds ten healthy PORTER2 devices, one degraded PORTER2 device
// and two GV60 devices. Every device reports daily for twenty days.
func fleetRows() []telemetry.Row {
	var rows []telemetry.Row
	add := func(id, carType string, soh float64) {
		for day := 0; day < 20; day++ {
			at := t0.Add(time.Duration(day) * 24 * time.Hour)
			rows = append(rows,
				row(id, carType, "soh", at, soh-float64(day)*0.01),
				row(id, carType, "soc", at, 60.0),
				row(id, carType, "mod_avg_temp", at, 24.0),
				row(id, carType, "pack_volt", at, 350.0),
				row(id, carType, "max_cell_volt", at, 3.70),
				row(id, carType, "min_cell_volt", at, 3.68),
				row(id, carType, "odometer", at, 1000.0+float64(day)*40),
			)
		}
	}
	for i := 0; i < 10; i++ {
		add(fmt.Sprintf("p-%02d", i), "PORTER2", 95+float64(i%2))
	}
	add("p-bad", "PORTER2", 60)
	add("g-1", "GV60", 90)
	add("g-2", "GV60", 91)
	return rows
}

// tripRows is one device driving 100, 105, 102, 60, 65 at one-minute
// spacing.
func tripRows(id string) []telemetry.Row {
	var rows []telemetry.Row
	for i, km := range []float64{100, 105, 102, 60, 65} {
		rows = append(rows, row(id, "PORTER2", "odometer", t0.Add(time.Duration(i)*time.Minute), km))
	}
	return rows
}

// chargeRows is one device charging from 20% to 80% over one hour.
func chargeRows(id string) []telemetry.Row {
	var rows []telemetry.Row
	for i := 0; i <= 6; i++ {
		at := t0.Add(time.Duration(i) * 10 * time.Minute)
		rows = append(rows,
			row(id, "GV60", "soc", at, 20.0+float64(i)*10),
			row(id, "GV60", "pack_current", at, -40.0),
			row(id, "GV60", "pack_volt", at, "360.5"),
		)
	}
	return rows
}
