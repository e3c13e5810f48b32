// Package telemetry normalizes raw BMS rows into per-device, per-field
// time series and offers the lookups the analysis packages share.
package telemetry

import "strings"

// Field identifies a known BMS measurement. Names are resolved once at the
// adapter boundary; anything unrecognised maps to FieldUnknown.
type Field int

// Known telemetry fields.
const (
	FieldUnknown Field = iota
	FieldSOC
	FieldSOH
	FieldPackVolt
	FieldPackCurrent
	FieldOdometer
	FieldModAvgTemp
	FieldMaxCellVolt
	FieldMinCellVolt
)

var fieldNames = map[Field]string{
	FieldUnknown:     "unknown",
	FieldSOC:         "soc",
	FieldSOH:         "soh",
	FieldPackVolt:    "pack_volt",
	FieldPackCurrent: "pack_current",
	FieldOdometer:    "odometer",
	FieldModAvgTemp:  "mod_avg_temp",
	FieldMaxCellVolt: "max_cell_volt",
	FieldMinCellVolt: "min_cell_volt",
}

var fieldsByName = func() map[string]Field {
	m := make(map[string]Field, len(fieldNames))
	for f, name := range fieldNames {
		if f != FieldUnknown {
			m[name] = f
		}
	}
	return m
}()

// ParseField maps a store field name to its Field. Matching ignores case and
// surrounding whitespace.
func ParseField(name string) Field {
	if f, ok := fieldsByName[strings.ToLower(strings.TrimSpace(name))]; ok {
		return f
	}
	return FieldUnknown
}

// String returns the store name of the field.
func (f Field) String() string {
	if name, ok := fieldNames[f]; ok {
		return name
	}
	return fieldNames[FieldUnknown]
}

// KnownFields lists every concrete field in declaration order.
func KnownFields() []Field {
	return []Field{
		FieldSOC,
		FieldSOH,
		FieldPackVolt,
		FieldPackCurrent,
		FieldOdometer,
		FieldModAvgTemp,
		FieldMaxCellVolt,
		FieldMinCellVolt,
	}
}
