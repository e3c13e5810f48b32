package telemetry

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Row is a raw reading as delivered by the telemetry store. Value is loosely
// typed because upstream stores hand back numbers, numeric strings, "NaN"
// and nulls interchangeably.
type Row struct {
	DeviceID string
	CarType  string
	Field    string
	Time     time.Time
	Value    any
}

// Device holds every accepted series of one vehicle.
type Device struct {
	ID          string
	CarType     string
	Fields      map[Field]Series
	LastUpdated time.Time
}

// Series returns the series for f, or nil.
func (d *Device) Series(f Field) Series {
	if d == nil {
		return nil
	}
	return d.Fields[f]
}

// Fleet is the grouped form of a batch of rows.
type Fleet struct {
	Devices map[string]*Device
	// Order lists device ids by first appearance in the input rows.
	Order []string
}

// Device returns the device with the given id.
func (f Fleet) Device(id string) (*Device, bool) {
	d, ok := f.Devices[id]
	return d, ok
}

// List returns the devices in fleet order.
func (f Fleet) List() []*Device {
	out := make([]*Device, 0, len(f.Order))
	for _, id := range f.Order {
		out = append(out, f.Devices[id])
	}
	return out
}

// GroupStats counts what Group kept and what it discarded.
type GroupStats struct {
	Accepted     int
	InvalidValue int
	UnknownField int
	MissingID    int
}

// Dropped returns the number of discarded rows.
func (s GroupStats) Dropped() int {
	return s.InvalidValue + s.UnknownField + s.MissingID
}

// Group converts raw rows into per-device, per-field series sorted by time.
// Rows with missing, non-numeric or non-finite values and rows naming an
// unknown field are discarded without error. Same-timestamp rows are kept
// as independent samples.
func Group(rows []Row) (Fleet, GroupStats) {
	fleet := Fleet{Devices: make(map[string]*Device)}
	var stats GroupStats

	for _, row := range rows {
		id := strings.TrimSpace(row.DeviceID)
		if id == "" {
			stats.MissingID++
			continue
		}
		field := ParseField(row.Field)
		if field == FieldUnknown {
			stats.UnknownField++
			continue
		}
		value, ok := ParseValue(row.Value)
		if !ok {
			stats.InvalidValue++
			continue
		}

		dev, exists := fleet.Devices[id]
		if !exists {
			dev = &Device{ID: id, Fields: make(map[Field]Series)}
			fleet.Devices[id] = dev
			fleet.Order = append(fleet.Order, id)
		}
		if ct := strings.TrimSpace(row.CarType); ct != "" {
			dev.CarType = ct
		}
		if row.Time.After(dev.LastUpdated) {
			dev.LastUpdated = row.Time
		}
		dev.Fields[field] = append(dev.Fields[field], Reading{Time: row.Time, Value: value})
		stats.Accepted++
	}

	for _, dev := range fleet.Devices {
		for f, s := range dev.Fields {
			dev.Fields[f] = s.Sorted()
		}
	}
	return fleet, stats
}

// ParseValue converts a loosely typed store value into a finite float64.
func ParseValue(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case nil:
		return 0, false
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint:
		f = float64(x)
	case uint32:
		f = float64(x)
	case uint64:
		f = float64(x)
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		s := strings.TrimSpace(x)
		if s == "" || strings.EqualFold(s, "nan") {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
