// Package types contains common types used across the application
package types

import "github.com/okian/evpulse/internal/domain/scoring"

// Entry represents a leaderboard row
type Entry struct {
	Rank     int           `json:"rank"`
	DeviceID string        `json:"device_id"`
	CarType  string        `json:"car_type"`
	Score    float64       `json:"overall_score"`
	Grade    scoring.Grade `json:"performance_grade"`
}

// EntryFrom projects a ranked score onto a leaderboard row.
func EntryFrom(r scoring.Result) Entry {
	return Entry{
		Rank:     r.Rank,
		DeviceID: r.DeviceID,
		CarType:  r.CarType,
		Score:    r.Overall,
		Grade:    r.Grade,
	}
}

// Entries projects ranked scores onto leaderboard rows, keeping order.
func Entries(rs []scoring.Result) []Entry {
	out := make([]Entry, len(rs))
	for i, r := range rs {
		out[i] = EntryFrom(r)
	}
	return out
}
