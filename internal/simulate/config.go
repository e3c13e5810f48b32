// Package simulate generates a synthetic EV fleet and writes its readings to
// a readings store or to a running service.
package simulate

import (
	"time"
)

// Config holds configuration for a simulation run.
type Config struct {
	Devices       int           // Number of devices to simulate
	Days          int           // Number of simulated days per device
	Interval      time.Duration // Sample spacing inside active windows
	Start         time.Time     // First simulated day (UTC midnight)
	CarTypes      []string      // Car types, assigned round-robin
	DegradedShare float64       // Share of devices with a worn battery
	Seed          uint64        // Seed for reproducible fleets
	Workers       int           // Number of concurrent generators and writers
	BatchSize     int           // Rows per write
	DBPath        string        // SQLite readings store; empty posts to BaseURL
	BaseURL       string        // Base URL of a running service
	Timeout       time.Duration // HTTP request timeout
	Verbose       bool          // Enable verbose logging
}

// Stats holds run statistics.
type Stats struct {
	Devices        int
	RowsGenerated  int
	RowsWritten    int
	BatchesFailed  int
	FleetDevices   int
	LeaderboardTop string
	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
}

// Default configuration values.
const (
	DefaultDevices       = 20
	DefaultDays          = 30
	DefaultInterval      = 10 * time.Minute
	DefaultDegradedShare = 0.1
	DefaultSeed          = 42
	DefaultBatchSize     = 2000
	DefaultTimeout       = 30 * time.Second
	DefaultBaseURL       = "http://localhost:9080"
)

// DefaultCarTypes are the car types assigned when none are configured.
var DefaultCarTypes = []string{"PORTER2", "GV60", "EV6", "IONIQ5"}

// DefaultStart is the first simulated day.
var DefaultStart = time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)

// withDefaults fills unset fields.
func (c Config) withDefaults() Config {
	if c.Devices <= 0 {
		c.Devices = DefaultDevices
	}
	if c.Days <= 0 {
		c.Days = DefaultDays
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Start.IsZero() {
		c.Start = DefaultStart
	}
	if len(c.CarTypes) == 0 {
		c.CarTypes = DefaultCarTypes
	}
	if c.DegradedShare < 0 || c.DegradedShare > 1 {
		c.DegradedShare = DefaultDegradedShare
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	return c
}
