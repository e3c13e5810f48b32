package simulate

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/evpulse/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging sends log output to both stdout and a file. If logFile is
// empty, a timestamped filename is generated.
func SetupLogging(logFile, format string) (io.Closer, error) {
	if logFile == "" {
		logFile = "seed_log_" + time.Now().Format("20060102_150405") + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	if err := logger.InitWithWriter(io.MultiWriter(os.Stdout, file), format); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return file, nil
}

// ShowHelp prints usage information for the seed tool.
func ShowHelp() {
	_, _ = os.Stdout.WriteString(`evpulse fleet simulator
=======================

Generates a synthetic EV fleet and writes its battery readings either into a
SQLite readings store or to a running evpulse service.

Usage:
  go run ./cmd/seed [options]

Options:
  -db string
        SQLite readings store to write; when empty readings are posted to -url
  -url string
        Base URL of the service (default "http://localhost:9080")
  -devices int
        Number of devices (default 20)
  -days int
        Number of simulated days (default 30)
  -interval duration
        Sample spacing while driving, idle or charging (default 10m)
  -start string
        First simulated day, YYYY-MM-DD (default 2023-03-01)
  -car-types string
        Comma separated car types (default "PORTER2,GV60,EV6,IONIQ5")
  -degraded float
        Share of devices with a worn battery (default 0.1)
  -seed uint
        Random seed (default 42)
  -batch int
        Readings per write (default 2000)
  -workers int
        Number of concurrent workers (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 30s)
  -log string
        Log file (default: seed_log_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Build a local store for the service
  go run ./cmd/seed -db readings.db -devices 200 -days 90

  # Feed a running service
  go run ./cmd/seed -url http://localhost:9080 -devices 50
`)
}
