package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/okian/evpulse/internal/simulate"
	"github.com/okian/evpulse/pkg/logger"
)

// Default configuration constants.
const (
	defaultWorkers    = 2 // multiplier for runtime.NumCPU()
	defaultRunTimeout = 30 * time.Minute
)

func main() {
	var (
		dbPath   = flag.String("db", "", "SQLite readings store to write; when empty readings are posted to -url")
		baseURL  = flag.String("url", simulate.DefaultBaseURL, "Base URL of the service")
		devices  = flag.Int("devices", simulate.DefaultDevices, "Number of devices")
		days     = flag.Int("days", simulate.DefaultDays, "Number of simulated days")
		interval = flag.Duration("interval", simulate.DefaultInterval, "Sample spacing")
		start    = flag.String("start", simulate.DefaultStart.Format(time.DateOnly), "First simulated day (YYYY-MM-DD)")
		carTypes = flag.String("car-types", strings.Join(simulate.DefaultCarTypes, ","), "Comma separated car types")
		degraded = flag.Float64("degraded", simulate.DefaultDegradedShare, "Share of devices with a worn battery")
		seed     = flag.Uint64("seed", simulate.DefaultSeed, "Random seed")
		batch    = flag.Int("batch", simulate.DefaultBatchSize, "Readings per write")
		workers  = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout  = flag.Duration("timeout", simulate.DefaultTimeout, "HTTP request timeout")
		logFile  = flag.String("log", "", "Log file (default: seed_log_TIMESTAMP.log)")
		verbose  = flag.Bool("verbose", false, "Enable verbose logging")
		help     = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		simulate.ShowHelp()
		return
	}

	closer, err := simulate.SetupLogging(*logFile, logger.FormatText)
	if err != nil {
		_, _ = os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = closer.Close() }()
	if *verbose {
		_ = logger.SetLevelString("debug")
	}

	first, err := time.Parse(time.DateOnly, *start)
	if err != nil {
		_, _ = os.Stderr.WriteString("Invalid -start: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	cfg := simulate.Config{
		Devices:       *devices,
		Days:          *days,
		Interval:      *interval,
		Start:         first,
		CarTypes:      splitList(*carTypes),
		DegradedShare: *degraded,
		Seed:          *seed,
		Workers:       *workers,
		BatchSize:     *batch,
		DBPath:        *dbPath,
		BaseURL:       *baseURL,
		Timeout:       *timeout,
		Verbose:       *verbose,
	}

	if _, err := simulate.Run(ctx, cfg); err != nil {
		_, _ = os.Stderr.WriteString("Seed failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToUpper(part))
		}
	}
	return out
}
