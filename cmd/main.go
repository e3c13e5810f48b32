package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/evpulse/internal/adapters/http/api"
	"github.com/okian/evpulse/internal/adapters/http/swagger"
	"github.com/okian/evpulse/internal/adapters/readings"
	service "github.com/okian/evpulse/internal/app"
	"github.com/okian/evpulse/internal/config"
	"github.com/okian/evpulse/internal/simulate"
	"github.com/okian/evpulse/pkg/logger"
	"github.com/okian/evpulse/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
)

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics
	// We collect our own custom system metrics instead
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> .env -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Use stderr for initialization errors since logger isn't available yet
		_, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.InitWithFormat(cfg.LogFormat); err != nil {
		_, _ = os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "service failed", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	src, err := openSource(ctx, cfg)
	if err != nil {
		return err
	}

	svc, err := newService(cfg, src, log)
	if err != nil {
		_ = src.Close()
		return err
	}
	if err := svc.Start(ctx); err != nil {
		_ = src.Close()
		return fmt.Errorf("failed to start service: %w", err)
	}

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	mux := http.NewServeMux()
	swagger.Register(mux)
	api.NewServer(svc, svc).Register(mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			log.Error(ctx, "HTTP server failed", logger.Error(err))
		}
	}
	log.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	if err := svc.Stop(shutdownCtx); err != nil {
		log.Error(ctx, "service shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// openSource opens the SQLite store at db_path. Without one, an in-memory
// store is used, seeded with a synthetic fleet when simulate_devices is set.
func openSource(ctx context.Context, cfg *config.Config) (readings.Source, error) {
	if cfg.DBPath != "" {
		src, err := readings.OpenSQLite(ctx, cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open readings store: %w", err)
		}
		logger.Get().Info(ctx, "using sqlite readings store", logger.String("path", cfg.DBPath))
		return src, nil
	}

	mem := readings.NewMemorySource()
	if cfg.SimulateDevices > 0 {
		start, _, err := cfg.TimeRange()
		if err != nil {
			return nil, err
		}
		n, err := simulate.Seed(ctx, simulate.Config{
			Devices: cfg.SimulateDevices,
			Start:   start,
			Workers: cfg.WorkerCount,
		}, mem)
		if err != nil {
			return nil, fmt.Errorf("failed to seed synthetic fleet: %w", err)
		}
		logger.Get().Info(ctx, "seeded in-memory readings store",
			logger.Int("devices", cfg.SimulateDevices),
			logger.Int("rows", n))
	}
	return mem, nil
}

func newService(cfg *config.Config, src readings.Source, log logger.Logger) (*service.Service, error) {
	start, stop, err := cfg.TimeRange()
	if err != nil {
		return nil, err
	}
	return service.New(
		service.WithLogger(log),
		service.WithSource(src),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.QueueSize),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithMaxRankLimit(cfg.MaxRankLimit),
		service.WithTimeRange(start, stop),
		service.WithOdometerThresholds(cfg.OdometerResetThreshold, cfg.OdometerNoiseThreshold),
		service.WithAnomalyThreshold(cfg.AnomalyThreshold),
		service.WithForecastHorizon(cfg.ForecastDays, cfg.MaxForecastDays),
	), nil
}

// startSystemMetricsUpdater updates system metrics until ctx is done.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metrics.Default().RefreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.CollectSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater updates service gauges until ctx is done.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(metrics.Default().RefreshInterval() / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

// updateServiceMetrics copies service stats into gauges.
func updateServiceMetrics(svc *service.Service) {
	stats := svc.GetStats()

	if queueLen, ok := stats["queueLength"].(int); ok {
		metrics.UpdateQueueSize(queueLen)
	}
	if scored, ok := stats["scoredDevices"].(int); ok {
		metrics.UpdateScoredDevices(scored)
	}
	if workerCount, ok := stats["workerCount"].(int); ok {
		metrics.UpdateWorkerCount(workerCount)
	}
}
