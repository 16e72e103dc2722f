package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/okian/fibertrace/internal/adapters/http/api"
	"github.com/okian/fibertrace/internal/adapters/http/swagger"
	"github.com/okian/fibertrace/internal/adapters/repository"
	app "github.com/okian/fibertrace/internal/app"
	"github.com/okian/fibertrace/internal/config"
	"github.com/okian/fibertrace/internal/domain/estimator"
	"github.com/okian/fibertrace/internal/domain/regression"
	"github.com/okian/fibertrace/pkg/logger"
	"github.com/okian/fibertrace/pkg/metrics"
	"github.com/okian/fibertrace/pkg/telemetry"
)

const serviceName = "fibertrace"

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics
	// We collect our own custom system metrics instead
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	shutdownTracing, err := telemetry.Init(ctx, cfg.TraceExporter, serviceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn(ctx, "tracer shutdown failed", logger.Error(err))
		}
	}()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer func() {
			if err := store.Close(); err != nil {
				log.Warn(ctx, "failed to close sample store", logger.Error(err))
			}
		}()
	}

	opts, err := serviceOptions(cfg, store)
	if err != nil {
		return err
	}
	svc := app.New(append(opts, app.WithLogger(log.Named("service")))...)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, svc, cfg),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or a listener failure
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

// openStore returns the Postgres store when a DSN is configured and nil
// otherwise, which makes the service fall back to memory.
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	if cfg.DatabaseURL == "" {
		return nil, nil
	}
	store, err := repository.OpenPGStore(ctx, cfg.DatabaseURL,
		repository.WithTable(cfg.SamplesTable),
		repository.WithMaxOpenConns(cfg.DBMaxOpenConns),
		repository.WithConnMaxLifetime(time.Duration(cfg.DBConnMaxLifetimeSeconds)*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open sample store: %w", err)
	}
	return store, nil
}

// serviceOptions maps configuration onto service options.
func serviceOptions(cfg *config.Config, store repository.Store) ([]app.Option, error) {
	kind, err := regression.ParseKind(cfg.ModelKind)
	if err != nil {
		return nil, fmt.Errorf("model_kind: %w", err)
	}
	return []app.Option{
		app.WithStore(store),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithDatasetCacheTTL(cfg.DatasetCacheTTL()),
		app.WithRequireIdentity(cfg.RequireIdentity),
		app.WithEstimatorOptions(
			estimator.WithDominanceThreshold(cfg.DominanceThreshold),
			estimator.WithSignalCeiling(cfg.SignalCeiling),
			estimator.WithMinSamples(cfg.MinTrainingSamples),
			estimator.WithTolerance(cfg.BlendTolerance),
			estimator.WithRangeCheck(cfg.RangeCheck),
			estimator.WithModelKind(kind),
		),
	}, nil
}

// newMux registers the documentation and API routes.
func newMux(ctx context.Context, svc *app.Service, cfg *config.Config) *http.ServeMux {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc,
		api.WithLogger(logger.Get().Named("api")),
		api.WithIdentityHeader(cfg.IdentityHeader),
	).Register(ctx, mux)
	return mux
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
