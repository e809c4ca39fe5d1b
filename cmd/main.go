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

	"github.com/okian/visiontags/internal/adapters/http/api"
	repository "github.com/okian/visiontags/internal/adapters/repository"
	app "github.com/okian/visiontags/internal/app"
	"github.com/okian/visiontags/internal/config"
	"github.com/okian/visiontags/internal/domain/classifier"
	"github.com/okian/visiontags/pkg/logger"
	"github.com/okian/visiontags/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 30 * time.Second
	writeTimeout              = 60 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	if err := logger.Init(); err != nil {
		// Use fmt for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.Get().Error(ctx, "visiontags exited", logger.Error(err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	if err := logger.SetFormat(cfg.LogFormat); err != nil {
		return err
	}
	loggerInstance := logger.Get()
	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		loggerInstance.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	registry := classifier.NewRegistry(modelSpecs(cfg),
		classifier.WithMaxConcurrent(int64(cfg.MaxConcurrentInference)),
		classifier.WithRegistryLogger(loggerInstance.Named("classifier")),
	)

	svc := app.New(store, registry,
		app.WithLogger(loggerInstance),
		app.WithBackend(cfg.Store),
		app.WithWindowSize(cfg.WindowSize),
		app.WithNeighborCount(cfg.NeighborCount),
		app.WithTopK(cfg.TopK),
		app.WithOverlayOpacity(cfg.OverlayOpacity),
		app.WithDefaultModel(cfg.DefaultModel),
	)
	if err := svc.Start(ctx); err != nil {
		_ = store.Close()
		return err
	}
	defer svc.Stop()

	// Build the default model up front so the first request does not pay for it.
	if _, err := registry.Get(ctx, cfg.DefaultModel); err != nil {
		loggerInstance.Warn(ctx, "default model not ready", logger.String("model", cfg.DefaultModel), logger.Error(err))
	}

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	apiServer, err := api.NewServer(svc, svc,
		api.WithMaxUploadBytes(cfg.MaxUploadBytes),
		api.WithMaxImagePixels(cfg.MaxImagePixels),
		api.WithRateLimit(cfg.RateLimitPerSec, cfg.RateLimitBurst),
	)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	apiServer.Register(ctx, mux)

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
		loggerInstance.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("%w: %w", api.ErrServe, err)
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}
	loggerInstance.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		loggerInstance.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	loggerInstance.Info(ctx, "server stopped")
	return nil
}

// openStore builds the configured record backend.
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		return repository.NewSQLiteStore(ctx, cfg.SQLitePath)
	case config.StorePostgres:
		return repository.NewPostgresStore(ctx, cfg.PostgresDSN)
	default:
		return repository.NewMemoryStore(ctx, repository.WithRetention(cfg.MemoryRetention)), nil
	}
}

// modelSpecs converts configured models to classifier specs.
func modelSpecs(cfg *config.Config) map[string]classifier.Spec {
	specs := make(map[string]classifier.Spec, len(cfg.Models))
	for key, m := range cfg.Models {
		specs[key] = classifier.Spec{
			Kind:         m.Kind,
			URL:          m.URL,
			Labels:       m.Labels,
			Channels:     m.Channels,
			EmbeddingDim: m.EmbeddingDim,
			InputSize:    m.InputSize,
			Seed:         m.Seed,
			Timeout:      time.Duration(m.TimeoutMS) * time.Millisecond,
			RatePerSec:   m.RatePerSec,
		}
	}
	return specs
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

// startServiceMetricsUpdater starts a background goroutine that updates service metrics.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
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

// updateServiceMetrics refreshes gauges derived from service state.
func updateServiceMetrics(svc *app.Service) {
	stats := svc.GetStats()
	if loaded, ok := stats["modelsLoaded"].(int); ok {
		metrics.UpdateModelsLoaded(loaded)
	}
}
