// compute-service is the HTTP API server driving compute-to-data jobs
// on a remote provider node.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"c2d-service/internal/api"
	"c2d-service/internal/compute"
	"c2d-service/internal/config"
	"c2d-service/internal/health"
	"c2d-service/internal/notifier"
	"c2d-service/internal/observability"
	"c2d-service/internal/provider/ocean"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// Load configuration
	svcCfg := config.LoadServiceConfig()
	providerCfg, err := ocean.LoadConfigFromEnv()
	if err != nil {
		return err
	}
	orchCfg := compute.LoadConfigFromEnv()

	// Setup metrics
	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	// Create lifecycle event notifier when a callback destination is configured
	var eventNotifier *notifier.MemoryNotifier
	if svcCfg.CallbackURL != "" {
		notifierCfg := notifier.LoadConfigFromEnv()
		notifierCfg.CallbackURL = svcCfg.CallbackURL
		notifierCfg.SigningKey = svcCfg.CallbackKey
		eventNotifier = notifier.NewMemory(notifierCfg, metrics)
		orchCfg.Notifier = eventNotifier
	}
	orchCfg.Metrics = metrics

	// Create provider client
	provider, err := ocean.NewClient(providerCfg)
	if err != nil {
		return err
	}

	// Warm up the provider environment in the background so the first
	// start request does not pay for discovery and index checks.
	go func() {
		warmupCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()
		if err := provider.EnsureReady(warmupCtx); err != nil {
			slog.Warn("Provider environment not ready yet", "error", err)
		}
	}()

	// Create orchestrator and its request-facing service
	orchestrator := compute.NewOrchestrator(provider, orchCfg)
	defer orchestrator.Close()

	computeService := compute.NewService(orchestrator)

	// Create health checker
	healthChecker := health.NewChecker(provider)

	// Create API router
	router := api.NewRouter(api.RouterConfig{
		ComputeService: computeService,
		Metrics:        metrics,
		HealthChecker:  healthChecker,
		APIKey:         svcCfg.APIKey,
	})

	if svcCfg.APIKey != "" {
		slog.Info("API authentication enabled")
	} else {
		slog.Warn("API authentication disabled - no API_KEY configured")
	}

	// Create API server
	apiServer := &http.Server{
		Addr:         ":" + svcCfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Create metrics server
	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:         ":" + svcCfg.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Channel to capture server errors
	serverErr := make(chan error, 1)

	// Start API server
	go func() {
		slog.Info("Starting API server", "port", svcCfg.Port)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Start metrics server
	go func() {
		slog.Info("Starting metrics server", "port", svcCfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// shutdown closes both servers gracefully
	shutdown := func(timeout time.Duration) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server shutdown error", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server shutdown error", "error", err)
		}
	}

	// Wait for interrupt signal or server error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErr:
		slog.Error("Server failed to start", "error", err)
		shutdown(5 * time.Second)
		return err
	}

	// Phase 1: Mark service as unhealthy for load balancer draining
	healthChecker.SetShuttingDown()

	// Wait for load balancers to stop sending traffic
	if svcCfg.ShutdownDrainWait > 0 {
		slog.Info("Waiting for traffic to drain", "duration", svcCfg.ShutdownDrainWait)
		time.Sleep(svcCfg.ShutdownDrainWait)
	}

	// Phase 2: Graceful shutdown - stop accepting new connections, finish in-flight requests
	slog.Info("Starting graceful shutdown")
	shutdown(25 * time.Second)

	// Phase 3: Stop the poll loop. The provider-side job keeps running;
	// a restarted instance starts fresh in the idle phase.
	orchestrator.Close()

	// Phase 4: Drain the event notifier
	if eventNotifier != nil {
		slog.Info("Draining event notifier")
		notifierCtx, notifierCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer notifierCancel()
		if err := eventNotifier.Close(notifierCtx); err != nil {
			slog.Warn("Notifier shutdown error", "error", err)
		}

		stats := eventNotifier.Stats()
		slog.Info("Notifier stats",
			"delivered", stats.Delivered,
			"failed", stats.Failed,
			"dropped", stats.Dropped,
		)
	}

	slog.Info("Shutdown complete")
	return nil
}
