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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/booking-platform/cmd/mainconfig"
	"github.com/wolfman30/booking-platform/internal/app/bootstrap"
	appconfig "github.com/wolfman30/booking-platform/internal/config"
	"github.com/wolfman30/booking-platform/internal/notify"
	"github.com/wolfman30/booking-platform/pkg/logging"
)

func main() {
	if err := appconfig.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting booking API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"memory_stores", cfg.UseMemoryStores(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := bootstrap.ConnectPostgres(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	loc, err := cfg.Location()
	if err != nil {
		logger.Error("invalid booking timezone", "error", err)
		os.Exit(1)
	}
	stores := bootstrap.NewMemoryStores(loc)
	if pool != nil {
		defer pool.Close()
		stores = bootstrap.NewPostgresStores(pool, loc)
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	registry, metricsHandler := setupMetrics()
	engine, err := bootstrap.BuildEngine(bootstrap.EngineDeps{
		Config:     cfg,
		Stores:     stores,
		Redis:      redisClient,
		Email:      setupEmail(ctx, cfg, logger),
		Registerer: registry,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("failed to build booking engine", "error", err)
		os.Exit(1)
	}
	engine.StartBackground(ctx, true)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      engine.Router(metricsHandler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	cancel()
	engine.Shutdown(shutdownCtx)
	logger.Info("server stopped")
}

// setupMetrics builds a private registry with the Go and process collectors
// and the handler that serves it.
func setupMetrics() (*prometheus.Registry, http.Handler) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry, promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

func setupEmail(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) notify.EmailSender {
	sesClient, err := mainconfig.NewSESClient(ctx, cfg)
	if err != nil {
		logger.Warn("ses unavailable", "error", err)
	}
	if sesClient == nil {
		return bootstrap.BuildEmailSender(cfg, nil, logger)
	}
	return bootstrap.BuildEmailSender(cfg, sesClient, logger)
}
