/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the closing engine HTTP server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment)
  2. Build the zap logger
  3. Open the configured store (sqlite, postgres or memory)
  4. Create services and API handler
  5. Start server with graceful shutdown

ENVIRONMENT:
  PORT                  HTTP port (default: 8080)
  STORE_DRIVER          sqlite | postgres | memory (default: sqlite)
  SQLITE_PATH           SQLite database path (default: closings.db)
  PGSQL_URL             PostgreSQL URL, required for the postgres driver
  LOG_LEVEL, LOG_FORMAT Logger settings (default: info, json)
  TIMEZONE              Zone used to derive "today" (default: UTC)
  HISTORY_CUTOFF        First closing date listed as history
  MONTH_END_POLICY      clamp | rollover (default: clamp)
  CORS_ALLOWED_ORIGINS  Comma separated origins (default: *)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close the store
  4. Exit

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Configuration loading
  - store/open.go: Backend selection
*/
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

	"go.uber.org/zap"

	"github.com/Jelela/mishorasmed/api"
	"github.com/Jelela/mishorasmed/billing"
	"github.com/Jelela/mishorasmed/catalog"
	"github.com/Jelela/mishorasmed/config"
	"github.com/Jelela/mishorasmed/consolidation"
	"github.com/Jelela/mishorasmed/entries"
	"github.com/Jelela/mishorasmed/logging"
	"github.com/Jelela/mishorasmed/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, "closing-engine")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	// Initialize store
	backend, err := store.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer backend.Close()

	// Initialize services
	closings := consolidation.NewService(backend,
		consolidation.WithPeriodCalculator(cfg.PeriodCalculator()),
		consolidation.WithAggregateOptions(cfg.AggregateOptions()),
		consolidation.WithLogger(logger),
	)
	recorder := entries.NewRecorder(backend, entries.WithLogger(logger))
	catalogs := catalog.NewService(backend, catalog.WithLogger(logger))

	handler := api.NewHandler(closings, recorder,
		api.WithToday(func() billing.Date { return cfg.Today(time.Now()) }),
		api.WithHealthCheck(backend.Ping),
		api.WithCatalog(catalogs),
		api.WithLogger(logger),
	)
	router := api.NewRouter(handler, api.RouterConfig{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Logger:         logger,
	})

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.Int("port", cfg.Port),
			zap.String("store", backend.Driver),
			zap.Stringer("month_end_policy", cfg.MonthEnd),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return err
	case <-quit:
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
