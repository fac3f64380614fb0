/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the payroll engine HTTP server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env and environment configuration, then apply flags
  2. Open the SQLite or PostgreSQL store
  3. Create API handler with dependencies
  4. Start the recompute scheduler when enabled
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port      HTTP server port (overrides APP_PORT)
  -db        SQLite database path (overrides DB_PATH, forces DB_DRIVER=sqlite)
             Use ":memory:" for in-memory database
  -env-file  Env file to load (default: .env when present)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler, waiting for a running job
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  # Run with file database
  ./server -db="./data/payroll.db"

  # Run against PostgreSQL with the nightly recompute
  DB_DRIVER=postgres DB_HOST=db SCHEDULER_ENABLED=true ./server

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - api/scheduler.go: Nightly recompute
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "time/tzdata"

	"github.com/warp/payroll-engine/api"
	"github.com/warp/payroll-engine/config"
	"github.com/warp/payroll-engine/store"
)

var version = "dev"

func main() {
	// Flags
	port := flag.Int("port", 0, "HTTP server port")
	dbPath := flag.String("db", "", "SQLite database path")
	envFile := flag.String("env-file", "", "env file to load")
	flag.Parse()

	var files []string
	if *envFile != "" {
		files = append(files, *envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.App.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Driver = config.DriverSQLite
		cfg.Database.Path = *dbPath
	}

	logger := api.NewLogger(api.LoggerOptions{
		Level:   cfg.SlogLevel(),
		Env:     cfg.App.Env,
		Version: version,
	})
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize store
	st, err := store.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer st.Close()
	logger.Info("database ready", slog.String("driver", cfg.Database.Driver))

	// Initialize handler
	handler := api.NewHandler(st, logger)
	handler.Recorder.MinInterval = cfg.Payroll.PunchMinInterval
	handler.PolicyFactory.Location = cfg.Location()

	if cfg.Scheduler.Enabled {
		scheduler := api.NewPayrollScheduler(handler, cfg.Scheduler.Spec)
		scheduler.ClosingDayOnly = cfg.Scheduler.ClosingDayOnly
		if err := scheduler.Start(ctx); err != nil {
			return err
		}
		defer scheduler.Stop()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      api.NewRouter(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", slog.Int("port", cfg.App.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
