/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the obligation debt tracker server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (flags, env, .env, YAML)
  2. Initialize logger
  3. Open and initialize the SQLite store (schema, migration, seed)
  4. Build ledger, optional remote, reconciler
  5. Configure HTTP router and start the sweep scheduler (logs totals
     after every sweep that charged days)
  6. Start server with graceful shutdown

REMOTE BACKUP:
  --remote-dsn     Postgres remote (sqlx + lib/pq)
  --memory-remote  In-process remote for local development
  neither          Sync endpoints answer "skipped"

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler
  4. Close database connections
  5. Exit

EXAMPLES:
  # Run with file database
  ./server --db=./data/obligations.db

  # Run with in-memory database and an in-process remote
  ./server --db=:memory: --memory-remote --jwt-secret=dev

  # Run from a config file
  ./server --config=obligations.yaml

SEE ALSO:
  - config/config.go: All settings and their env vars
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Local database
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/kaza-tracker/obligation-engine/api"
	"github.com/kaza-tracker/obligation-engine/config"
	"github.com/kaza-tracker/obligation-engine/debt"
	"github.com/kaza-tracker/obligation-engine/logger"
	"github.com/kaza-tracker/obligation-engine/store/postgres"
	"github.com/kaza-tracker/obligation-engine/store/sqlite"
	"github.com/kaza-tracker/obligation-engine/syncer"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if err := logger.Init(logger.Config{Debug: cfg.Debug, LogDir: cfg.LogDir}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Initialize store
	if cfg.DB != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DB), 0o755); err != nil {
			logger.Fatal("failed to create database directory", "path", cfg.DB, "error", err)
		}
	}
	store, err := sqlite.New(cfg.DB)
	if err != nil {
		logger.Fatal("failed to open database", "path", cfg.DB, "error", err)
	}
	defer store.Close()

	ledger := debt.NewLedger(store)
	if err := ledger.Initialize(ctx); err != nil {
		logger.Fatal("failed to initialize database", "error", err)
	}

	// Remote backup
	var remote syncer.Remote
	switch {
	case cfg.RemoteDSN != "":
		pg, err := postgres.New(ctx, cfg.RemoteDSN)
		if err != nil {
			logger.Fatal("failed to connect to remote", "error", err)
		}
		defer pg.Close()
		remote = pg
		logger.Info("remote backup enabled", "backend", "postgres")
	case cfg.MemoryRemote:
		remote = syncer.NewMemoryRemote()
		logger.Warn("remote backup uses an in-process store, data is lost on exit")
	default:
		logger.Info("remote backup disabled, running local-only")
	}
	reconciler := syncer.NewReconciler(store, remote)

	handler := api.NewHandler(ledger, reconciler)
	handler.AutoBackup = cfg.AutoBackup

	router := api.NewRouter(handler, api.Options{
		JWTSecret:      cfg.JWTSecret,
		AllowedOrigins: cfg.AllowedOrigins,
		StaticDir:      cfg.StaticDir,
	})

	scheduler := api.NewSweepScheduler(ledger, cfg.SweepInterval)
	scheduler.OnSwept = logTotals(ledger)
	scheduler.Start()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ErrorLog:     logger.StandardLog(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting", "addr", cfg.Addr(), "db", cfg.DB)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	scheduler.Stop()

	logger.Info("server stopped")
}

// logTotals reports the display totals after a scheduled sweep charged days.
func logTotals(ledger *debt.Ledger) func(debt.SweepResult) {
	return func(res debt.SweepResult) {
		totals, err := ledger.GetDebtTotals(context.Background())
		if err != nil {
			logger.Warn("failed to read totals after sweep", "error", err)
			return
		}
		display := totals.Display()
		logger.Info("debt totals after sweep",
			"watermark", res.Watermark.String(),
			"prayer", display.PrayerDebt,
			"fasting", display.FastingDebt)
	}
}
