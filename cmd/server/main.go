/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the harvest payroll server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (flags, .env, environment)
  2. Build the logger
  3. Initialize SQLite store
  4. Seed the task catalog if the price table is empty
  5. Create the engine service and API handler
  6. Start the cascade retrier
  7. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the cascade retrier
  4. Close database connection

EXAMPLES:
  # Run with file database
  ./server -db="./data/payroll.db"

  # Run with in-memory database and a custom catalog
  ./server -db=":memory:" -tasks=./tasks.yaml

  # Subtotal the cooperative in rollups
  COOP_GROUP=coop-atlas ./server

SEE ALSO:
  - config/config.go: Flags and environment variables
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/harvest-payroll/api"
	"github.com/warp/harvest-payroll/config"
	"github.com/warp/harvest-payroll/engine"
	"github.com/warp/harvest-payroll/factory"
	"github.com/warp/harvest-payroll/farm"
	"github.com/warp/harvest-payroll/store/sqlite"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	logger := config.NewLogger(cfg.LogLevel, cfg.LogFormat)

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize database")
	}
	defer store.Close()

	if err := seedCatalog(context.Background(), store, cfg.TasksFile, logger); err != nil {
		logger.WithError(err).Fatal("failed to load task catalog")
	}

	svc := engine.NewService(store, logger)
	svc.Classify = farm.CooperativeClassifier(engine.GroupID(cfg.CoopGroup))

	handler := api.NewHandler(svc, logger)
	handler.Reset = store.Reset

	retrier := api.NewCascadeRetrier(svc, logger)
	retrier.Interval = cfg.RetryInterval
	retrier.Start()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      api.NewRouter(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.WithFields(logrus.Fields{"port": cfg.Port, "db": cfg.DBPath}).Info("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("server forced to shutdown")
	}
	retrier.Stop()

	logger.Info("server stopped")
}

// seedCatalog loads the task catalog when the price table is empty, or
// always when a catalog file is configured.
func seedCatalog(ctx context.Context, store *sqlite.Store, path string, logger logrus.FieldLogger) error {
	existing, err := store.ListTasks(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 && path == "" {
		return nil
	}

	tasks, err := factory.NewCatalogFactory().LoadFile(path)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if err := store.SaveTask(ctx, t); err != nil {
			return err
		}
	}
	logger.WithFields(logrus.Fields{"tasks": len(tasks), "file": path}).Info("task catalog loaded")
	return nil
}
