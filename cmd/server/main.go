/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the attendance scheduling server. Handles
  configuration, dependency injection, the daily workflow scan, and
  graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (environment, optional .env file)
  2. Parse command-line flags (flags override environment)
  3. Initialize SQLite store and logger
  4. Wire resolution engine, row cache, invalidator, command service
  5. Wire workflow engine, rules, and the daily birthday scanner
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default from PORT, else 8080)
  -db      SQLite database path (default from DB_PATH)
           Use ":memory:" for an in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the birthday scanner
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/attendance.db"

  # Run with in-memory database
  ./server -db=":memory:"

SEE ALSO:
  - api/server.go: Router configuration
  - workflow/scan.go: The daily scan loop
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/attendance-engine/api"
	"github.com/warp/attendance-engine/calendar"
	"github.com/warp/attendance-engine/config"
	"github.com/warp/attendance-engine/logging"
	"github.com/warp/attendance-engine/store/sqlite"
	"github.com/warp/attendance-engine/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Flags override environment
	port := flag.String("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()

	logger, err := logging.New(cfg.Environment)
	if err != nil {
		os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer store.Close()

	// Calendar wiring
	engine := calendar.NewEngine(store)
	cache := calendar.NewRowCache(engine, store, store, logger)
	invalidator := calendar.NewInvalidator(store, store, logger)
	timeline := &timelineLogger{logger: logger}
	service := calendar.NewService(store, invalidator, timeline, logger)
	reporter := calendar.NewReporter(cache)

	// Workflow wiring
	workflowEngine := workflow.NewEngine(store, logger)
	workflowEngine.Register(workflow.NewAddEndMarkRule(service, logger))
	workflowEngine.Register(workflow.NewReassignGroupRule(service, store, logger))

	scanner := workflow.NewBirthdayScanner(store, store, store, workflowEngine, logger)
	scanner.WakeHour = cfg.ScanWakeHour

	scanCtx, stopScan := context.WithCancel(context.Background())
	go scanner.Run(scanCtx)

	// HTTP wiring
	handler := api.NewHandler(cache, service, reporter, store, logger)
	router := api.NewRouter(handler, cfg.TenantHeader)

	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	stopScan()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("forced shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

// timelineLogger stands in for the roster service that owns schedule
// timeline recalculation. It records that a recalculation is due; the
// real collaborator is an external deployment concern.
type timelineLogger struct {
	logger *zap.Logger
}

func (t *timelineLogger) Recalculate(_ context.Context, tenant calendar.TenantID, child calendar.ChildID) error {
	t.logger.Info("schedule timeline recalculation requested",
		zap.String("tenant", string(tenant)),
		zap.String("child", string(child)))
	return nil
}
