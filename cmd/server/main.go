/*
main.go - Application entry point

PURPOSE:

	Initializes and starts the time reconciliation server. Handles
	configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
 1. Load environment configuration, apply flag overrides
 2. Initialize SQLite store
 3. Connect to the external time-tracking database (optional)
 4. Wire the reconciliation pipeline, handler and scheduler
 5. Start server with graceful shutdown

COMMAND-LINE FLAGS:

	-port    HTTP server port (overrides PORT)
	-db      SQLite database path (overrides DB_PATH)
	         Use ":memory:" for an in-memory database
	-tim     External time source DSN (overrides TIM_DSN); empty disables
	         reconciliation and the scheduler

ENVIRONMENT:

	PORT, DB_PATH, TIM_DSN, TIM_QUERY_TIMEOUT, RECONCILE_ENABLED,
	RECONCILE_INTERVAL, RECONCILE_WINDOW_DAYS; see config/config.go.

GRACEFUL SHUTDOWN:

	On SIGINT/SIGTERM:
	1. Stop the scheduler
	2. Stop accepting new connections
	3. Wait for active requests to complete (30s timeout)
	4. Close database connections
	5. Exit

EXAMPLES:

	# Import-only mode with a file database
	./server -db="./data/recon.db"

	# With external reconciliation
	TIM_DSN="file:tim.db" RECONCILE_ENABLED=true ./server

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/recon-engine/api"
	"github.com/warp/recon-engine/config"
	"github.com/warp/recon-engine/recon"
	"github.com/warp/recon-engine/store/sqlite"
	"github.com/warp/recon-engine/timsource"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Flags override the environment.
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	timDSN := flag.String("tim", cfg.TIMDSN, "external time source DSN (empty disables reconciliation)")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Optional external time source
	var source recon.DurationSource
	if *timDSN != "" {
		timDB, err := sql.Open("sqlite3", *timDSN)
		if err != nil {
			log.Fatalf("Failed to open time source: %v", err)
		}
		defer timDB.Close()
		source = timsource.New(timDB)
		log.Printf("External time source connected: %s", *timDSN)
	} else {
		log.Println("No external time source configured, running import-only")
	}

	pipeline := &recon.Pipeline{
		Store:        store,
		Source:       source,
		QueryTimeout: cfg.TIMQueryTimeout,
	}
	handler := api.NewHandler(store, pipeline)

	// Background reconciliation
	scheduler := api.NewScheduler(handler)
	scheduler.Interval = cfg.ReconcileInterval
	scheduler.WindowDays = cfg.ReconcileWindowDays
	scheduler.Enabled = cfg.ReconcileEnabled && source != nil
	scheduler.Start()
	defer scheduler.Stop()

	// Create server
	router := api.NewRouter(handler)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on http://localhost:%d", *port)
		log.Printf("📊 API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
