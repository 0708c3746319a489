package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/shipment-analytics/internal/api"
	"github.com/ignite/shipment-analytics/internal/config"
	"github.com/ignite/shipment-analytics/internal/pkg/httpretry"
	"github.com/ignite/shipment-analytics/internal/pkg/logger"
	"github.com/ignite/shipment-analytics/internal/repository/postgres"
	"github.com/ignite/shipment-analytics/internal/service/dashboard"
	"github.com/ignite/shipment-analytics/internal/session"
	"github.com/ignite/shipment-analytics/internal/sheet"
	"github.com/ignite/shipment-analytics/internal/worker"
	_ "github.com/lib/pq"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	log.Println("Starting shipment analytics API server...")

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	logger.SetRedactPII(cfg.Logging.ShouldRedact())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := session.Open(ctx, session.Options{URL: cfg.Redis.URL, TTL: cfg.Session.TTL()})
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer store.Close()
	log.Printf("Connected to Redis (session TTL %s)", cfg.Session.TTL())

	sched := worker.NewScheduler(store.Client(), worker.SchedulerOptionsFrom(cfg.Worker))
	svc := dashboard.NewService(store, sched)

	// Optional failed-job history
	var db *sql.DB
	var history api.FailureLister
	if cfg.Database.Enabled() {
		db, err = sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer db.Close()
		db.SetMaxOpenConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		if err := db.PingContext(pingCtx); err != nil {
			log.Printf("Warning: audit database unreachable, failure history disabled: %v", err)
		} else {
			history = postgres.NewJobAuditRepo(db)
			log.Println("Connected to audit database")
		}
		pingCancel()
	}

	loader := newSheetLoader(ctx, cfg)

	handlers := api.NewHandlers(svc, sched, loader, history)
	health := api.NewHealthChecker(db, store.Client(), sched)
	server := api.NewServer(cfg.Server, handlers, health)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		addr := cfg.Server.Addr()
		log.Printf("Starting server on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Server stopped")
}

// newSheetLoader wires S3 when AWS credentials resolve. API clients pick
// the source, so only s3:// and http(s) URLs are accepted.
func newSheetLoader(ctx context.Context, cfg *config.Config) *sheet.Loader {
	maxBytes := int64(cfg.Import.MaxFileMB) << 20
	fetcher := httpretry.NewRetryClient(&http.Client{Timeout: time.Minute}, cfg.Import.HTTPRetries,
		httpretry.WithMaxBytes(maxBytes))
	opts := []sheet.LoaderOption{sheet.RemoteOnly(), sheet.WithMaxBytes(maxBytes)}

	s3Client, err := sheet.NewS3Client(ctx, cfg.Storage.AWSRegion, cfg.Storage.GetAWSProfile())
	if err != nil {
		log.Printf("Warning: S3 imports disabled: %v", err)
		return sheet.NewLoader(nil, fetcher, opts...)
	}
	log.Printf("S3 imports enabled (region %s)", cfg.Storage.AWSRegion)
	return sheet.NewLoader(s3Client, fetcher, opts...)
}
