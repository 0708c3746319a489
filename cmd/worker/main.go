package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/shipment-analytics/internal/config"
	"github.com/ignite/shipment-analytics/internal/pkg/logger"
	"github.com/ignite/shipment-analytics/internal/repository/postgres"
	"github.com/ignite/shipment-analytics/internal/session"
	"github.com/ignite/shipment-analytics/internal/worker"
	_ "github.com/lib/pq"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	log.Println("Starting analytics worker...")

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
	log.Println("Connected to Redis")

	sched := worker.NewScheduler(store.Client(), worker.SchedulerOptionsFrom(cfg.Worker))

	var audit worker.FailureRecorder
	if cfg.Database.Enabled() {
		db, err := sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer db.Close()
		db.SetMaxOpenConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		repo := postgres.NewJobAuditRepo(db)
		schemaCtx, schemaCancel := context.WithTimeout(ctx, 10*time.Second)
		if err := repo.EnsureSchema(schemaCtx); err != nil {
			log.Printf("Warning: failure audit disabled: %v", err)
		} else {
			audit = repo
			log.Println("Failure audit enabled")
		}
		schemaCancel()
	}

	pool := worker.NewPool(sched, store, audit, worker.PoolConfigFrom(cfg.Worker))
	recovery := worker.NewQueueRecoveryWorker(sched, cfg.Worker.RecoveryInterval())
	go recovery.Start(ctx)
	log.Printf("Queue recovery started (every %s)", cfg.Worker.RecoveryInterval())

	poolDone := make(chan error, 1)
	go func() { poolDone <- pool.Run(ctx) }()
	log.Printf("Worker pool running (%d workers, %.1f jobs/s)", cfg.Worker.Count, cfg.Worker.RatePerSecond)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Println("Shutting down worker...")
		cancel()
		if err := <-poolDone; err != nil {
			log.Printf("Worker pool stopped with error: %v", err)
		}
	case err := <-poolDone:
		if err != nil {
			log.Fatalf("Worker pool failed: %v", err)
		}
	}
	log.Println("Worker stopped")
}
