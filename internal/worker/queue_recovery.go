package worker

import (
	"context"
	"log"
	"time"
)

// =============================================================================
// QUEUE RECOVERY WORKER: Promotes Due Retries & Reclaims Stuck Jobs
// =============================================================================
// Failed runs wait in the delayed set until their backoff elapses. A worker
// that crashes mid-run leaves its job in the started set forever. This
// worker periodically moves both kinds back onto the queue.

const (
	// DefaultRecoveryInterval is how often the sets are scanned.
	DefaultRecoveryInterval = 5 * time.Second

	recoveryBatch = 100
)

// QueueRecoveryWorker periodically promotes due retries and requeues jobs
// whose worker stopped reporting.
type QueueRecoveryWorker struct {
	sched    *Scheduler
	interval time.Duration
}

// NewQueueRecoveryWorker creates a recovery worker. A non-positive interval
// takes the default.
func NewQueueRecoveryWorker(sched *Scheduler, interval time.Duration) *QueueRecoveryWorker {
	if interval <= 0 {
		interval = DefaultRecoveryInterval
	}
	return &QueueRecoveryWorker{sched: sched, interval: interval}
}

// Start begins the recovery loop. It blocks until ctx is cancelled.
func (qr *QueueRecoveryWorker) Start(ctx context.Context) {
	log.Printf("[QueueRecovery] Starting (interval=%s, job_timeout=%s)",
		qr.interval, qr.sched.opts.JobTimeout)

	ticker := time.NewTicker(qr.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[QueueRecovery] Stopping")
			return
		case <-ticker.C:
			qr.Recover(ctx)
		}
	}
}

// Recover runs one pass and returns how many jobs went back on the queue.
func (qr *QueueRecoveryWorker) Recover(ctx context.Context) int {
	queryCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	total := 0
	promoted, err := qr.sched.PromoteDue(queryCtx, recoveryBatch)
	if err != nil {
		log.Printf("[QueueRecovery] promote error: %v", err)
	} else if promoted > 0 {
		log.Printf("[QueueRecovery] promoted %d due retries", promoted)
		total += promoted
	}

	requeued, err := qr.sched.RequeueStale(queryCtx, recoveryBatch)
	if err != nil {
		log.Printf("[QueueRecovery] requeue error: %v", err)
	} else if requeued > 0 {
		log.Printf("[QueueRecovery] requeued %d stuck jobs", requeued)
		total += requeued
	}
	return total
}
