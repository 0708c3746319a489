package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/shipment-analytics/internal/analytics"
	"github.com/ignite/shipment-analytics/internal/datanorm"
	"github.com/ignite/shipment-analytics/internal/domain"
	"github.com/ignite/shipment-analytics/internal/filter"
	"github.com/ignite/shipment-analytics/internal/pkg/distlock"
	"github.com/ignite/shipment-analytics/internal/pkg/logger"
	"github.com/ignite/shipment-analytics/internal/session"
	"github.com/oklog/ulid/v2"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Pool defaults.
const (
	DefaultWorkers     = 2
	DefaultRate        = 5.0 // jobs admitted per second
	DefaultBurst       = 2
	DefaultPollTimeout = 2 * time.Second
)

// ErrSessionLocked means another run holds the session's lock.
var ErrSessionLocked = errors.New("session is being computed by another worker")

// FailureRecorder persists permanently failed jobs.
type FailureRecorder interface {
	RecordFailure(ctx context.Context, f *domain.JobFailure) error
}

// PoolConfig tunes the worker pool. Zero values take defaults.
type PoolConfig struct {
	Workers     int
	Rate        float64
	Burst       int
	PollTimeout time.Duration
}

func (c *PoolConfig) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.Rate <= 0 {
		c.Rate = DefaultRate
	}
	if c.Burst <= 0 {
		c.Burst = DefaultBurst
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = DefaultPollTimeout
	}
}

// Pool runs analytics jobs from the queue with a fixed number of workers.
type Pool struct {
	sched   *Scheduler
	store   *session.Store
	limiter *rate.Limiter
	cfg     PoolConfig

	audit   FailureRecorder
	breaker *gobreaker.CircuitBreaker
}

// NewPool wires a pool. audit may be nil.
func NewPool(sched *Scheduler, store *session.Store, audit FailureRecorder, cfg PoolConfig) *Pool {
	cfg.applyDefaults()
	p := &Pool{
		sched:   sched,
		store:   store,
		limiter: rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
		cfg:     cfg,
		audit:   audit,
	}
	if audit != nil {
		p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "job-audit",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 3 },
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			},
		})
	}
	return p
}

// Run blocks until ctx is cancelled or a worker returns an error.
func (p *Pool) Run(ctx context.Context) error {
	logger.Info("worker pool starting", "workers", p.cfg.Workers, "queue", QueueName)
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Workers; i++ {
		id := i
		g.Go(func() error { return p.loop(ctx, id) })
	}
	err := g.Wait()
	logger.Info("worker pool stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (p *Pool) loop(ctx context.Context, id int) error {
	for {
		if err := p.limiter.Wait(ctx); err != nil {
			return ctx.Err()
		}
		if _, err := p.ProcessNext(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error("worker iteration failed", "worker", id, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}
	}
}

// ProcessNext takes at most one session off the queue and runs it. It
// reports whether a job was taken.
func (p *Pool) ProcessNext(ctx context.Context) (bool, error) {
	sid, err := p.sched.dequeue(ctx, p.cfg.PollTimeout)
	if err != nil {
		return false, fmt.Errorf("dequeue: %w", err)
	}
	if sid == "" {
		return false, nil
	}
	return true, p.process(ctx, sid)
}

func (p *Pool) process(ctx context.Context, sid string) error {
	runID := ulid.Make().String()
	attempt, err := p.sched.start(ctx, sid, runID)
	if err != nil {
		return err
	}
	if attempt == 0 {
		logger.Debug("job not claimable, skipping", "session_id", sid)
		return nil
	}
	log := []interface{}{"job_id", JobID(sid), "session_id", sid, "run_id", runID, "attempt", attempt}

	if attempt > p.sched.opts.MaxAttempts {
		return p.giveUp(ctx, sid, runID, attempt-1, errors.New("exceeded max attempts"))
	}

	started := time.Now()
	runErr := p.runLocked(ctx, sid, runID)
	if runErr == nil {
		logger.Info("analytics job finished", append(log, "duration_ms", time.Since(started).Milliseconds())...)
		return nil
	}
	if ctx.Err() != nil {
		// Shutdown mid-run; the recovery sweep hands the job back.
		return nil
	}

	if errors.Is(runErr, session.ErrSessionExpired) || attempt >= p.sched.opts.MaxAttempts {
		return p.giveUp(ctx, sid, runID, attempt, runErr)
	}
	at := p.sched.now().Add(p.sched.Backoff(attempt))
	logger.Warn("analytics job failed, retry scheduled", append(log, "error", runErr.Error(), "retry_at", at)...)
	return p.sched.retry(ctx, sid, runID, at, runErr)
}

func (p *Pool) runLocked(ctx context.Context, sid, runID string) error {
	lock := distlock.NewRedisLock(p.sched.client, "analytics:"+sid, p.sched.opts.JobTimeout)
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSessionLocked
	}
	defer lock.Release(context.WithoutCancel(ctx))

	jobCtx, cancel := context.WithTimeout(ctx, p.sched.opts.JobTimeout)
	defer cancel()
	return p.run(jobCtx, sid, runID)
}

// run computes the base reports, then drains requested filters until the
// scheduler lets the job finish.
func (p *Pool) run(ctx context.Context, sid, runID string) error {
	records, err := p.store.Records(ctx, sid)
	if err != nil {
		return err
	}
	if err := p.computeAndStore(ctx, sid, records, filter.Filter{}); err != nil {
		return err
	}

	for {
		pending, err := p.sched.pendingFilters(ctx, sid)
		if err != nil {
			return err
		}
		done := make([]string, 0, len(pending))
		for fp, f := range pending {
			if err := p.computeAndStore(ctx, sid, filter.Apply(records, f), f); err != nil {
				return err
			}
			done = append(done, fp)
		}
		if err := p.sched.ackFilters(ctx, sid, done); err != nil {
			return fmt.Errorf("ack filters: %w", err)
		}

		n, err := p.sched.finish(ctx, sid, runID)
		if err != nil {
			return err
		}
		switch n {
		case 1:
			return nil
		case -1:
			logger.Warn("run lost ownership of job", "session_id", sid, "run_id", runID)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func (p *Pool) computeAndStore(ctx context.Context, sid string, records []*datanorm.Record, f filter.Filter) error {
	results, err := analytics.ComputeAll(records)
	if err != nil {
		return err
	}
	for name, v := range results {
		if err := p.store.Put(ctx, sid, name, f, v); err != nil {
			return fmt.Errorf("store %s: %w", name, err)
		}
	}
	logger.Debug("reports stored", "session_id", sid, "filter", f.Fingerprint(), "records", len(records))
	return nil
}

func (p *Pool) giveUp(ctx context.Context, sid, runID string, attempts int, cause error) error {
	entry, err := p.sched.fail(ctx, sid, runID, attempts, cause)
	if err != nil {
		return err
	}
	logger.Error("analytics job failed permanently", "job_id", entry.JobID, "session_id", sid,
		"run_id", runID, "attempts", attempts, "error", cause.Error())
	p.recordFailure(ctx, entry)
	return nil
}

// recordFailure writes the audit row through the breaker. Errors are logged
// only; the queue state is already authoritative.
func (p *Pool) recordFailure(ctx context.Context, e *FailedEntry) {
	if p.audit == nil {
		return
	}
	_, err := p.breaker.Execute(func() (interface{}, error) {
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return nil, p.audit.RecordFailure(actx, &domain.JobFailure{
			JobID:     e.JobID,
			SessionID: e.SessionID,
			RunID:     e.RunID,
			Attempts:  e.Attempts,
			Error:     e.Error,
			FailedAt:  e.FailedAt,
		})
	})
	if err != nil {
		logger.Warn("job audit write skipped", "session_id", e.SessionID, "error", err)
	}
}
