package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ignite/shipment-analytics/internal/filter"
	"github.com/ignite/shipment-analytics/internal/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// Scheduler defaults.
const (
	DefaultMaxAttempts = 3
	DefaultGrace       = 30 * time.Second
	DefaultJobTTL      = time.Hour
	DefaultResultTTL   = time.Hour
	DefaultFailureTTL  = 24 * time.Hour
	DefaultBackoffBase = 5 * time.Second
	DefaultBackoffMax  = 5 * time.Minute
	DefaultJobTimeout  = 10 * time.Minute
)

// SchedulerOptions tunes retry and retention. Zero values take defaults.
type SchedulerOptions struct {
	MaxAttempts int
	// Grace is how long a finished job keeps absorbing duplicate requests.
	Grace       time.Duration
	JobTTL      time.Duration
	ResultTTL   time.Duration
	FailureTTL  time.Duration
	BackoffBase time.Duration
	BackoffMax  time.Duration
	JobTimeout  time.Duration
}

func (o *SchedulerOptions) applyDefaults() {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.Grace <= 0 {
		o.Grace = DefaultGrace
	}
	if o.JobTTL <= 0 {
		o.JobTTL = DefaultJobTTL
	}
	if o.ResultTTL <= 0 {
		o.ResultTTL = DefaultResultTTL
	}
	if o.FailureTTL <= 0 {
		o.FailureTTL = DefaultFailureTTL
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = DefaultBackoffBase
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = DefaultBackoffMax
	}
	if o.JobTimeout <= 0 {
		o.JobTimeout = DefaultJobTimeout
	}
}

// enqueueScript records the requested filters, then either keeps the live
// job or replaces it with a fresh queued one. Returns 1 when a new job was
// pushed, 0 when an existing job absorbed the request.
var enqueueScript = redis.NewScript(`
local job, pending, queue = KEYS[1], KEYS[2], KEYS[3]
local sid = ARGV[1]
local now = tonumber(ARGV[2])
local grace = tonumber(ARGV[3])

for i = 6, #ARGV, 2 do
	redis.call("HSETNX", pending, ARGV[i], ARGV[i + 1])
end
if #ARGV >= 6 then
	redis.call("EXPIRE", pending, ARGV[5])
end

local status = redis.call("HGET", job, "status")
if status == "queued" or status == "started" or status == "scheduled" then
	return 0
end
if status == "finished" then
	local ended = tonumber(redis.call("HGET", job, "ended_at") or "0")
	if now - ended <= grace and redis.call("HLEN", pending) == 0 then
		return 0
	end
end

redis.call("DEL", job)
redis.call("HSET", job,
	"id", "analytics-" .. sid,
	"session_id", sid,
	"status", "queued",
	"attempts", "0",
	"max_attempts", ARGV[4],
	"created_at", ARGV[2])
redis.call("EXPIRE", job, ARGV[5])
redis.call("LPUSH", queue, sid)
return 1
`)

// startScript claims a queued job for one run. Returns the attempt number,
// or 0 when the job is not claimable.
var startScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "status") ~= "queued" then
	return 0
end
redis.call("HSET", KEYS[1], "status", "started", "started_at", ARGV[1], "run_id", ARGV[2])
redis.call("ZADD", KEYS[2], ARGV[1], ARGV[3])
return redis.call("HINCRBY", KEYS[1], "attempts", "1")
`)

// finishScript completes a run unless new filters arrived meanwhile.
// Returns 1 finished, 0 pending filters remain, -1 run no longer owns the job.
var finishScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "run_id") ~= ARGV[3] then
	return -1
end
if redis.call("HLEN", KEYS[2]) > 0 then
	return 0
end
redis.call("HSET", KEYS[1], "status", "finished", "ended_at", ARGV[1], "error", "")
redis.call("EXPIRE", KEYS[1], ARGV[2])
redis.call("ZREM", KEYS[3], ARGV[4])
return 1
`)

// retryScript parks a failed run in the delayed set.
var retryScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "run_id") ~= ARGV[1] then
	return 0
end
redis.call("HSET", KEYS[1], "status", "scheduled", "error", ARGV[4], "retry_at", ARGV[3])
redis.call("ZREM", KEYS[2], ARGV[2])
redis.call("ZADD", KEYS[3], ARGV[3], ARGV[2])
return 1
`)

// failScript marks a job permanently failed and records it for operators.
var failScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "run_id") ~= ARGV[1] then
	return 0
end
redis.call("HSET", KEYS[1], "status", "failed", "ended_at", ARGV[3], "error", ARGV[4])
redis.call("EXPIRE", KEYS[1], ARGV[5])
redis.call("ZREM", KEYS[2], ARGV[2])
redis.call("LPUSH", KEYS[3], ARGV[6])
redis.call("LTRIM", KEYS[3], 0, ARGV[7])
return 1
`)

// promoteScript moves due retries back onto the queue. ZREM decides the
// winner when several recovery loops race.
var promoteScript = redis.NewScript(`
local due = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", "0", ARGV[2])
local moved = 0
for _, sid in ipairs(due) do
	if redis.call("ZREM", KEYS[1], sid) == 1 then
		local job = ARGV[3] .. sid
		if redis.call("HGET", job, "status") == "scheduled" then
			redis.call("HSET", job, "status", "queued")
			redis.call("LPUSH", KEYS[2], sid)
			moved = moved + 1
		end
	end
end
return moved
`)

// requeueScript hands jobs stuck in started past the timeout back to the
// queue.
var requeueScript = redis.NewScript(`
local stale = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", "0", ARGV[2])
local moved = 0
for _, sid in ipairs(stale) do
	if redis.call("ZREM", KEYS[1], sid) == 1 then
		local job = ARGV[3] .. sid
		if redis.call("HGET", job, "status") == "started" then
			redis.call("HSET", job, "status", "queued", "run_id", "")
			redis.call("LPUSH", KEYS[2], sid)
			moved = moved + 1
		end
	end
end
return moved
`)

// Scheduler deduplicates and tracks analytics jobs in Redis. It is safe for
// concurrent use and shared between the API process and the workers.
type Scheduler struct {
	client *redis.Client
	opts   SchedulerOptions
	now    func() time.Time
}

// NewScheduler creates a scheduler on an existing client.
func NewScheduler(client *redis.Client, opts SchedulerOptions) *Scheduler {
	opts.applyDefaults()
	return &Scheduler{client: client, opts: opts, now: time.Now}
}

// Options returns the effective options.
func (s *Scheduler) Options() SchedulerOptions { return s.opts }

// Enqueue requests computation of every report for a session. The base
// (unfiltered) reports are always computed; non-empty filters ride along
// and are drained by the run before it may finish. A job that is queued,
// running, waiting for a retry, or finished within the grace window is
// returned instead of a new one.
func (s *Scheduler) Enqueue(ctx context.Context, sid string, filters ...filter.Filter) (*Job, error) {
	if sid == "" {
		return nil, errors.New("enqueue: empty session id")
	}
	now := s.now()
	args := []interface{}{
		sid,
		now.UnixMilli(),
		s.opts.Grace.Milliseconds(),
		s.opts.MaxAttempts,
		int64(s.opts.JobTTL.Seconds()),
	}
	for _, f := range filters {
		if f.IsEmpty() {
			continue
		}
		args = append(args, f.Fingerprint(), f.CanonicalJSON())
	}

	created, err := enqueueScript.Run(ctx, s.client, []string{jobKey(sid), pendingKey(sid), queueKey}, args...).Int()
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", sid, err)
	}
	job, err := s.Status(ctx, sid)
	if err != nil {
		return nil, err
	}
	if created == 1 {
		logger.Info("analytics job enqueued", "job_id", job.ID, "session_id", sid, "pending_filters", job.PendingFilters)
	} else {
		logger.Debug("analytics job deduplicated", "job_id", job.ID, "session_id", sid, "status", job.Status)
	}
	return job, nil
}

// Status returns the job of a session, or ErrJobNotFound.
func (s *Scheduler) Status(ctx context.Context, sid string) (*Job, error) {
	var fields *redis.MapStringStringCmd
	var pending *redis.IntCmd
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		fields = pipe.HGetAll(ctx, jobKey(sid))
		pending = pipe.HLen(ctx, pendingKey(sid))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("job status %s: %w", sid, err)
	}
	if len(fields.Val()) == 0 {
		return nil, ErrJobNotFound
	}
	job := parseJob(fields.Val())
	job.PendingFilters = int(pending.Val())
	return job, nil
}

// Stats reports queue depths.
func (s *Scheduler) Stats(ctx context.Context) (*QueueStats, error) {
	var queued, failed *redis.IntCmd
	var delayed, started *redis.IntCmd
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		queued = pipe.LLen(ctx, queueKey)
		delayed = pipe.ZCard(ctx, delayedKey)
		started = pipe.ZCard(ctx, startedKey)
		failed = pipe.LLen(ctx, failedKey)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	return &QueueStats{
		Queue:   QueueName,
		Queued:  queued.Val(),
		Delayed: delayed.Val(),
		Started: started.Val(),
		Failed:  failed.Val(),
	}, nil
}

// Remove forgets a session's job wherever it sits.
func (s *Scheduler) Remove(ctx context.Context, sid string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, jobKey(sid), pendingKey(sid))
		pipe.LRem(ctx, queueKey, 0, sid)
		pipe.ZRem(ctx, delayedKey, sid)
		pipe.ZRem(ctx, startedKey, sid)
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove job %s: %w", sid, err)
	}
	return nil
}

// Failed lists the most recent permanently failed jobs, newest first.
func (s *Scheduler) Failed(ctx context.Context, limit int) ([]FailedEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	raw, err := s.client.LRange(ctx, failedKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed jobs: %w", err)
	}
	out := make([]FailedEntry, 0, len(raw))
	for _, r := range raw {
		var e FailedEntry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			logger.Warn("skipping unreadable failed entry", "error", err)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Backoff is the delay before retry number attempt (1-based):
// base * 2^(attempt-1), capped at the configured maximum.
func (s *Scheduler) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := s.opts.BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= s.opts.BackoffMax {
			return s.opts.BackoffMax
		}
	}
	if d > s.opts.BackoffMax {
		return s.opts.BackoffMax
	}
	return d
}

// dequeue blocks up to timeout for the next session id.
func (s *Scheduler) dequeue(ctx context.Context, timeout time.Duration) (string, error) {
	res, err := s.client.BRPop(ctx, timeout, queueKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return res[1], nil
}

// start claims the job for runID. It returns 0 when the job is gone or
// already claimed.
func (s *Scheduler) start(ctx context.Context, sid, runID string) (int, error) {
	n, err := startScript.Run(ctx, s.client, []string{jobKey(sid), startedKey},
		s.now().UnixMilli(), runID, sid).Int()
	if err != nil {
		return 0, fmt.Errorf("start %s: %w", sid, err)
	}
	return n, nil
}

// pendingFilters returns the filters requested for a session, keyed by
// fingerprint.
func (s *Scheduler) pendingFilters(ctx context.Context, sid string) (map[string]filter.Filter, error) {
	raw, err := s.client.HGetAll(ctx, pendingKey(sid)).Result()
	if err != nil {
		return nil, fmt.Errorf("pending filters %s: %w", sid, err)
	}
	out := make(map[string]filter.Filter, len(raw))
	for fp, js := range raw {
		f, err := filter.Parse(js)
		if err != nil {
			logger.Warn("dropping unreadable pending filter", "session_id", sid, "fingerprint", fp, "error", err)
			s.client.HDel(ctx, pendingKey(sid), fp)
			continue
		}
		out[fp] = f
	}
	return out, nil
}

func (s *Scheduler) ackFilters(ctx context.Context, sid string, fps []string) error {
	if len(fps) == 0 {
		return nil
	}
	return s.client.HDel(ctx, pendingKey(sid), fps...).Err()
}

// finish returns 1 when the job finished, 0 when filters are still
// pending, -1 when runID lost the job.
func (s *Scheduler) finish(ctx context.Context, sid, runID string) (int, error) {
	n, err := finishScript.Run(ctx, s.client, []string{jobKey(sid), pendingKey(sid), startedKey},
		s.now().UnixMilli(), int64(s.opts.ResultTTL.Seconds()), runID, sid).Int()
	if err != nil {
		return 0, fmt.Errorf("finish %s: %w", sid, err)
	}
	return n, nil
}

func (s *Scheduler) retry(ctx context.Context, sid, runID string, at time.Time, cause error) error {
	return retryScript.Run(ctx, s.client, []string{jobKey(sid), startedKey, delayedKey},
		runID, sid, at.UnixMilli(), cause.Error()).Err()
}

func (s *Scheduler) fail(ctx context.Context, sid, runID string, attempts int, cause error) (*FailedEntry, error) {
	now := s.now().UTC()
	entry := &FailedEntry{
		JobID:     JobID(sid),
		SessionID: sid,
		RunID:     runID,
		Attempts:  attempts,
		Error:     cause.Error(),
		FailedAt:  now,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	err = failScript.Run(ctx, s.client, []string{jobKey(sid), startedKey, failedKey},
		runID, sid, now.UnixMilli(), cause.Error(), int64(s.opts.FailureTTL.Seconds()),
		string(data), failedListCap-1).Err()
	if err != nil {
		return nil, fmt.Errorf("fail %s: %w", sid, err)
	}
	return entry, nil
}

// PromoteDue moves retries whose backoff elapsed back onto the queue.
func (s *Scheduler) PromoteDue(ctx context.Context, batch int) (int, error) {
	return s.sweep(ctx, promoteScript, delayedKey, s.now(), batch)
}

// RequeueStale hands back jobs whose worker stopped reporting.
func (s *Scheduler) RequeueStale(ctx context.Context, batch int) (int, error) {
	return s.sweep(ctx, requeueScript, startedKey, s.now().Add(-s.opts.JobTimeout), batch)
}

func (s *Scheduler) sweep(ctx context.Context, script *redis.Script, set string, cutoff time.Time, batch int) (int, error) {
	if batch <= 0 {
		batch = 100
	}
	n, err := script.Run(ctx, s.client, []string{set, queueKey},
		strconv.FormatInt(cutoff.UnixMilli(), 10), batch, jobPrefix).Int()
	if err != nil {
		return 0, fmt.Errorf("sweep %s: %w", set, err)
	}
	return n, nil
}
