package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ignite/shipment-analytics/internal/analytics"
	"github.com/ignite/shipment-analytics/internal/datanorm"
	"github.com/ignite/shipment-analytics/internal/domain"
	"github.com/ignite/shipment-analytics/internal/filter"
	"github.com/ignite/shipment-analytics/internal/session"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeAudit struct {
	mu       sync.Mutex
	failures []domain.JobFailure
	err      error
}

func (a *fakeAudit) RecordFailure(_ context.Context, f *domain.JobFailure) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.failures = append(a.failures, *f)
	return nil
}

type harness struct {
	mr     *miniredis.Miniredis
	client *redis.Client
	store  *session.Store
	sched  *Scheduler
	pool   *Pool
	clock  *fakeClock
	audit  *fakeAudit
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	clock := &fakeClock{t: time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)}
	sched := NewScheduler(client, SchedulerOptions{})
	sched.now = clock.Now
	store := session.New(client, session.Options{TTL: 30 * time.Minute})
	audit := &fakeAudit{}
	pool := NewPool(sched, store, audit, PoolConfig{Workers: 1, PollTimeout: 50 * time.Millisecond})

	return &harness{mr: mr, client: client, store: store, sched: sched, pool: pool, clock: clock, audit: audit}
}

func (h *harness) session(t *testing.T) string {
	t.Helper()
	recs := []*datanorm.Record{
		datanorm.Preprocess(datanorm.RawRecord{"Status": "Delivered", "Channel": "Amazon", "Order Total": "100"}),
		datanorm.Preprocess(datanorm.RawRecord{"Status": "RTO Delivered", "Channel": "Shopify", "Order Total": "50"}),
		datanorm.Preprocess(datanorm.RawRecord{"Status": "Delivered", "Channel": "Shopify", "Order Total": "25"}),
	}
	meta, err := h.store.Create(context.Background(), recs, "test.csv")
	require.NoError(t, err)
	return meta.SessionID
}

func (h *harness) queueLen(t *testing.T) int64 {
	t.Helper()
	n, err := h.client.LLen(context.Background(), queueKey).Result()
	require.NoError(t, err)
	return n
}

func (h *harness) processOne(t *testing.T) {
	t.Helper()
	took, err := h.pool.ProcessNext(context.Background())
	require.NoError(t, err)
	require.True(t, took, "expected a job on the queue")
}

func TestEnqueueDeduplicates(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sid := h.session(t)

	first, err := h.sched.Enqueue(ctx, sid)
	require.NoError(t, err)
	second, err := h.sched.Enqueue(ctx, sid)
	require.NoError(t, err)

	assert.Equal(t, "analytics-"+sid, first.ID)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, StatusQueued, second.Status)
	assert.Equal(t, int64(1), h.queueLen(t))
}

func TestEnqueueGraceWindow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sid := h.session(t)

	_, err := h.sched.Enqueue(ctx, sid)
	require.NoError(t, err)
	h.processOne(t)

	job, err := h.sched.Enqueue(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, job.Status, "finished job inside the grace window is reused")
	assert.Equal(t, int64(0), h.queueLen(t))

	h.clock.Advance(31 * time.Second)
	job, err = h.sched.Enqueue(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, job.Status)
	assert.Equal(t, 0, job.Attempts)
	assert.Equal(t, int64(1), h.queueLen(t))
}

func TestRunStoresBaseReports(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sid := h.session(t)

	_, err := h.sched.Enqueue(ctx, sid)
	require.NoError(t, err)
	h.processOne(t)

	job, err := h.sched.Status(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, job.Status)
	assert.Equal(t, 1, job.Attempts)
	assert.NotEmpty(t, job.RunID)
	assert.True(t, job.Done())

	var summary analytics.Summary
	require.NoError(t, h.store.Get(ctx, sid, analytics.SummaryMetrics, filter.Filter{}, &summary))
	assert.Equal(t, 3, summary.SyncedOrders)
	assert.Equal(t, 2, summary.DeliveredOrders)

	for _, name := range analytics.Names() {
		assert.True(t, h.mr.Exists(session.Key(sid, name, filter.Filter{})), name)
	}
}

func TestPendingFilterDrainedBeforeFinish(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sid := h.session(t)
	amazon := filter.Filter{Channel: "amazon"}

	_, err := h.sched.Enqueue(ctx, sid)
	require.NoError(t, err)
	job, err := h.sched.Enqueue(ctx, sid, amazon)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, job.Status)
	assert.Equal(t, 1, job.PendingFilters)
	assert.Equal(t, int64(1), h.queueLen(t))

	h.processOne(t)

	job, err = h.sched.Status(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, job.Status)
	assert.Equal(t, 0, job.PendingFilters)

	var summary analytics.Summary
	require.NoError(t, h.store.Get(ctx, sid, analytics.SummaryMetrics, amazon, &summary))
	assert.Equal(t, 1, summary.SyncedOrders)
	assert.Equal(t, 100.0, summary.GMV)
}

func TestNewFilterAfterFinishStartsFreshJob(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sid := h.session(t)

	_, err := h.sched.Enqueue(ctx, sid)
	require.NoError(t, err)
	h.processOne(t)

	job, err := h.sched.Enqueue(ctx, sid, filter.Filter{Channel: "Shopify"})
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, job.Status, "a new filter is never absorbed by a finished job")
	assert.Equal(t, int64(1), h.queueLen(t))
}

func TestRetriesThenFails(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sid := "session_broken"
	require.NoError(t, h.mr.Set("shipping:data:"+sid, "{not json"))

	_, err := h.sched.Enqueue(ctx, sid)
	require.NoError(t, err)

	// attempt 1
	h.processOne(t)
	job, err := h.sched.Status(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, job.Status)
	assert.Equal(t, 1, job.Attempts)
	require.NotNil(t, job.RetryAt)
	assert.Equal(t, h.clock.Now().Add(5*time.Second), *job.RetryAt)
	assert.Contains(t, job.Error, "decode session")

	// an enqueue while waiting for a retry is absorbed
	again, err := h.sched.Enqueue(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, again.Status)

	n, err := h.sched.PromoteDue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "backoff has not elapsed")

	// attempt 2
	h.clock.Advance(5 * time.Second)
	n, err = h.sched.PromoteDue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	h.processOne(t)
	job, err = h.sched.Status(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, job.Status)
	assert.Equal(t, h.clock.Now().Add(10*time.Second), *job.RetryAt)

	// attempt 3 is the last
	h.clock.Advance(10 * time.Second)
	recovery := NewQueueRecoveryWorker(h.sched, time.Second)
	assert.Equal(t, 1, recovery.Recover(ctx))
	h.processOne(t)

	job, err = h.sched.Status(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, job.Status)
	assert.Equal(t, 3, job.Attempts)
	assert.True(t, job.Done())
	assert.Equal(t, 24*time.Hour, h.mr.TTL(jobKey(sid)))

	failed, err := h.sched.Failed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, sid, failed[0].SessionID)
	assert.Equal(t, 3, failed[0].Attempts)

	require.Len(t, h.audit.failures, 1)
	assert.Equal(t, job.RunID, h.audit.failures[0].RunID)

	stats, err := h.sched.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, &QueueStats{Queue: QueueName, Failed: 1}, stats)

	// a failed job does not block a new request
	fresh, err := h.sched.Enqueue(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, fresh.Status)
	assert.Equal(t, 0, fresh.Attempts)
}

func TestExpiredSessionFailsWithoutRetry(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.sched.Enqueue(ctx, "session_gone")
	require.NoError(t, err)
	h.processOne(t)

	job, err := h.sched.Status(ctx, "session_gone")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, job.Status)
	assert.Equal(t, 1, job.Attempts)
	assert.Equal(t, session.ErrSessionExpired.Error(), job.Error)
}

func TestAuditOutageDoesNotStallJobs(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.audit.err = errors.New("connection refused")

	for _, sid := range []string{"a", "b", "c", "d"} {
		_, err := h.sched.Enqueue(ctx, sid)
		require.NoError(t, err)
		h.processOne(t)
		job, err := h.sched.Status(ctx, sid)
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, job.Status)
	}
	assert.Equal(t, "open", h.pool.breaker.State().String())
}

func TestBackoff(t *testing.T) {
	s := NewScheduler(nil, SchedulerOptions{})
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 5 * time.Second},
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
		{6, 160 * time.Second},
		{7, 5 * time.Minute},
		{40, 5 * time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, s.Backoff(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestRequeueStale(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sid := h.session(t)

	_, err := h.sched.Enqueue(ctx, sid)
	require.NoError(t, err)
	got, err := h.sched.dequeue(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, sid, got)
	attempt, err := h.sched.start(ctx, sid, "crashed-run")
	require.NoError(t, err)
	require.Equal(t, 1, attempt)

	n, err := h.sched.RequeueStale(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	h.clock.Advance(11 * time.Minute)
	n, err = h.sched.RequeueStale(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	job, err := h.sched.Status(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, job.Status)
	assert.Empty(t, job.RunID)

	finished, err := h.sched.finish(ctx, sid, "crashed-run")
	require.NoError(t, err)
	assert.Equal(t, -1, finished, "the crashed run no longer owns the job")

	h.processOne(t)
	job, err = h.sched.Status(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, job.Status)
	assert.Equal(t, 2, job.Attempts)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.sched.Enqueue(ctx, "s1", filter.Filter{Channel: "Amazon"})
	require.NoError(t, err)
	require.NoError(t, h.sched.Remove(ctx, "s1"))

	_, err = h.sched.Status(ctx, "s1")
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.Equal(t, int64(0), h.queueLen(t))
}

func TestPoolRunStopsCleanly(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer mr.Close()
	defer client.Close()

	sched := NewScheduler(client, SchedulerOptions{})
	store := session.New(client, session.Options{})
	pool := NewPool(sched, store, nil, PoolConfig{Workers: 2, PollTimeout: 50 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	meta, err := store.Create(ctx, []*datanorm.Record{
		datanorm.Preprocess(datanorm.RawRecord{"Status": "Delivered"}),
	}, "")
	require.NoError(t, err)
	_, err = sched.Enqueue(ctx, meta.SessionID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		job, err := sched.Status(context.Background(), meta.SessionID)
		return err == nil && job.Status == StatusFinished
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not stop")
	}
}
