package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ignite/shipment-analytics/internal/analytics"
	"github.com/ignite/shipment-analytics/internal/datanorm"
	"github.com/ignite/shipment-analytics/internal/filter"
	"github.com/ignite/shipment-analytics/internal/session"
	"github.com/ignite/shipment-analytics/internal/worker"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// brokenQueue simulates a scheduler outage.
type brokenQueue struct{ calls int }

func (q *brokenQueue) Enqueue(context.Context, string, ...filter.Filter) (*worker.Job, error) {
	q.calls++
	return nil, errors.New("queue unavailable")
}

func (q *brokenQueue) Status(context.Context, string) (*worker.Job, error) {
	return nil, worker.ErrJobNotFound
}

func (q *brokenQueue) Remove(context.Context, string) error { return nil }

func setup(t *testing.T) (*Service, *session.Store, *worker.Scheduler, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	store := session.New(client, session.Options{TTL: 30 * time.Minute})
	sched := worker.NewScheduler(client, worker.SchedulerOptions{})
	return NewService(store, sched), store, sched, mr
}

func raws() []datanorm.RawRecord {
	return []datanorm.RawRecord{
		{"Order ID": "1", "Status": "Delivered", "Channel": "Amazon", "Order Total": "100"},
		{"Order ID": "2", "Status": "RTO Delivered", "Channel": "Shopify"},
		{"Order ID": "3", "Status": "In Transit", "Channel": "Shopify"},
	}
}

func TestImportStoresAndSchedules(t *testing.T) {
	ctx := context.Background()
	svc, store, _, _ := setup(t)

	res, err := svc.Import(ctx, raws(), "orders.csv")
	require.NoError(t, err)
	assert.Equal(t, 3, res.RecordCount)
	require.NotNil(t, res.Job)
	assert.Equal(t, worker.JobID(res.SessionID), res.Job.ID)
	assert.Equal(t, worker.StatusQueued, res.Job.Status)
	assert.Empty(t, res.ScheduleError)

	recs, err := store.Records(ctx, res.SessionID)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, datanorm.StatusDelivered, recs[0].DeliveryStatus)
}

func TestImportSurvivesSchedulingFailure(t *testing.T) {
	ctx := context.Background()
	_, store, _, _ := setup(t)
	queue := &brokenQueue{}
	svc := NewService(store, queue)

	res, err := svc.Import(ctx, raws(), "")
	require.NoError(t, err, "scheduling failure must not fail the import")
	assert.Nil(t, res.Job)
	assert.Equal(t, "queue unavailable", res.ScheduleError)

	// The first read reschedules.
	_, err = svc.Report(ctx, res.SessionID, analytics.SummaryMetrics, filter.Filter{})
	var pending *PendingError
	require.ErrorAs(t, err, &pending)
	assert.Nil(t, pending.Job)
	assert.Equal(t, 2, queue.calls)
}

func TestReportMissSchedulesComputation(t *testing.T) {
	ctx := context.Background()
	svc, _, sched, _ := setup(t)
	res, err := svc.Import(ctx, raws(), "")
	require.NoError(t, err)

	f := filter.Filter{Channel: "Shopify"}
	_, err = svc.Report(ctx, res.SessionID, analytics.ChannelShare, f)
	assert.ErrorIs(t, err, session.ErrNotComputed)
	var pending *PendingError
	require.ErrorAs(t, err, &pending)
	require.NotNil(t, pending.Job)
	assert.Equal(t, worker.StatusQueued, pending.Job.Status)

	job, err := sched.Status(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, job.PendingFilters, "the filter rides along with the queued job")
}

func TestReportHit(t *testing.T) {
	ctx := context.Background()
	svc, store, _, _ := setup(t)
	res, err := svc.Import(ctx, raws(), "")
	require.NoError(t, err)

	recs, err := store.Records(ctx, res.SessionID)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, res.SessionID, analytics.SummaryMetrics, filter.Filter{}, analytics.ComputeSummaryMetrics(recs)))

	data, err := svc.Report(ctx, res.SessionID, analytics.SummaryMetrics, filter.Filter{})
	require.NoError(t, err)
	var summary analytics.Summary
	require.NoError(t, json.Unmarshal(data, &summary))
	assert.Equal(t, 3, summary.SyncedOrders)
	assert.Equal(t, 1, summary.InTransitOrders)
}

func TestReportErrors(t *testing.T) {
	ctx := context.Background()
	svc, _, _, mr := setup(t)

	_, err := svc.Report(ctx, "session_1_abc", "bogus-report", filter.Filter{})
	assert.ErrorIs(t, err, ErrUnknownReport)

	_, err = svc.Report(ctx, "", analytics.SummaryMetrics, filter.Filter{})
	assert.ErrorIs(t, err, ErrMissingSession)

	res, err := svc.Import(ctx, raws(), "")
	require.NoError(t, err)
	mr.FastForward(31 * time.Minute)
	_, err = svc.Report(ctx, res.SessionID, analytics.SummaryMetrics, filter.Filter{})
	assert.ErrorIs(t, err, session.ErrSessionExpired)
}

func TestComputeRequiresLiveSession(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := setup(t)

	_, err := svc.Compute(ctx, "session_0_000000000", filter.Filter{})
	assert.ErrorIs(t, err, session.ErrSessionExpired)

	res, err := svc.Import(ctx, raws(), "")
	require.NoError(t, err)
	job, err := svc.Compute(ctx, res.SessionID, filter.Filter{Channel: "Amazon"})
	require.NoError(t, err)
	assert.Equal(t, res.Job.ID, job.ID, "deduplicated against the import job")

	got, err := svc.JobStatus(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.PendingFilters)
}

func TestSessionInfo(t *testing.T) {
	ctx := context.Background()
	svc, _, _, mr := setup(t)
	res, err := svc.Import(ctx, raws(), "orders.csv")
	require.NoError(t, err)

	mr.FastForward(10 * time.Minute)
	info, err := svc.SessionInfo(ctx, res.SessionID)
	require.NoError(t, err)
	assert.True(t, info.Valid)
	assert.Equal(t, int64(20*60), info.TTLSeconds)
	require.NotNil(t, info.Metadata)
	assert.Equal(t, "orders.csv", info.Metadata.Source)

	mr.FastForward(21 * time.Minute)
	info, err = svc.SessionInfo(ctx, res.SessionID)
	require.NoError(t, err)
	assert.False(t, info.Valid)
	assert.Equal(t, int64(-2), info.TTLSeconds)
	assert.Nil(t, info.ExpiresAt)
}

func TestRawShippingPagination(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := setup(t)

	var many []datanorm.RawRecord
	for i := 0; i < 7; i++ {
		many = append(many, datanorm.RawRecord{"Status": "Delivered", "Channel": "Amazon"})
	}
	many = append(many, datanorm.RawRecord{"Status": "Delivered", "Channel": "Shopify"})
	res, err := svc.Import(ctx, many, "")
	require.NoError(t, err)

	tests := []struct {
		name        string
		f           filter.Filter
		page, limit int
		wantCount   int
		wantTotal   int
		wantPages   int
	}{
		{"no limit returns all", filter.Filter{}, 1, 0, 8, 8, 1},
		{"first page", filter.Filter{}, 1, 3, 3, 8, 3},
		{"last page is short", filter.Filter{}, 3, 3, 2, 8, 3},
		{"past the end", filter.Filter{}, 9, 3, 0, 8, 3},
		{"huge page does not overflow", filter.Filter{}, math.MaxInt, 3, 0, 8, 3},
		{"huge page with capped limit", filter.Filter{}, math.MaxInt / 2, MaxPageSize, 0, 8, 1},
		{"filtered", filter.Filter{Channel: "amazon"}, 1, 5, 5, 7, 2},
		{"limit is capped", filter.Filter{}, 1, 10000, 8, 8, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := svc.RawShipping(ctx, res.SessionID, tt.f, tt.page, tt.limit)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCount, page.Count)
			assert.Len(t, page.Data, tt.wantCount)
			assert.Equal(t, tt.wantTotal, page.Total)
			assert.Equal(t, tt.wantPages, page.TotalPages)
			assert.LessOrEqual(t, page.Limit, MaxPageSize)
		})
	}

	_, err = svc.RawShipping(ctx, "session_0_000000000", filter.Filter{}, 1, 10)
	assert.ErrorIs(t, err, session.ErrSessionExpired)
}

func TestDeleteSession(t *testing.T) {
	ctx := context.Background()
	svc, _, sched, _ := setup(t)
	res, err := svc.Import(ctx, raws(), "")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteSession(ctx, res.SessionID))
	_, err = svc.JobStatus(ctx, res.SessionID)
	assert.ErrorIs(t, err, worker.ErrJobNotFound)
	_, err = sched.Status(ctx, res.SessionID)
	assert.ErrorIs(t, err, worker.ErrJobNotFound)
	info, err := svc.SessionInfo(ctx, res.SessionID)
	require.NoError(t, err)
	assert.False(t, info.Valid)
}

func TestMalformedSessionIDsAreRejected(t *testing.T) {
	ctx := context.Background()
	svc, store, _, mr := setup(t)
	res, err := svc.Import(ctx, raws(), "")
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, res.SessionID, analytics.SummaryMetrics, filter.Filter{}, 1))
	reportKey := session.Key(res.SessionID, analytics.SummaryMetrics, filter.Filter{})

	for _, sid := range []string{"*", "session_*", "session_1_[a-f]", "session_1_abc:*", "../session_1_abc"} {
		t.Run(sid, func(t *testing.T) {
			assert.ErrorIs(t, svc.DeleteSession(ctx, sid), ErrInvalidSession)
			_, err := svc.Report(ctx, sid, analytics.SummaryMetrics, filter.Filter{})
			assert.ErrorIs(t, err, ErrInvalidSession)
			_, err = svc.SessionInfo(ctx, sid)
			assert.ErrorIs(t, err, ErrInvalidSession)
		})
	}

	assert.True(t, mr.Exists(reportKey), "other sessions' reports survive")
	info, err := svc.SessionInfo(ctx, res.SessionID)
	require.NoError(t, err)
	assert.True(t, info.Valid)
}

func TestNewSessionID(t *testing.T) {
	svc, _, _, _ := setup(t)
	assert.Regexp(t, `^session_\d+_[0-9a-f]{9}$`, svc.NewSessionID())
}
