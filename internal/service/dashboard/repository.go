package dashboard

import (
	"context"
	"time"

	"github.com/ignite/shipment-analytics/internal/datanorm"
	"github.com/ignite/shipment-analytics/internal/filter"
	"github.com/ignite/shipment-analytics/internal/session"
	"github.com/ignite/shipment-analytics/internal/worker"
)

// Cache is the session-scoped store the service reads from.
// *session.Store satisfies it.
type Cache interface {
	Create(ctx context.Context, records []*datanorm.Record, source string) (*session.Metadata, error)
	Records(ctx context.Context, sid string) ([]*datanorm.Record, error)
	Metadata(ctx context.Context, sid string) (*session.Metadata, error)
	TTL(ctx context.Context, sid string) (time.Duration, error)
	Delete(ctx context.Context, sid string) error

	// Get returns session.ErrSessionExpired for a dead session and
	// session.ErrNotComputed for a live session without the entry.
	Get(ctx context.Context, sid, report string, f filter.Filter, dst any) error
}

// Queue schedules computations. *worker.Scheduler satisfies it.
type Queue interface {
	Enqueue(ctx context.Context, sid string, filters ...filter.Filter) (*worker.Job, error)
	Status(ctx context.Context, sid string) (*worker.Job, error)
	Remove(ctx context.Context, sid string) error
}
