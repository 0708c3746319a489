package dashboard

import (
	"errors"

	"github.com/ignite/shipment-analytics/internal/session"
	"github.com/ignite/shipment-analytics/internal/worker"
)

// Sentinel errors for the dashboard service layer.
var (
	ErrUnknownReport  = errors.New("unknown report")
	ErrMissingSession = errors.New("session id is required")
	ErrInvalidSession = errors.New("malformed session id")
)

// PendingError is returned by Report when the result is not cached yet.
// It matches session.ErrNotComputed with errors.Is.
type PendingError struct {
	// Job is the computation that will produce the report. Nil when
	// scheduling itself failed.
	Job *worker.Job
}

func (e *PendingError) Error() string { return session.ErrNotComputed.Error() }

func (e *PendingError) Unwrap() error { return session.ErrNotComputed }
