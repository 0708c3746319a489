package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/shipment-analytics/internal/analytics"
	"github.com/ignite/shipment-analytics/internal/datanorm"
	"github.com/ignite/shipment-analytics/internal/filter"
	"github.com/ignite/shipment-analytics/internal/pkg/logger"
	"github.com/ignite/shipment-analytics/internal/session"
	"github.com/ignite/shipment-analytics/internal/worker"
)

// MaxPageSize caps a raw shipping page.
const MaxPageSize = 500

// Service implements the dashboard use cases. It is safe for concurrent use.
type Service struct {
	cache Cache
	queue Queue
	now   func() time.Time
}

// NewService creates a dashboard service.
func NewService(cache Cache, queue Queue) *Service {
	return &Service{cache: cache, queue: queue, now: time.Now}
}

// ImportResult describes a stored dataset and its scheduled computation.
type ImportResult struct {
	SessionID   string      `json:"sessionId"`
	RecordCount int         `json:"recordCount"`
	ExpiresAt   time.Time   `json:"expiresAt"`
	Job         *worker.Job `json:"job"`

	// ScheduleError is set when the dataset was stored but the job could
	// not be scheduled. Reading any report schedules it again.
	ScheduleError string `json:"scheduleError,omitempty"`
}

// Import normalizes and stores raw records, then schedules the
// computation of every report.
func (s *Service) Import(ctx context.Context, raws []datanorm.RawRecord, source string) (*ImportResult, error) {
	records := datanorm.PreprocessAll(raws)
	meta, err := s.cache.Create(ctx, records, source)
	if err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}
	logger.Info("shipment dataset imported", "session_id", meta.SessionID, "records", meta.RecordCount, "source", source)

	res := &ImportResult{SessionID: meta.SessionID, RecordCount: meta.RecordCount, ExpiresAt: meta.ExpiresAt}
	job, err := s.Schedule(ctx, meta.SessionID)
	if err != nil {
		res.ScheduleError = err.Error()
		return res, nil
	}
	res.Job = job
	return res, nil
}

// Schedule enqueues the base computation of a session. Failures are
// logged and returned; callers on the ingest path treat them as non-fatal.
func (s *Service) Schedule(ctx context.Context, sid string, filters ...filter.Filter) (*worker.Job, error) {
	job, err := s.queue.Enqueue(ctx, sid, filters...)
	if err != nil {
		logger.Warn("analytics scheduling failed", "session_id", sid, "error", err)
		return nil, err
	}
	return job, nil
}

// Report returns the cached result of one report for a filter. A miss
// schedules the computation and returns a *PendingError.
func (s *Service) Report(ctx context.Context, sid, name string, f filter.Filter) (json.RawMessage, error) {
	if err := checkID(sid); err != nil {
		return nil, err
	}
	if !analytics.Known(name) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownReport, name)
	}

	var data json.RawMessage
	err := s.cache.Get(ctx, sid, name, f, &data)
	if errors.Is(err, session.ErrNotComputed) {
		var filters []filter.Filter
		if !f.IsEmpty() {
			filters = append(filters, f)
		}
		job, _ := s.Schedule(ctx, sid, filters...)
		return nil, &PendingError{Job: job}
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Compute explicitly schedules a session's reports for a filter.
func (s *Service) Compute(ctx context.Context, sid string, f filter.Filter) (*worker.Job, error) {
	if err := checkID(sid); err != nil {
		return nil, err
	}
	if _, err := s.cache.TTL(ctx, sid); err != nil {
		return nil, err
	}
	var filters []filter.Filter
	if !f.IsEmpty() {
		filters = append(filters, f)
	}
	return s.Schedule(ctx, sid, filters...)
}

// JobStatus returns the computation state of a session.
func (s *Service) JobStatus(ctx context.Context, sid string) (*worker.Job, error) {
	if err := checkID(sid); err != nil {
		return nil, err
	}
	return s.queue.Status(ctx, sid)
}

// DeleteSession drops a dataset, its cached reports and its job.
func (s *Service) DeleteSession(ctx context.Context, sid string) error {
	if err := checkID(sid); err != nil {
		return err
	}
	if err := s.queue.Remove(ctx, sid); err != nil {
		return err
	}
	return s.cache.Delete(ctx, sid)
}

// SessionInfo describes a session's liveness.
type SessionInfo struct {
	SessionID  string            `json:"sessionId"`
	Valid      bool              `json:"isValid"`
	TTLSeconds int64             `json:"ttl"`
	ExpiresAt  *time.Time        `json:"expiresAt"`
	Metadata   *session.Metadata `json:"metadata"`
}

// SessionInfo reports whether a session is alive and when it expires. An
// expired session is not an error here.
func (s *Service) SessionInfo(ctx context.Context, sid string) (*SessionInfo, error) {
	if err := checkID(sid); err != nil {
		return nil, err
	}
	info := &SessionInfo{SessionID: sid, TTLSeconds: -2}

	ttl, err := s.cache.TTL(ctx, sid)
	if errors.Is(err, session.ErrSessionExpired) {
		return info, nil
	}
	if err != nil {
		return nil, err
	}
	info.Valid = true
	info.TTLSeconds = int64(ttl / time.Second)
	exp := s.now().Add(ttl).UTC()
	info.ExpiresAt = &exp

	meta, err := s.cache.Metadata(ctx, sid)
	switch {
	case err == nil:
		info.Metadata = meta
	case !errors.Is(err, session.ErrSessionExpired):
		return nil, err
	}
	return info, nil
}

// RawPage is one page of normalized records.
type RawPage struct {
	Data       []*datanorm.Record `json:"data"`
	Count      int                `json:"count"`
	Total      int                `json:"total"`
	Page       int                `json:"page"`
	Limit      int                `json:"limit"`
	TotalPages int                `json:"totalPages"`
}

// RawShipping returns filtered records. A non-positive limit returns
// everything on one page; larger limits are capped at MaxPageSize.
func (s *Service) RawShipping(ctx context.Context, sid string, f filter.Filter, page, limit int) (*RawPage, error) {
	if err := checkID(sid); err != nil {
		return nil, err
	}
	records, err := s.cache.Records(ctx, sid)
	if err != nil {
		return nil, err
	}
	filtered := filter.Apply(records, f)
	total := len(filtered)

	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		return &RawPage{Data: filtered, Count: total, Total: total, Page: page, Limit: total, TotalPages: 1}, nil
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	// Compare in pages so huge page numbers cannot overflow the offset.
	start := total
	if page-1 <= total/limit {
		start = min((page-1)*limit, total)
	}
	end := start + limit
	if end > total {
		end = total
	}
	data := filtered[start:end]
	return &RawPage{
		Data:       data,
		Count:      len(data),
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	}, nil
}

// checkID rejects ids before they reach Redis key or pattern construction.
func checkID(sid string) error {
	switch {
	case sid == "":
		return ErrMissingSession
	case !session.ValidID(sid):
		return fmt.Errorf("%w: %q", ErrInvalidSession, sid)
	}
	return nil
}

// NewSessionID returns a fresh session identifier for a client that
// uploads in several steps.
func (s *Service) NewSessionID() string { return session.NewID(s.now()) }
