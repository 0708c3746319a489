package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/shipment-analytics/internal/analytics"
	"github.com/ignite/shipment-analytics/internal/datanorm"
	"github.com/ignite/shipment-analytics/internal/domain"
	"github.com/ignite/shipment-analytics/internal/filter"
	"github.com/ignite/shipment-analytics/internal/pkg/httputil"
	"github.com/ignite/shipment-analytics/internal/pkg/logger"
	"github.com/ignite/shipment-analytics/internal/service/dashboard"
	"github.com/ignite/shipment-analytics/internal/session"
	"github.com/ignite/shipment-analytics/internal/sheet"
	"github.com/ignite/shipment-analytics/internal/worker"
)

// SheetLoader reads a spreadsheet from a path, s3:// URI or URL.
type SheetLoader interface {
	Load(ctx context.Context, src string) (*sheet.Result, error)
}

// FailureLister reads the durable failed-job audit.
type FailureLister interface {
	ListFailures(ctx context.Context, limit int) ([]domain.JobFailure, error)
}

// Handlers contains all HTTP handlers
type Handlers struct {
	svc    *dashboard.Service
	sched  *worker.Scheduler
	loader SheetLoader
	audit  FailureLister
}

// NewHandlers creates a new Handlers instance. loader and audit may be nil.
func NewHandlers(svc *dashboard.Service, sched *worker.Scheduler, loader SheetLoader, audit FailureLister) *Handlers {
	return &Handlers{svc: svc, sched: sched, loader: loader, audit: audit}
}

type createSessionRequest struct {
	Records []datanorm.RawRecord `json:"records"`
	Source  string               `json:"source"`
}

// CreateSession stores uploaded rows as a new session.
//
//	POST /api/sessions
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if len(req.Records) == 0 {
		httputil.BadRequest(w, "records are required")
		return
	}

	res, err := h.svc.Import(r.Context(), req.Records, req.Source)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.Created(w, res)
}

type importSessionRequest struct {
	Source string `json:"source"`
}

type importSessionResponse struct {
	*dashboard.ImportResult
	File *sheet.Result `json:"file"`
}

// ImportSession loads a spreadsheet and stores it as a new session.
//
//	POST /api/sessions/import
func (h *Handlers) ImportSession(w http.ResponseWriter, r *http.Request) {
	if h.loader == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "spreadsheet import not configured")
		return
	}
	var req importSessionRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Source) == "" {
		httputil.BadRequest(w, "source is required")
		return
	}

	file, err := h.loader.Load(r.Context(), req.Source)
	switch {
	case errors.Is(err, sheet.ErrUnsupportedFormat), errors.Is(err, sheet.ErrEmpty), errors.Is(err, sheet.ErrLocalSource):
		httputil.BadRequest(w, err.Error())
		return
	case errors.Is(err, sheet.ErrTooLarge):
		httputil.Error(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	if err != nil {
		logger.Warn("spreadsheet load failed", "source", req.Source, "error", err)
		httputil.Error(w, http.StatusBadGateway, "could not read source")
		return
	}

	res, err := h.svc.Import(r.Context(), file.Records, req.Source)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.Created(w, importSessionResponse{ImportResult: res, File: file})
}

// GenerateSessionID returns a fresh session id.
//
//	POST /api/sessions/generate
func (h *Handlers) GenerateSessionID(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{"sessionId": h.svc.NewSessionID()})
}

// GetSession reports whether a session is alive.
//
//	GET /api/sessions/{sid}
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.SessionInfo(r.Context(), chi.URLParam(r, "sid"))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, info)
}

// DeleteSession drops a session and its job.
//
//	DELETE /api/sessions/{sid}
func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteSession(r.Context(), chi.URLParam(r, "sid")); err != nil {
		writeError(w, err)
		return
	}
	httputil.NoContent(w)
}

// Compute schedules every report for the request filter.
//
//	POST /api/analytics/{sid}/compute
func (h *Handlers) Compute(w http.ResponseWriter, r *http.Request) {
	f, ok := parseFilter(w, r)
	if !ok {
		return
	}
	job, err := h.svc.Compute(r.Context(), chi.URLParam(r, "sid"), f)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.Accepted(w, job)
}

// JobStatus returns the computation state of a session.
//
//	GET /api/analytics/{sid}/jobs
func (h *Handlers) JobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := h.svc.JobStatus(r.Context(), chi.URLParam(r, "sid"))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, job)
}

// RawShipping returns a page of filtered records.
//
//	GET /api/analytics/{sid}/raw-shipping?page=1&limit=100
func (h *Handlers) RawShipping(w http.ResponseWriter, r *http.Request) {
	f, ok := parseFilter(w, r)
	if !ok {
		return
	}
	page, err := h.svc.RawShipping(r.Context(), chi.URLParam(r, "sid"), f,
		httputil.QueryInt(r, "page", 1), httputil.QueryInt(r, "limit", 0))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, page)
}

type reportResponse struct {
	Report string          `json:"report"`
	Data   json.RawMessage `json:"data"`
}

type pendingResponse struct {
	Status string      `json:"status"`
	Report string      `json:"report"`
	Job    *worker.Job `json:"job"`
}

// Report serves one cached report. A miss answers 202 and schedules the
// computation; the client polls.
//
//	GET /api/analytics/{sid}/{report}
func (h *Handlers) Report(w http.ResponseWriter, r *http.Request) {
	f, ok := parseFilter(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "report")
	data, err := h.svc.Report(r.Context(), chi.URLParam(r, "sid"), name, f)

	var pending *dashboard.PendingError
	if errors.As(err, &pending) {
		httputil.Accepted(w, pendingResponse{Status: "computing", Report: name, Job: pending.Job})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, reportResponse{Report: name, Data: data})
}

// ListReports returns every report name.
//
//	GET /api/analytics/reports
func (h *Handlers) ListReports(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]interface{}{"reports": analytics.Names()})
}

type queueResponse struct {
	Stats   *worker.QueueStats   `json:"stats"`
	Failed  []worker.FailedEntry `json:"failed"`
	History []domain.JobFailure  `json:"history,omitempty"`
}

// QueueStatus returns queue depths and recent failures.
//
//	GET /api/analytics/queue?limit=20
func (h *Handlers) QueueStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := httputil.QueryInt(r, "limit", 20)

	stats, err := h.sched.Stats(ctx)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	failed, err := h.sched.Failed(ctx, limit)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	resp := queueResponse{Stats: stats, Failed: failed}

	if h.audit != nil {
		history, err := h.audit.ListFailures(ctx, limit)
		if err != nil {
			logger.Warn("failure history unavailable", "error", err)
		} else {
			resp.History = history
		}
	}
	httputil.OK(w, resp)
}

// parseFilter reads the request filter either from a JSON "filters" query
// parameter or from individual parameters. Writes a 400 on malformed input.
func parseFilter(w http.ResponseWriter, r *http.Request) (filter.Filter, bool) {
	q := r.URL.Query()
	if raw := q.Get("filters"); raw != "" {
		f, err := filter.Parse(raw)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return filter.Filter{}, false
		}
		return f, true
	}

	f := filter.Filter{
		StartDate:     q.Get("startDate"),
		EndDate:       q.Get("endDate"),
		OrderStatus:   q.Get("orderStatus"),
		PaymentMethod: q.Get("paymentMethod"),
		Channel:       q.Get("channel"),
		SKU:           splitMulti(q["sku"]),
		ProductName:   q["productName"],
	}
	return f.Canonical(), true
}

// splitMulti accepts both repeated and comma-separated values. Product
// names are not split since they may contain commas.
func splitMulti(values []string) filter.StringSet {
	var out filter.StringSet
	for _, v := range values {
		out = append(out, strings.Split(v, ",")...)
	}
	return out
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrSessionExpired):
		httputil.Gone(w, err.Error())
	case errors.Is(err, dashboard.ErrUnknownReport):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, worker.ErrJobNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, dashboard.ErrMissingSession), errors.Is(err, dashboard.ErrInvalidSession):
		httputil.BadRequest(w, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}
