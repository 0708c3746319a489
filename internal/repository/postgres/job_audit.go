package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/ignite/shipment-analytics/internal/domain"
)

// JobAuditRepo keeps a durable history of analytics jobs that failed
// permanently, so failures outlive the Redis retention window.
type JobAuditRepo struct{ db *sql.DB }

// NewJobAuditRepo creates a Postgres-backed audit repository.
func NewJobAuditRepo(db *sql.DB) *JobAuditRepo { return &JobAuditRepo{db: db} }

// EnsureSchema creates the audit table if it does not exist.
func (r *JobAuditRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS analytics_job_failures (
			id         UUID PRIMARY KEY,
			job_id     TEXT NOT NULL,
			session_id TEXT NOT NULL,
			run_id     TEXT NOT NULL,
			attempts   INTEGER NOT NULL,
			error      TEXT NOT NULL,
			failed_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_analytics_job_failures_failed_at
			ON analytics_job_failures (failed_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("ensure job audit schema: %w", err)
	}
	return nil
}

// RecordFailure inserts one failure. A repeated run id is ignored.
func (r *JobAuditRepo) RecordFailure(ctx context.Context, f *domain.JobFailure) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO analytics_job_failures (id, job_id, session_id, run_id, attempts, error, failed_at)
		SELECT $1, $2, $3, $4, $5, $6, $7
		WHERE NOT EXISTS (SELECT 1 FROM analytics_job_failures WHERE run_id = $4)
	`, f.ID, f.JobID, f.SessionID, f.RunID, f.Attempts, f.Error, f.FailedAt)
	if err != nil {
		return fmt.Errorf("record job failure: %w", err)
	}
	return nil
}

// ListFailures returns the newest failures first.
func (r *JobAuditRepo) ListFailures(ctx context.Context, limit int) ([]domain.JobFailure, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, job_id, session_id, run_id, attempts, error, failed_at
		FROM analytics_job_failures
		ORDER BY failed_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list job failures: %w", err)
	}
	defer rows.Close()

	var out []domain.JobFailure
	for rows.Next() {
		var f domain.JobFailure
		if err := rows.Scan(&f.ID, &f.JobID, &f.SessionID, &f.RunID, &f.Attempts, &f.Error, &f.FailedAt); err != nil {
			return nil, fmt.Errorf("scan job failure: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
