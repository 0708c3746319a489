package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ignite/shipment-analytics/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestJobAuditRepo_EnsureSchema(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS analytics_job_failures").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, NewJobAuditRepo(db).EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobAuditRepo_RecordFailure(t *testing.T) {
	db, mock := setupTestDB(t)
	failedAt := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	f := &domain.JobFailure{
		JobID:     "analytics-session_1",
		SessionID: "session_1",
		RunID:     "01HZX",
		Attempts:  3,
		Error:     "boom",
		FailedAt:  failedAt,
	}

	mock.ExpectExec("INSERT INTO analytics_job_failures").
		WithArgs(sqlmock.AnyArg(), f.JobID, f.SessionID, f.RunID, 3, "boom", failedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewJobAuditRepo(db).RecordFailure(context.Background(), f))
	assert.Len(t, f.ID, 36, "an id is assigned when missing")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobAuditRepo_RecordFailureError(t *testing.T) {
	db, mock := setupTestDB(t)
	mock.ExpectExec("INSERT INTO analytics_job_failures").
		WillReturnError(errors.New("connection refused"))

	err := NewJobAuditRepo(db).RecordFailure(context.Background(), &domain.JobFailure{ID: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record job failure")
}

func TestJobAuditRepo_ListFailures(t *testing.T) {
	db, mock := setupTestDB(t)
	at := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "job_id", "session_id", "run_id", "attempts", "error", "failed_at"}).
		AddRow("a", "analytics-s2", "s2", "r2", 3, "late", at.Add(time.Hour)).
		AddRow("b", "analytics-s1", "s1", "r1", 1, "session expired", at)

	mock.ExpectQuery("SELECT id, job_id, session_id, run_id, attempts, error, failed_at").
		WithArgs(50).
		WillReturnRows(rows)

	got, err := NewJobAuditRepo(db).ListFailures(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "s2", got[0].SessionID)
	assert.Equal(t, 1, got[1].Attempts)
	assert.Equal(t, at, got[1].FailedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}
