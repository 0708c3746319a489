package domain

import "time"

// JobFailure is the durable record of an analytics job that exhausted its
// retries.
type JobFailure struct {
	ID        string    `json:"id" db:"id"`
	JobID     string    `json:"job_id" db:"job_id"`
	SessionID string    `json:"session_id" db:"session_id"`
	RunID     string    `json:"run_id" db:"run_id"`
	Attempts  int       `json:"attempts" db:"attempts"`
	Error     string    `json:"error" db:"error"`
	FailedAt  time.Time `json:"failed_at" db:"failed_at"`
}
