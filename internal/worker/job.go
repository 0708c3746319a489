package worker

import (
	"errors"
	"strconv"
	"time"
)

// Status is the lifecycle state of an analytics job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusStarted   Status = "started"
	StatusScheduled Status = "scheduled" // waiting for a retry
	StatusFinished  Status = "finished"
	StatusFailed    Status = "failed"
)

// ErrJobNotFound is returned when no job record exists for a session.
var ErrJobNotFound = errors.New("job not found")

// QueueName identifies the analytics work queue.
const QueueName = "analytics-computation"

const (
	queueKey   = "jobs:queue:" + QueueName
	delayedKey = "jobs:delayed:" + QueueName
	startedKey = "jobs:started:" + QueueName
	failedKey  = "jobs:failed:" + QueueName
	jobPrefix  = "jobs:analytics:"

	// failedListCap bounds the operator-facing failed list.
	failedListCap = 1000
)

func jobKey(sid string) string     { return jobPrefix + sid }
func pendingKey(sid string) string { return jobPrefix + sid + ":pending" }

// JobID is the idempotent job identifier of a session.
func JobID(sid string) string { return "analytics-" + sid }

// Job is the observable state of a session's computation.
type Job struct {
	ID             string     `json:"id"`
	SessionID      string     `json:"session_id"`
	Status         Status     `json:"status"`
	Attempts       int        `json:"attempts"`
	MaxAttempts    int        `json:"max_attempts"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	RetryAt        *time.Time `json:"retry_at,omitempty"`
	Error          string     `json:"error,omitempty"`
	RunID          string     `json:"run_id,omitempty"`
	PendingFilters int        `json:"pending_filters"`
}

// Done reports whether the job reached a terminal state.
func (j *Job) Done() bool {
	return j.Status == StatusFinished || j.Status == StatusFailed
}

func parseJob(fields map[string]string) *Job {
	j := &Job{
		ID:          fields["id"],
		SessionID:   fields["session_id"],
		Status:      Status(fields["status"]),
		Attempts:    atoi(fields["attempts"]),
		MaxAttempts: atoi(fields["max_attempts"]),
		Error:       fields["error"],
		RunID:       fields["run_id"],
	}
	if t := msTime(fields["created_at"]); t != nil {
		j.CreatedAt = *t
	}
	j.StartedAt = msTime(fields["started_at"])
	j.EndedAt = msTime(fields["ended_at"])
	if j.Status == StatusScheduled {
		j.RetryAt = msTime(fields["retry_at"])
	}
	return j
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func msTime(s string) *time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms <= 0 {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}

// FailedEntry is what operators see in the failed list.
type FailedEntry struct {
	JobID     string    `json:"job_id"`
	SessionID string    `json:"session_id"`
	RunID     string    `json:"run_id"`
	Attempts  int       `json:"attempts"`
	Error     string    `json:"error"`
	FailedAt  time.Time `json:"failed_at"`
}

// QueueStats is a point-in-time view of the queue.
type QueueStats struct {
	Queue   string `json:"queue"`
	Queued  int64  `json:"queued"`
	Delayed int64  `json:"delayed"`
	Started int64  `json:"started"`
	Failed  int64  `json:"failed"`
}
