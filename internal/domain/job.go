package domain

import (
	"time"
)

// JobID is a unique identifier for a job.
type JobID string

// String returns the string representation of the JobID.
func (id JobID) String() string {
	return string(id)
}

// JobKind selects what a worker does with a job.
type JobKind string

const (
	JobKindResolve     JobKind = "resolve"
	JobKindBatch       JobKind = "batch"
	JobKindRetryFailed JobKind = "retry_failed"
)

// JobStatus represents the current state of a job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a unit of background work for a session.
type Job struct {
	ID           JobID     `json:"id"`
	Kind         JobKind   `json:"kind"`
	SessionID    SessionID `json:"session_id"`
	SelectedOnly bool      `json:"selected_only,omitempty"`
	Status       JobStatus `json:"status"`
	Attempts     int       `json:"attempts"`
	MaxRetries   int       `json:"max_retries"`
	LastError    string    `json:"last_error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewJob creates a new queued job for a session.
func NewJob(id JobID, kind JobKind, sessionID SessionID, maxRetries int) *Job {
	now := time.Now()
	return &Job{
		ID:         id,
		Kind:       kind,
		SessionID:  sessionID,
		Status:     JobStatusQueued,
		Attempts:   0,
		MaxRetries: maxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// CanRetry returns true if the job can be retried.
func (j *Job) CanRetry() bool {
	return j.Attempts < j.MaxRetries
}

// MarkProcessing updates the job status to processing.
func (j *Job) MarkProcessing() {
	j.Status = JobStatusProcessing
	j.UpdatedAt = time.Now()
}

// MarkCompleted updates the job status to completed.
func (j *Job) MarkCompleted() {
	j.Status = JobStatusCompleted
	j.UpdatedAt = time.Now()
}

// MarkFailed updates the job status to failed with an error message.
func (j *Job) MarkFailed(err string) {
	j.Attempts++
	j.LastError = err
	j.UpdatedAt = time.Now()

	if j.CanRetry() {
		j.Status = JobStatusRetrying
	} else {
		j.Status = JobStatusFailed
	}
}
