package repository

import (
	"context"

	"github.com/iconidentify/reelgrab/internal/domain"
)

// SessionRepository stores listing sessions. Implementations hand out
// copies; mutation goes through Update.
type SessionRepository interface {
	// Create stores a new session.
	Create(ctx context.Context, session *domain.Session) error

	// Get returns a copy of the session.
	Get(ctx context.Context, id domain.SessionID) (*domain.Session, error)

	// List returns copies of all sessions, newest first.
	List(ctx context.Context) ([]*domain.Session, error)

	// Update applies fn to the stored session under the repository lock
	// and returns a copy of the result. An error from fn aborts the update.
	Update(ctx context.Context, id domain.SessionID, fn func(*domain.Session) error) (*domain.Session, error)

	// Delete removes a session.
	Delete(ctx context.Context, id domain.SessionID) error
}

// JobRepository defines the interface for job queue management.
type JobRepository interface {
	// Enqueue adds a job to the queue.
	Enqueue(ctx context.Context, job *domain.Job) error

	// Dequeue retrieves the next pending job (FIFO).
	Dequeue(ctx context.Context) (*domain.Job, error)

	// Update modifies job state.
	Update(ctx context.Context, job *domain.Job) error

	// Get retrieves a job by ID.
	Get(ctx context.Context, id domain.JobID) (*domain.Job, error)

	// ListBySession returns the jobs of a session in submission order.
	ListBySession(ctx context.Context, sessionID domain.SessionID) ([]*domain.Job, error)

	// DeleteSession drops every job of a session, queued ones included.
	DeleteSession(ctx context.Context, sessionID domain.SessionID)

	// ListPending returns all pending/retrying jobs.
	ListPending(ctx context.Context) ([]*domain.Job, error)

	// Stats returns queue statistics.
	Stats(ctx context.Context) (*QueueStats, error)
}

// QueueStats holds job queue statistics.
type QueueStats struct {
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Retrying   int `json:"retrying"`
}

// Active returns the number of jobs not yet finished.
func (s QueueStats) Active() int {
	return s.Queued + s.Processing + s.Retrying
}
