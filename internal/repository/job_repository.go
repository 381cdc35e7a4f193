package repository

import (
	"context"
	"sync"

	"github.com/iconidentify/reelgrab/internal/domain"
)

// InMemoryJobRepository implements JobRepository using in-memory storage.
type InMemoryJobRepository struct {
	mu        sync.RWMutex
	jobs      map[domain.JobID]*domain.Job
	bySession map[domain.SessionID][]domain.JobID
	queue     []domain.JobID // FIFO of runnable job IDs
}

// NewInMemoryJobRepository creates a new in-memory job repository.
func NewInMemoryJobRepository() *InMemoryJobRepository {
	return &InMemoryJobRepository{
		jobs:      make(map[domain.JobID]*domain.Job),
		bySession: make(map[domain.SessionID][]domain.JobID),
		queue:     make([]domain.JobID, 0),
	}
}

// Enqueue adds a job to the queue.
func (r *InMemoryJobRepository) Enqueue(ctx context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.ID]; !exists {
		r.bySession[job.SessionID] = append(r.bySession[job.SessionID], job.ID)
	}
	r.jobs[job.ID] = job
	r.queue = append(r.queue, job.ID)

	return nil
}

// Dequeue retrieves the next runnable job (FIFO).
func (r *InMemoryJobRepository) Dequeue(ctx context.Context) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, jobID := range r.queue {
		job, ok := r.jobs[jobID]
		if !ok {
			continue
		}
		if job.Status == domain.JobStatusQueued || job.Status == domain.JobStatusRetrying {
			r.queue = append(r.queue[:i], r.queue[i+1:]...)
			return job, nil
		}
	}

	return nil, domain.ErrNoJobs
}

// Update modifies job state. Retrying jobs go back on the queue.
func (r *InMemoryJobRepository) Update(ctx context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[job.ID]; !ok {
		return domain.ErrJobNotFound
	}

	r.jobs[job.ID] = job
	if job.Status == domain.JobStatusRetrying {
		r.queue = append(r.queue, job.ID)
	}

	return nil
}

// Get retrieves a job by ID.
func (r *InMemoryJobRepository) Get(ctx context.Context, id domain.JobID) (*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return job, nil
}

// ListBySession returns the jobs submitted for a session, oldest first.
func (r *InMemoryJobRepository) ListBySession(ctx context.Context, sessionID domain.SessionID) ([]*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.bySession[sessionID]
	result := make([]*domain.Job, 0, len(ids))
	for _, id := range ids {
		if job, ok := r.jobs[id]; ok {
			result = append(result, job)
		}
	}
	return result, nil
}

// ListPending returns all queued or retrying jobs.
func (r *InMemoryJobRepository) ListPending(ctx context.Context) ([]*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*domain.Job
	for _, id := range r.queue {
		job, ok := r.jobs[id]
		if ok && (job.Status == domain.JobStatusQueued || job.Status == domain.JobStatusRetrying) {
			result = append(result, job)
		}
	}
	return result, nil
}

// Stats returns queue statistics.
func (r *InMemoryJobRepository) Stats(ctx context.Context) (*QueueStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &QueueStats{}
	for _, job := range r.jobs {
		switch job.Status {
		case domain.JobStatusQueued:
			stats.Queued++
		case domain.JobStatusProcessing:
			stats.Processing++
		case domain.JobStatusCompleted:
			stats.Completed++
		case domain.JobStatusFailed:
			stats.Failed++
		case domain.JobStatusRetrying:
			stats.Retrying++
		}
	}
	return stats, nil
}

// DeleteSession drops every job of a session, including queued ones.
func (r *InMemoryJobRepository) DeleteSession(ctx context.Context, sessionID domain.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	drop := make(map[domain.JobID]bool)
	for _, id := range r.bySession[sessionID] {
		drop[id] = true
		delete(r.jobs, id)
	}
	delete(r.bySession, sessionID)

	kept := r.queue[:0]
	for _, id := range r.queue {
		if !drop[id] {
			kept = append(kept, id)
		}
	}
	r.queue = kept
}
