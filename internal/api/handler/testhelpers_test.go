package handler

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/iconidentify/reelgrab/internal/domain"
	"github.com/iconidentify/reelgrab/internal/repository"
	"github.com/iconidentify/reelgrab/internal/resolver"
	"github.com/iconidentify/reelgrab/internal/service"
)

// testLogger returns a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockJobRepository is a test implementation of repository.JobRepository.
type mockJobRepository struct {
	mu       sync.Mutex
	stats    *repository.QueueStats
	statsErr error
	jobs     map[domain.JobID]*domain.Job
}

func newMockJobRepository() *mockJobRepository {
	return &mockJobRepository{
		stats: &repository.QueueStats{},
		jobs:  make(map[domain.JobID]*domain.Job),
	}
}

func (m *mockJobRepository) Enqueue(ctx context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	return nil
}

func (m *mockJobRepository) Dequeue(ctx context.Context) (*domain.Job, error) {
	return nil, domain.ErrNoJobs
}

func (m *mockJobRepository) Update(ctx context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	return nil
}

func (m *mockJobRepository) Get(ctx context.Context, id domain.JobID) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return job, nil
}

func (m *mockJobRepository) ListBySession(ctx context.Context, id domain.SessionID) ([]*domain.Job, error) {
	return nil, nil
}

func (m *mockJobRepository) DeleteSession(ctx context.Context, id domain.SessionID) {}

func (m *mockJobRepository) ListPending(ctx context.Context) ([]*domain.Job, error) {
	return nil, nil
}

func (m *mockJobRepository) Stats(ctx context.Context) (*repository.QueueStats, error) {
	if m.statsErr != nil {
		return nil, m.statsErr
	}
	return m.stats, nil
}

// fakeSessions is a hand-written Sessions implementation. Errors set in err
// are returned by every method that can fail.
type fakeSessions struct {
	mu       sync.Mutex
	err      error
	sessions map[domain.SessionID]*domain.Session
	canceled []domain.SessionID

	lastURL          string
	lastMax          int
	lastItems        []string
	lastSelected     bool
	lastAll          *bool
	lastSelectedOnly bool
}

func newFakeSessions(sessions ...*domain.Session) *fakeSessions {
	f := &fakeSessions{sessions: make(map[domain.SessionID]*domain.Session)}
	for _, s := range sessions {
		f.sessions[s.ID] = s
	}
	return f
}

func (f *fakeSessions) Submit(ctx context.Context, url string, maxItems int) (*domain.Session, *domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastURL, f.lastMax = url, maxItems
	if f.err != nil {
		return nil, nil, f.err
	}
	sess := domain.NewSession("sess_new", url, maxItems)
	f.sessions[sess.ID] = sess
	return sess, domain.NewJob("job_new", domain.JobKindResolve, sess.ID, 3), nil
}

func (f *fakeSessions) ResolveNow(ctx context.Context, url string, maxItems int) (*resolver.Resolution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastURL, f.lastMax = url, maxItems
	if f.err != nil {
		return nil, f.err
	}
	return &resolver.Resolution{
		Candidate: domain.CandidateURL{CanonicalURL: url},
		Items:     []domain.VideoDescriptor{{ID: "v1", URL: url + "/v1", Selected: true}},
		Tried:     1,
	}, nil
}

func (f *fakeSessions) lookup(id domain.SessionID) (*domain.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return s, nil
}

func (f *fakeSessions) Get(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookup(id)
}

func (f *fakeSessions) List(ctx context.Context) ([]*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []*domain.Session
	for _, s := range f.sessions {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeSessions) Jobs(ctx context.Context, id domain.SessionID) ([]*domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.lookup(id); err != nil {
		return nil, err
	}
	return nil, nil
}

func (f *fakeSessions) Select(ctx context.Context, id domain.SessionID, itemIDs []string, selected bool) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastItems, f.lastSelected = itemIDs, selected
	return f.lookup(id)
}

func (f *fakeSessions) SelectAll(ctx context.Context, id domain.SessionID, selected bool) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastAll = &selected
	return f.lookup(id)
}

func (f *fakeSessions) Clear(ctx context.Context, id domain.SessionID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.lookup(id); err != nil {
		return err
	}
	delete(f.sessions, id)
	return nil
}

func (f *fakeSessions) Cancel(id domain.SessionID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, id)
	s, ok := f.sessions[id]
	return ok && s.Status == domain.SessionStatusDownloading
}

func (f *fakeSessions) StartBatch(ctx context.Context, id domain.SessionID, selectedOnly bool) (*domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSelectedOnly = selectedOnly
	if _, err := f.lookup(id); err != nil {
		return nil, err
	}
	job := domain.NewJob("job_batch", domain.JobKindBatch, id, 0)
	job.SelectedOnly = selectedOnly
	return job, nil
}

func (f *fakeSessions) RetryFailed(ctx context.Context, id domain.SessionID) (*domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.lookup(id); err != nil {
		return nil, err
	}
	return domain.NewJob("job_retry", domain.JobKindRetryFailed, id, 0), nil
}

func (f *fakeSessions) Diagnose(ctx context.Context, url string) (*service.Diagnosis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &service.Diagnosis{URL: url, Supported: true, Reachable: true}, nil
}

func readySession(id domain.SessionID) *domain.Session {
	s := domain.NewSession(id, "https://www.tiktok.com/@someone", 10)
	s.Status = domain.SessionStatusReady
	s.Items = []domain.VideoDescriptor{
		{ID: "a", URL: "https://www.tiktok.com/@someone/video/1", Selected: true},
		{ID: "b", URL: "https://www.tiktok.com/@someone/video/2", Selected: true},
	}
	return s
}
