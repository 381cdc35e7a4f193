package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iconidentify/reelgrab/internal/batch"
	"github.com/iconidentify/reelgrab/internal/classifier"
	"github.com/iconidentify/reelgrab/internal/domain"
	"github.com/iconidentify/reelgrab/internal/platform"
	"github.com/iconidentify/reelgrab/internal/repository"
	"github.com/iconidentify/reelgrab/internal/resolver"
)

// Resolver resolves listings. *resolver.Resolver implements it.
type Resolver interface {
	ResolveListing(ctx context.Context, raw string, maxItems int) (*resolver.Resolution, error)
	Probe(ctx context.Context, url string) error
}

// BatchRunner runs batches. *batch.Orchestrator implements it.
type BatchRunner interface {
	Run(ctx context.Context, items []domain.VideoDescriptor, onItem func(domain.ProgressEvent), onBatch func(float64)) domain.BatchResult
	RetryFailed(ctx context.Context, items []domain.VideoDescriptor, onItem func(domain.ProgressEvent), onBatch func(float64)) domain.BatchResult
}

// ProgressPublisher fans progress snapshots out to stream subscribers.
type ProgressPublisher interface {
	PublishProgress(ev domain.ProgressEvent)
}

// SessionServiceConfig configures the session service.
type SessionServiceConfig struct {
	// DefaultMaxItems applies when a caller asks for a non-positive count.
	DefaultMaxItems int

	// MaxRetries bounds worker retries of resolve jobs. Batch jobs are
	// never retried automatically.
	MaxRetries int

	// ListingTimeout bounds one resolution (0 = none).
	ListingTimeout time.Duration
}

// SessionService manages listing sessions: resolution on the worker pool,
// item selection and batch retrieval.
type SessionService struct {
	sessions repository.SessionRepository
	jobs     repository.JobRepository
	resolver Resolver
	batch    BatchRunner
	progress ProgressPublisher
	events   domain.EventEmitter
	cfg      SessionServiceConfig
	logger   *slog.Logger

	mu      sync.Mutex
	running map[domain.SessionID]*batchControl
}

// batchControl lets Cancel reach a batch from the moment it is queued.
// cancel is nil until the worker picks the job up.
type batchControl struct {
	cancel   context.CancelFunc
	canceled bool
}

// NewSessionService creates a new session service.
func NewSessionService(
	sessions repository.SessionRepository,
	jobs repository.JobRepository,
	res Resolver,
	runner BatchRunner,
	cfg SessionServiceConfig,
	logger *slog.Logger,
) *SessionService {
	if cfg.DefaultMaxItems <= 0 {
		cfg.DefaultMaxItems = resolver.DefaultMaxItems
	}
	return &SessionService{
		sessions: sessions,
		jobs:     jobs,
		resolver: res,
		batch:    runner,
		cfg:      cfg,
		logger:   logger,
		running:  make(map[domain.SessionID]*batchControl),
	}
}

// SetEventEmitter sets the event emitter for session journaling.
func (s *SessionService) SetEventEmitter(emitter domain.EventEmitter) {
	s.events = emitter
}

// SetProgressPublisher sets where batch progress is streamed.
func (s *SessionService) SetProgressPublisher(p ProgressPublisher) {
	s.progress = p
}

func newSessionID() domain.SessionID {
	return domain.SessionID("sess_" + uuid.New().String()[:8])
}

func newJobID() domain.JobID {
	return domain.JobID("job_" + uuid.New().String()[:8])
}

func (s *SessionService) maxItems(n int) int {
	if n <= 0 {
		return s.cfg.DefaultMaxItems
	}
	return n
}

// Submit creates a session for url and queues its resolution.
func (s *SessionService) Submit(ctx context.Context, url string, maxItems int) (*domain.Session, *domain.Job, error) {
	if _, err := platform.Normalize(url); err != nil {
		return nil, nil, err
	}

	sess := domain.NewSession(newSessionID(), url, s.maxItems(maxItems))
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, nil, fmt.Errorf("create session: %w", err)
	}

	job := domain.NewJob(newJobID(), domain.JobKindResolve, sess.ID, s.cfg.MaxRetries)
	if err := s.jobs.Enqueue(ctx, job); err != nil {
		s.sessions.Delete(ctx, sess.ID)
		return nil, nil, fmt.Errorf("enqueue job: %w", err)
	}

	s.logger.Info("session submitted",
		"session_id", sess.ID,
		"job_id", job.ID,
		"url", url,
		"max_items", sess.MaxItems,
	)
	return sess, job, nil
}

// ResolveNow resolves url on the caller's goroutine without creating a session.
func (s *SessionService) ResolveNow(ctx context.Context, url string, maxItems int) (*resolver.Resolution, error) {
	if s.cfg.ListingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ListingTimeout)
		defer cancel()
	}
	return s.resolver.ResolveListing(ctx, url, s.maxItems(maxItems))
}

// Get returns a copy of a session.
func (s *SessionService) Get(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	return s.sessions.Get(ctx, id)
}

// List returns all sessions, newest first.
func (s *SessionService) List(ctx context.Context) ([]*domain.Session, error) {
	return s.sessions.List(ctx)
}

// Jobs returns the jobs of a session.
func (s *SessionService) Jobs(ctx context.Context, id domain.SessionID) ([]*domain.Job, error) {
	if _, err := s.sessions.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.jobs.ListBySession(ctx, id)
}

func busy(sess *domain.Session) bool {
	return sess.Status == domain.SessionStatusResolving || sess.Status == domain.SessionStatusDownloading
}

// Select sets the selection flag of the named items. Unknown item IDs fail
// the whole request.
func (s *SessionService) Select(ctx context.Context, id domain.SessionID, itemIDs []string, selected bool) (*domain.Session, error) {
	return s.sessions.Update(ctx, id, func(sess *domain.Session) error {
		if busy(sess) {
			return domain.ErrSessionBusy
		}
		idx := make([]int, 0, len(itemIDs))
		for _, itemID := range itemIDs {
			i := sess.ItemIndex(itemID)
			if i < 0 {
				return domain.NewItemError(itemID, "select", domain.ErrItemNotFound)
			}
			idx = append(idx, i)
		}
		for _, i := range idx {
			sess.Items[i].Selected = selected
		}
		return nil
	})
}

// SelectAll sets the selection flag of every item.
func (s *SessionService) SelectAll(ctx context.Context, id domain.SessionID, selected bool) (*domain.Session, error) {
	return s.sessions.Update(ctx, id, func(sess *domain.Session) error {
		if busy(sess) {
			return domain.ErrSessionBusy
		}
		for i := range sess.Items {
			sess.Items[i].Selected = selected
		}
		return nil
	})
}

// Clear cancels any running batch and removes the session and its jobs.
func (s *SessionService) Clear(ctx context.Context, id domain.SessionID) error {
	s.Cancel(id)
	s.jobs.DeleteSession(ctx, id)
	if err := s.sessions.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("session cleared", "session_id", id)
	return nil
}

// Cancel stops the queued or running batch of a session and reports
// whether there was one. The in-flight transfer is aborted and its item
// ends canceled; items after it stay pending. A batch canceled while still
// queued finishes without retrieving anything.
func (s *SessionService) Cancel(id domain.SessionID) bool {
	s.mu.Lock()
	ctl, ok := s.running[id]
	if ok {
		ctl.canceled = true
		if ctl.cancel != nil {
			ctl.cancel()
		}
	}
	s.mu.Unlock()
	if ok {
		s.logger.Info("batch cancel requested", "session_id", id)
	}
	return ok
}

func (s *SessionService) release(id domain.SessionID, ctl *batchControl) {
	s.mu.Lock()
	if s.running[id] == ctl {
		delete(s.running, id)
	}
	s.mu.Unlock()
}

// StartBatch queues a batch over the selected items, or over every item
// when selectedOnly is false.
func (s *SessionService) StartBatch(ctx context.Context, id domain.SessionID, selectedOnly bool) (*domain.Job, error) {
	return s.queueBatch(ctx, id, domain.JobKindBatch, func(sess *domain.Session) error {
		if !selectedOnly {
			for i := range sess.Items {
				sess.Items[i].Selected = true
			}
		}
		if sess.SelectedCount() == 0 {
			return domain.ErrEmptySelection
		}
		return nil
	}, selectedOnly)
}

// RetryFailed queues a batch over the selected items that did not complete.
func (s *SessionService) RetryFailed(ctx context.Context, id domain.SessionID) (*domain.Job, error) {
	return s.queueBatch(ctx, id, domain.JobKindRetryFailed, func(sess *domain.Session) error {
		if len(batch.FailedItems(sess.Items)) == 0 {
			return domain.ErrNothingToRetry
		}
		return nil
	}, true)
}

func (s *SessionService) queueBatch(ctx context.Context, id domain.SessionID, kind domain.JobKind, check func(*domain.Session) error, selectedOnly bool) (*domain.Job, error) {
	var prev domain.SessionStatus
	_, err := s.sessions.Update(ctx, id, func(sess *domain.Session) error {
		if busy(sess) {
			return domain.ErrSessionBusy
		}
		if err := check(sess); err != nil {
			return err
		}
		prev = sess.Status
		sess.Status = domain.SessionStatusDownloading
		sess.BatchProgress = 0
		sess.BatchStatus = ""
		sess.Error = ""
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctl := &batchControl{}
	s.mu.Lock()
	s.running[id] = ctl
	s.mu.Unlock()

	job := domain.NewJob(newJobID(), kind, id, 0)
	job.SelectedOnly = selectedOnly
	if err := s.jobs.Enqueue(ctx, job); err != nil {
		s.release(id, ctl)
		s.sessions.Update(ctx, id, func(sess *domain.Session) error {
			sess.Status = prev
			return nil
		})
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	s.logger.Info("batch queued", "session_id", id, "job_id", job.ID, "kind", kind)
	return job, nil
}

// Process runs a job. It is called by the worker pool.
func (s *SessionService) Process(ctx context.Context, job *domain.Job) error {
	switch job.Kind {
	case domain.JobKindResolve:
		return s.processResolve(ctx, job)
	case domain.JobKindBatch, domain.JobKindRetryFailed:
		return s.processBatch(ctx, job)
	default:
		return fmt.Errorf("process job %s: unknown kind %q", job.ID, job.Kind)
	}
}

func (s *SessionService) processResolve(ctx context.Context, job *domain.Job) error {
	logger := s.logger.With("session_id", job.SessionID, "job_id", job.ID)

	sess, err := s.sessions.Update(ctx, job.SessionID, func(sess *domain.Session) error {
		sess.Status = domain.SessionStatusResolving
		sess.Error = ""
		return nil
	})
	if errors.Is(err, domain.ErrSessionNotFound) {
		logger.Info("session cleared before resolution, dropping job")
		return nil
	}
	if err != nil {
		return err
	}

	res, err := s.ResolveNow(ctx, sess.URL, sess.MaxItems)
	if err != nil {
		s.sessions.Update(ctx, sess.ID, func(sess *domain.Session) error {
			sess.Status = domain.SessionStatusFailed
			sess.Error = err.Error()
			return nil
		})
		return fmt.Errorf("resolve %s: %w", sess.URL, err)
	}

	updated, err := s.sessions.Update(ctx, sess.ID, func(sess *domain.Session) error {
		sess.Candidate = res.Candidate
		sess.Items = res.Items
		if len(res.Items) == 0 {
			sess.Status = domain.SessionStatusEmpty
			sess.Error = domain.ErrNoValidItems.Error()
		} else {
			sess.Status = domain.SessionStatusReady
		}
		return nil
	})
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	logger.Info("session resolved",
		"status", updated.Status,
		"items", len(updated.Items),
		"candidate", updated.Candidate.CanonicalURL,
	)
	return nil
}

func (s *SessionService) processBatch(ctx context.Context, job *domain.Job) error {
	logger := s.logger.With("session_id", job.SessionID, "job_id", job.ID)

	bctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	ctl, ok := s.running[job.SessionID]
	if !ok {
		ctl = &batchControl{}
		s.running[job.SessionID] = ctl
	}
	ctl.cancel = cancel
	if ctl.canceled {
		cancel()
	}
	s.mu.Unlock()
	defer s.release(job.SessionID, ctl)

	sess, err := s.sessions.Get(ctx, job.SessionID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		logger.Info("session cleared before batch, dropping job")
		return nil
	}
	if err != nil {
		return err
	}

	onItem := func(ev domain.ProgressEvent) {
		ev.SessionID = sess.ID
		s.sessions.Update(ctx, sess.ID, func(cur *domain.Session) error {
			if ev.ItemIndex < len(cur.Items) && cur.Items[ev.ItemIndex].ID == ev.ItemID {
				it := &cur.Items[ev.ItemIndex]
				it.Progress = ev.ItemPercent
				if ev.ItemStatus != "" {
					it.Status = ev.ItemStatus
				}
			}
			cur.BatchProgress = ev.BatchPercent
			return nil
		})
		if s.progress != nil {
			s.progress.PublishProgress(ev)
		}
	}

	var result domain.BatchResult
	if job.Kind == domain.JobKindRetryFailed {
		result = s.batch.RetryFailed(bctx, sess.Items, onItem, nil)
	} else {
		result = s.batch.Run(bctx, sess.Items, onItem, nil)
	}

	_, err = s.sessions.Update(ctx, sess.ID, func(cur *domain.Session) error {
		for _, it := range result.Items {
			if i := cur.ItemIndex(it.ID); i >= 0 {
				it.Selected = cur.Items[i].Selected
				cur.Items[i] = it
			}
		}
		cur.Status = domain.SessionStatusDone
		cur.BatchStatus = result.Status
		if result.Canceled {
			cur.Error = context.Canceled.Error()
		}
		return nil
	})
	if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		return err
	}

	logger.Info("batch complete",
		"status", result.Status,
		"canceled", result.Canceled,
	)
	if s.events != nil {
		s.events.EmitInfo(domain.EventCategoryBatch, "session", "Session batch complete", domain.EventMetadata{
			"session_id": string(sess.ID),
			"job_id":     string(job.ID),
			"status":     result.Status,
			"canceled":   result.Canceled,
		})
	}
	return nil
}

// Diagnosis reports whether a URL can be listed with the current setup.
type Diagnosis struct {
	URL          string             `json:"url"`
	Supported    bool               `json:"supported"`
	Platform     domain.PlatformTag `json:"platform,omitempty"`
	PlatformName string             `json:"platform_name,omitempty"`
	CanonicalURL string             `json:"canonical_url,omitempty"`
	Fallbacks    int                `json:"fallbacks"`
	Reachable    bool               `json:"reachable"`
	ConfigUsed   string             `json:"config_used,omitempty"`
	ErrorType    string             `json:"error_type,omitempty"`
	Error        string             `json:"error,omitempty"`
	Suggestions  []string           `json:"suggestions,omitempty"`
}

// ErrorTypeUnsupported marks a URL no platform rule accepts.
const ErrorTypeUnsupported = "unsupported_url"

var suggestions = map[domain.ErrorKind][]string{
	domain.KindSocketPermission: {
		"Run with permission to open network sockets",
		"Check firewall and antivirus rules",
		"Configure a proxy",
		"Restart the service",
	},
	domain.KindHTTPForbidden: {
		"Provide a cookies file",
		"Change the User-Agent",
		"Configure a proxy",
	},
	domain.KindHTTPRateLimited: {
		"Wait before trying again",
		"Configure a proxy",
		"Increase batch pacing",
	},
	domain.KindHTTPNotFound: {
		"Check that the channel or profile still exists",
		"Try the channel's videos or shorts tab directly",
	},
	domain.KindUnknown: {
		"Check the logs for details",
	},
}

// Diagnose probes url and suggests remedies for the failure it hits.
func (s *SessionService) Diagnose(ctx context.Context, url string) (*Diagnosis, error) {
	d := &Diagnosis{URL: url}

	primary, err := platform.Normalize(url)
	if err != nil || !platform.IsSupported(url) {
		d.ErrorType = ErrorTypeUnsupported
		d.Error = domain.ErrInvalidURL.Error()
		if err != nil {
			d.Error = err.Error()
		}
		d.Suggestions = []string{"Check that the URL is in a supported format"}
		return d, nil
	}

	d.Supported = true
	d.Platform = primary.Platform
	d.PlatformName = primary.PlatformName
	d.CanonicalURL = primary.CanonicalURL
	d.Fallbacks = len(platform.Fallbacks(primary))

	err = s.resolver.Probe(ctx, primary.CanonicalURL)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err == nil {
		d.Reachable = true
		d.ConfigUsed = string(domain.VariantStandard)
		return d, nil
	}

	kind := classifier.Classify(err).Kind
	d.ErrorType = string(kind)
	d.Error = err.Error()
	d.Suggestions = suggestions[kind]

	s.logger.Info("diagnosis probe failed", "url", primary.CanonicalURL, "kind", kind, "error", err)
	return d, nil
}

// SessionStats summarizes sessions and the job queue.
type SessionStats struct {
	Sessions map[domain.SessionStatus]int `json:"sessions"`
	Items    int                          `json:"items"`
	Selected int                          `json:"selected"`
	Jobs     *repository.QueueStats       `json:"jobs"`
	Running  int                          `json:"running_batches"`
}

// Stats returns session and queue statistics.
func (s *SessionService) Stats(ctx context.Context) (*SessionStats, error) {
	list, err := s.sessions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	jobs, err := s.jobs.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}

	stats := &SessionStats{Sessions: make(map[domain.SessionStatus]int), Jobs: jobs}
	for _, sess := range list {
		stats.Sessions[sess.Status]++
		stats.Items += len(sess.Items)
		stats.Selected += sess.SelectedCount()
	}

	s.mu.Lock()
	stats.Running = len(s.running)
	s.mu.Unlock()
	return stats, nil
}
