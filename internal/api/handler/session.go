package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iconidentify/reelgrab/internal/domain"
	"github.com/iconidentify/reelgrab/internal/resolver"
	"github.com/iconidentify/reelgrab/internal/service"
)

// Sessions is the session surface the handler needs. *service.SessionService
// implements it.
type Sessions interface {
	Submit(ctx context.Context, url string, maxItems int) (*domain.Session, *domain.Job, error)
	ResolveNow(ctx context.Context, url string, maxItems int) (*resolver.Resolution, error)
	Get(ctx context.Context, id domain.SessionID) (*domain.Session, error)
	List(ctx context.Context) ([]*domain.Session, error)
	Jobs(ctx context.Context, id domain.SessionID) ([]*domain.Job, error)
	Select(ctx context.Context, id domain.SessionID, itemIDs []string, selected bool) (*domain.Session, error)
	SelectAll(ctx context.Context, id domain.SessionID, selected bool) (*domain.Session, error)
	Clear(ctx context.Context, id domain.SessionID) error
	Cancel(id domain.SessionID) bool
	StartBatch(ctx context.Context, id domain.SessionID, selectedOnly bool) (*domain.Job, error)
	RetryFailed(ctx context.Context, id domain.SessionID) (*domain.Job, error)
	Diagnose(ctx context.Context, url string) (*service.Diagnosis, error)
}

// SessionHandler handles listing session HTTP requests.
type SessionHandler struct {
	sessions Sessions
	logger   *slog.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(sessions Sessions, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// SubmitRequest is the JSON request body for session submission and
// synchronous resolution.
type SubmitRequest struct {
	URL      string `json:"url"`
	MaxItems int    `json:"max_items,omitempty"`
}

// SubmitResponse is returned after a session is queued.
type SubmitResponse struct {
	SessionID string `json:"session_id"`
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

// SelectionRequest updates item selection. All takes precedence over ItemIDs.
type SelectionRequest struct {
	ItemIDs  []string `json:"item_ids,omitempty"`
	Selected bool     `json:"selected"`
	All      *bool    `json:"all,omitempty"`
}

// DownloadRequest starts a batch.
type DownloadRequest struct {
	SelectedOnly *bool `json:"selected_only,omitempty"`
}

// JobResponse is returned when a batch job is queued.
type JobResponse struct {
	SessionID string `json:"session_id"`
	JobID     string `json:"job_id"`
	Kind      string `json:"kind"`
	Status    string `json:"status"`
}

// SessionSummary is the list view of a session.
type SessionSummary struct {
	ID            string    `json:"id"`
	URL           string    `json:"url"`
	Platform      string    `json:"platform,omitempty"`
	Status        string    `json:"status"`
	Items         int       `json:"items"`
	Selected      int       `json:"selected"`
	BatchProgress float64   `json:"batch_progress"`
	BatchStatus   string    `json:"batch_status,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// DiagnoseRequest is the JSON request body for diagnostics.
type DiagnoseRequest struct {
	URL string `json:"url"`
}

// Create handles POST /api/v1/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	sess, job, err := h.sessions.Submit(r.Context(), req.URL, req.MaxItems)
	if err != nil {
		h.fail(w, "submit session", err)
		return
	}

	writeJSON(w, http.StatusAccepted, SubmitResponse{
		SessionID: sess.ID.String(),
		JobID:     job.ID.String(),
		Status:    string(sess.Status),
		Message:   "Listing queued for resolution",
	})
}

// List handles GET /api/v1/sessions
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.sessions.List(r.Context())
	if err != nil {
		h.fail(w, "list sessions", err)
		return
	}

	out := make([]SessionSummary, 0, len(list))
	for _, s := range list {
		out = append(out, SessionSummary{
			ID:            s.ID.String(),
			URL:           s.URL,
			Platform:      s.Candidate.PlatformName,
			Status:        string(s.Status),
			Items:         len(s.Items),
			Selected:      s.SelectedCount(),
			BatchProgress: s.BatchProgress,
			BatchStatus:   s.BatchStatus,
			CreatedAt:     s.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": out,
		"count":    len(out),
	})
}

// Get handles GET /api/v1/sessions/{sessionID}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Get(r.Context(), sessionID(r))
	if err != nil {
		h.fail(w, "get session", err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// Jobs handles GET /api/v1/sessions/{sessionID}/jobs
func (h *SessionHandler) Jobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.sessions.Jobs(r.Context(), sessionID(r))
	if err != nil {
		h.fail(w, "list jobs", err)
		return
	}
	if jobs == nil {
		jobs = []*domain.Job{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
}

// Delete handles DELETE /api/v1/sessions/{sessionID}
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Clear(r.Context(), sessionID(r)); err != nil {
		h.fail(w, "clear session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Selection handles PUT /api/v1/sessions/{sessionID}/selection
func (h *SessionHandler) Selection(w http.ResponseWriter, r *http.Request) {
	var req SelectionRequest
	if !h.decode(w, r, &req) {
		return
	}

	var (
		sess *domain.Session
		err  error
	)
	switch {
	case req.All != nil:
		sess, err = h.sessions.SelectAll(r.Context(), sessionID(r), *req.All)
	case len(req.ItemIDs) > 0:
		sess, err = h.sessions.Select(r.Context(), sessionID(r), req.ItemIDs, req.Selected)
	default:
		writeError(w, http.StatusBadRequest, "item_ids or all is required")
		return
	}
	if err != nil {
		h.fail(w, "update selection", err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// Download handles POST /api/v1/sessions/{sessionID}/download
func (h *SessionHandler) Download(w http.ResponseWriter, r *http.Request) {
	req := DownloadRequest{}
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	selectedOnly := true
	if req.SelectedOnly != nil {
		selectedOnly = *req.SelectedOnly
	}

	job, err := h.sessions.StartBatch(r.Context(), sessionID(r), selectedOnly)
	if err != nil {
		h.fail(w, "start batch", err)
		return
	}
	writeJSON(w, http.StatusAccepted, jobResponse(job))
}

// RetryFailed handles POST /api/v1/sessions/{sessionID}/retry-failed
func (h *SessionHandler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	job, err := h.sessions.RetryFailed(r.Context(), sessionID(r))
	if err != nil {
		h.fail(w, "retry failed items", err)
		return
	}
	writeJSON(w, http.StatusAccepted, jobResponse(job))
}

// Cancel handles POST /api/v1/sessions/{sessionID}/cancel
func (h *SessionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	if _, err := h.sessions.Get(r.Context(), id); err != nil {
		h.fail(w, "cancel batch", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": id,
		"canceled":   h.sessions.Cancel(id),
	})
}

// Resolve handles POST /api/v1/resolve
func (h *SessionHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	res, err := h.sessions.ResolveNow(r.Context(), req.URL, req.MaxItems)
	if err != nil {
		h.fail(w, "resolve listing", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Diagnose handles POST /api/v1/diagnose
func (h *SessionHandler) Diagnose(w http.ResponseWriter, r *http.Request) {
	var req DiagnoseRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	d, err := h.sessions.Diagnose(r.Context(), req.URL)
	if err != nil {
		h.fail(w, "diagnose", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *SessionHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// fail maps domain errors to HTTP status codes.
func (h *SessionHandler) fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", "error", err)
	} else {
		h.logger.Debug(op+" rejected", "error", err)
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidURL), errors.Is(err, domain.ErrItemNotFound):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSessionBusy),
		errors.Is(err, domain.ErrEmptySelection),
		errors.Is(err, domain.ErrNothingToRetry):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNoValidItems), errors.Is(err, domain.ErrPlatformUnreachable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func sessionID(r *http.Request) domain.SessionID {
	return domain.SessionID(chi.URLParam(r, "sessionID"))
}

func jobResponse(job *domain.Job) JobResponse {
	return JobResponse{
		SessionID: job.SessionID.String(),
		JobID:     job.ID.String(),
		Kind:      string(job.Kind),
		Status:    string(job.Status),
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
