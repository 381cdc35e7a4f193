package domain

import (
	"time"
)

// ItemStatus represents the retrieval state of a video item.
type ItemStatus string

const (
	ItemStatusPending     ItemStatus = "pending"
	ItemStatusDownloading ItemStatus = "downloading"
	ItemStatusCompleted   ItemStatus = "completed"
	ItemStatusFailed      ItemStatus = "failed"
	ItemStatusNonVideo    ItemStatus = "non_video"
	ItemStatusCanceled    ItemStatus = "canceled"
)

// IsTerminal reports whether the status ends an item's retrieval.
func (s ItemStatus) IsTerminal() bool {
	switch s {
	case ItemStatusCompleted, ItemStatusFailed, ItemStatusNonVideo, ItemStatusCanceled:
		return true
	}
	return false
}

// VideoDescriptor is a resolved, downloadable video item.
type VideoDescriptor struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	URL             string     `json:"url"`
	DurationSeconds float64    `json:"duration_seconds"`
	Selected        bool       `json:"selected"`
	Progress        float64    `json:"progress"`
	Status          ItemStatus `json:"status"`
	FilePath        string     `json:"file_path,omitempty"`
	Error           string     `json:"error,omitempty"`
}

// NewVideoDescriptor builds a selected, pending descriptor from a listing entry.
func NewVideoDescriptor(e ListingEntry) VideoDescriptor {
	id := e.ID
	if id == "" {
		id = e.URL
	}
	title := e.Title
	if title == "" {
		title = "Unknown"
	}
	return VideoDescriptor{
		ID:              id,
		Title:           title,
		URL:             e.URL,
		DurationSeconds: e.DurationSeconds,
		Selected:        true,
		Status:          ItemStatusPending,
	}
}

// NeedsRetry reports whether the item did not reach full progress.
func (v VideoDescriptor) NeedsRetry() bool {
	return v.Progress < 100
}

// IncompleteProgressCeiling is the highest progress an item that did not
// complete may report.
const IncompleteProgressCeiling = 99.0

// TerminalProgress is the progress recorded once a retrieval ends. A fetcher
// may report 100 before post-processing or commit fails, so an unsuccessful
// outcome never keeps full progress.
func TerminalProgress(pct float64, success bool) float64 {
	if !success && pct > IncompleteProgressCeiling {
		return IncompleteProgressCeiling
	}
	return pct
}

// SetProgress moves progress forward; it never decreases it.
func (v *VideoDescriptor) SetProgress(pct float64) {
	if pct > 100 {
		pct = 100
	}
	if pct > v.Progress {
		v.Progress = pct
	}
}

// ResetProgress clears progress at the start of a new attempt.
func (v *VideoDescriptor) ResetProgress() {
	v.Progress = 0
}

// RetrievalResult is the outcome of retrieving a single item.
type RetrievalResult struct {
	ItemID   string             `json:"item_id"`
	Path     string             `json:"path,omitempty"`
	Success  bool               `json:"success"`
	Status   ItemStatus         `json:"status"`
	Progress float64            `json:"progress"`
	Attempts []RetrievalAttempt `json:"attempts"`
	Err      error              `json:"-"`
	Elapsed  time.Duration      `json:"elapsed"`
}

// LastAttempt returns the final attempt, or nil when none ran.
func (r *RetrievalResult) LastAttempt() *RetrievalAttempt {
	if len(r.Attempts) == 0 {
		return nil
	}
	return &r.Attempts[len(r.Attempts)-1]
}
