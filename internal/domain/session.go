package domain

import (
	"fmt"
	"time"
)

// SessionID is a unique identifier for a listing session.
type SessionID string

// String returns the string representation of the SessionID.
func (id SessionID) String() string {
	return string(id)
}

// SessionStatus represents the lifecycle of a listing session.
type SessionStatus string

const (
	SessionStatusResolving   SessionStatus = "resolving"
	SessionStatusReady       SessionStatus = "ready"
	SessionStatusEmpty       SessionStatus = "empty"
	SessionStatusDownloading SessionStatus = "downloading"
	SessionStatusDone        SessionStatus = "done"
	SessionStatusFailed      SessionStatus = "failed"
)

// Session holds a resolved listing and the retrieval state of its items.
type Session struct {
	ID            SessionID         `json:"id"`
	URL           string            `json:"url"`
	MaxItems      int               `json:"max_items"`
	Candidate     CandidateURL      `json:"candidate"`
	Status        SessionStatus     `json:"status"`
	Items         []VideoDescriptor `json:"items"`
	BatchProgress float64           `json:"batch_progress"`
	BatchStatus   string            `json:"batch_status,omitempty"`
	Error         string            `json:"error,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// NewSession creates a session in the resolving state.
func NewSession(id SessionID, url string, maxItems int) *Session {
	now := time.Now()
	return &Session{
		ID:        id,
		URL:       url,
		MaxItems:  maxItems,
		Status:    SessionStatusResolving,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy safe to hand to callers.
func (s *Session) Clone() *Session {
	c := *s
	c.Items = append([]VideoDescriptor(nil), s.Items...)
	return &c
}

// SelectedCount returns the number of selected items.
func (s *Session) SelectedCount() int {
	n := 0
	for _, it := range s.Items {
		if it.Selected {
			n++
		}
	}
	return n
}

// ItemIndex returns the index of the item with the given ID, or -1.
func (s *Session) ItemIndex(itemID string) int {
	for i, it := range s.Items {
		if it.ID == itemID {
			return i
		}
	}
	return -1
}

// ProgressEvent is a value snapshot of retrieval progress for one item.
type ProgressEvent struct {
	SessionID    SessionID  `json:"session_id,omitempty"`
	ItemIndex    int        `json:"item_index"`
	ItemID       string     `json:"item_id"`
	ItemPercent  float64    `json:"item_percent"`
	ItemStatus   ItemStatus `json:"item_status,omitempty"`
	BatchPercent float64    `json:"batch_percent"`
}

// BatchResult aggregates the outcome of a batch run.
type BatchResult struct {
	Succeeded int               `json:"succeeded"`
	Total     int               `json:"total"`
	Status    string            `json:"status"`
	Items     []VideoDescriptor `json:"items"`
	Canceled  bool              `json:"canceled,omitempty"`
}

// BatchStatusLine formats the display string for a batch result.
func BatchStatusLine(succeeded, total int) string {
	return fmt.Sprintf("%d of %d succeeded", succeeded, total)
}
