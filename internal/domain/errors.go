package domain

import "errors"

// Domain errors.
var (
	// ErrInvalidURL is returned when the input URL is empty or cannot be parsed.
	ErrInvalidURL = errors.New("invalid URL")

	// ErrPlatformUnreachable is returned when a listing probe reports the target as missing.
	ErrPlatformUnreachable = errors.New("platform unreachable")

	// ErrNoValidItems is reported when every candidate URL produced zero valid entries.
	ErrNoValidItems = errors.New("no valid items found")

	// ErrNonVideoContent is returned when pre-flight inspection finds an image or an empty stream.
	ErrNonVideoContent = errors.New("non-video content")

	// ErrRetryBudgetExhausted is the terminal failure after the last retrieval attempt.
	ErrRetryBudgetExhausted = errors.New("retry budget exhausted")

	// ErrSocketPermission is returned when the OS refuses the socket.
	ErrSocketPermission = errors.New("socket permission denied")

	// ErrHTTPForbidden is returned on HTTP 403.
	ErrHTTPForbidden = errors.New("forbidden")

	// ErrHTTPRateLimited is returned on HTTP 429.
	ErrHTTPRateLimited = errors.New("rate limited")

	// ErrHTTPNotFound is returned on HTTP 404.
	ErrHTTPNotFound = errors.New("not found")

	// ErrUnknownTransport covers every other transport failure.
	ErrUnknownTransport = errors.New("transport failure")

	// ErrSessionNotFound is returned when a listing session cannot be found.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionBusy is returned when a batch is already running for a session.
	ErrSessionBusy = errors.New("session has a batch in progress")

	// ErrEmptySelection is returned when a batch is requested with nothing selected.
	ErrEmptySelection = errors.New("no items selected")

	// ErrItemNotFound is returned when a selection names an item the session does not hold.
	ErrItemNotFound = errors.New("item not found")

	// ErrNothingToRetry is returned when a retry is requested but every selected item completed.
	ErrNothingToRetry = errors.New("no failed items to retry")

	// ErrJobNotFound is returned when a job cannot be found.
	ErrJobNotFound = errors.New("job not found")

	// ErrNoJobs is returned when there are no jobs to process.
	ErrNoJobs = errors.New("no jobs available")

	// ErrStorageFull is returned when there is insufficient storage space.
	ErrStorageFull = errors.New("insufficient storage space")

	// ErrUnsupportedTarget is returned for an output target scheme we cannot write to.
	ErrUnsupportedTarget = errors.New("unsupported output target")
)

// ItemError wraps an error with video item context.
type ItemError struct {
	ItemID string
	Op     string
	Err    error
}

func (e *ItemError) Error() string {
	if e.ItemID != "" {
		return e.Op + " [" + e.ItemID + "]: " + e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// NewItemError creates a new ItemError.
func NewItemError(itemID, op string, err error) *ItemError {
	return &ItemError{
		ItemID: itemID,
		Op:     op,
		Err:    err,
	}
}
