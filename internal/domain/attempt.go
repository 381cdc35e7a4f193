package domain

import "time"

// MaxAttempts is the retrieval attempt budget per item.
const MaxAttempts = 3

// ConfigVariant names one of the fixed request configurations.
type ConfigVariant string

const (
	VariantStandard         ConfigVariant = "standard"
	VariantSocketFallback   ConfigVariant = "socket_fallback"
	VariantAlternateHeaders ConfigVariant = "alternate_headers"
)

// AttemptOutcome is how a single retrieval attempt ended.
type AttemptOutcome string

const (
	OutcomeSuccess   AttemptOutcome = "success"
	OutcomeRetriable AttemptOutcome = "retriable"
	OutcomeFatal     AttemptOutcome = "fatal"
)

// RetrievalAttempt records one download try.
type RetrievalAttempt struct {
	Number         int                  `json:"number"`
	Variant        ConfigVariant        `json:"variant"`
	Outcome        AttemptOutcome       `json:"outcome"`
	Classification *ErrorClassification `json:"classification,omitempty"`
	Error          string               `json:"error,omitempty"`
	StartedAt      time.Time            `json:"started_at"`
	Duration       time.Duration        `json:"duration"`
}

// ErrorKind is the classified cause of a failure.
type ErrorKind string

const (
	KindSocketPermission ErrorKind = "socket_permission"
	KindHTTPForbidden    ErrorKind = "http_forbidden"
	KindHTTPRateLimited  ErrorKind = "http_rate_limited"
	KindHTTPNotFound     ErrorKind = "http_not_found"
	KindUnknown          ErrorKind = "unknown"
)

// Mutation tells the retrieval loop how to change its configuration.
type Mutation string

const (
	MutationNone                Mutation = "none"
	MutationUseFallbackConfig   Mutation = "use_fallback_config"
	MutationUseAlternateHeaders Mutation = "use_alternate_headers"
)

// ErrorClassification is the stateless verdict on a failure signal.
type ErrorClassification struct {
	Kind      ErrorKind `json:"kind"`
	Retryable bool      `json:"retryable"`
	Mutation  Mutation  `json:"mutation"`
}

// Sentinel returns the domain error matching the classification kind.
func (c ErrorClassification) Sentinel() error {
	switch c.Kind {
	case KindSocketPermission:
		return ErrSocketPermission
	case KindHTTPForbidden:
		return ErrHTTPForbidden
	case KindHTTPRateLimited:
		return ErrHTTPRateLimited
	case KindHTTPNotFound:
		return ErrHTTPNotFound
	default:
		return ErrUnknownTransport
	}
}
