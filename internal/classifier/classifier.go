// Package classifier maps raw failure signals to an error kind and a
// configuration mutation for the next retrieval attempt.
package classifier

import (
	"errors"
	"net/http"
	"os"
	"regexp"
	"strings"
	"syscall"

	"github.com/iconidentify/reelgrab/internal/domain"
)

// StatusCoder is implemented by errors that carry an HTTP status code.
type StatusCoder interface {
	HTTPStatus() int
}

var (
	socketSignals = []string{
		"winerror 10013",
		"forbidden by its access permissions",
		"permission denied",
		"operation not permitted",
		"eacces",
	}

	reForbidden   = regexp.MustCompile(`\b403\b|forbidden`)
	reRateLimited = regexp.MustCompile(`\b429\b|too many requests`)
	reNotFound    = regexp.MustCompile(`\b404\b|not found`)
)

var (
	socketPermission = domain.ErrorClassification{Kind: domain.KindSocketPermission, Retryable: true, Mutation: domain.MutationUseFallbackConfig}
	httpForbidden    = domain.ErrorClassification{Kind: domain.KindHTTPForbidden, Retryable: true, Mutation: domain.MutationUseAlternateHeaders}
	httpRateLimited  = domain.ErrorClassification{Kind: domain.KindHTTPRateLimited, Retryable: true, Mutation: domain.MutationUseFallbackConfig}
	httpNotFound     = domain.ErrorClassification{Kind: domain.KindHTTPNotFound, Retryable: true, Mutation: domain.MutationNone}
	unknown          = domain.ErrorClassification{Kind: domain.KindUnknown, Retryable: true, Mutation: domain.MutationNone}
)

// Classify inspects err and returns its classification. Typed status codes
// and domain sentinels win over message text.
func Classify(err error) domain.ErrorClassification {
	if err == nil {
		return unknown
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		if c, ok := fromStatus(sc.HTTPStatus()); ok {
			return c
		}
	}

	switch {
	case errors.Is(err, domain.ErrSocketPermission),
		errors.Is(err, syscall.EACCES),
		errors.Is(err, syscall.EPERM),
		errors.Is(err, os.ErrPermission):
		return socketPermission
	case errors.Is(err, domain.ErrHTTPForbidden):
		return httpForbidden
	case errors.Is(err, domain.ErrHTTPRateLimited):
		return httpRateLimited
	case errors.Is(err, domain.ErrHTTPNotFound):
		return httpNotFound
	}

	return ClassifySignal(err.Error(), 0)
}

// ClassifySignal classifies a raw error message and optional status code
// (0 when unknown). Rules apply in priority order: socket permission, 403,
// 429, 404, then everything else. No classification is fatal.
func ClassifySignal(msg string, status int) domain.ErrorClassification {
	m := strings.ToLower(msg)

	for _, s := range socketSignals {
		if strings.Contains(m, s) {
			return socketPermission
		}
	}

	if c, ok := fromStatus(status); ok {
		return c
	}

	switch {
	case reForbidden.MatchString(m):
		return httpForbidden
	case reRateLimited.MatchString(m):
		return httpRateLimited
	case reNotFound.MatchString(m):
		return httpNotFound
	}
	return unknown
}

func fromStatus(status int) (domain.ErrorClassification, bool) {
	switch status {
	case http.StatusForbidden:
		return httpForbidden, true
	case http.StatusTooManyRequests:
		return httpRateLimited, true
	case http.StatusNotFound:
		return httpNotFound, true
	}
	return domain.ErrorClassification{}, false
}

// IsNotFound reports whether err indicates the target does not exist.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if Classify(err).Kind == domain.KindHTTPNotFound {
		return true
	}
	m := strings.ToLower(err.Error())
	return strings.Contains(m, "does not exist") || strings.Contains(m, "unable to find")
}
