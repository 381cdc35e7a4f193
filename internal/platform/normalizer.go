package platform

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/iconidentify/reelgrab/internal/domain"
)

var errMissingHost = errors.New("missing host")

// Normalize turns raw user input into the primary candidate URL.
// Unknown domains are passed through unchanged with PlatformUnknown.
func Normalize(raw string) (domain.CandidateURL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return domain.CandidateURL{}, fmt.Errorf("normalize url: %w", domain.ErrInvalidURL)
	}

	u, err := parse(trimmed)
	if err != nil {
		return domain.CandidateURL{}, fmt.Errorf("normalize url %q: %w: %v", trimmed, domain.ErrInvalidURL, err)
	}

	rule, ok := Lookup(u.Hostname())
	if !ok {
		return domain.CandidateURL{
			RawInput:     raw,
			CanonicalURL: trimmed,
			Platform:     domain.PlatformUnknown,
		}, nil
	}

	u.Scheme = "https"
	u.Host = strings.ToLower(u.Hostname())
	u.Fragment = ""
	u.User = nil

	canonical := rule.canonicalize(u)
	return domain.CandidateURL{
		RawInput:     raw,
		CanonicalURL: canonical.String(),
		Platform:     rule.Tag,
		PlatformName: rule.Name,
		Rank:         0,
	}, nil
}

// Fallbacks returns the ordered alternative candidates for a primary
// candidate. Ranks start at 1; the primary URL and duplicates are dropped.
// The result is deterministic for a given primary.
func Fallbacks(primary domain.CandidateURL) []domain.CandidateURL {
	if primary.Platform == domain.PlatformUnknown {
		return nil
	}
	u, err := url.Parse(primary.CanonicalURL)
	if err != nil {
		return nil
	}
	rule, ok := Lookup(u.Hostname())
	if !ok || rule.fallbacks == nil {
		return nil
	}

	seen := map[string]bool{primary.CanonicalURL: true}
	var out []domain.CandidateURL
	for _, alt := range rule.fallbacks(u) {
		if seen[alt] {
			continue
		}
		seen[alt] = true
		out = append(out, domain.CandidateURL{
			RawInput:     primary.RawInput,
			CanonicalURL: alt,
			Platform:     rule.Tag,
			PlatformName: rule.Name,
			Rank:         len(out) + 1,
		})
	}
	return out
}

// Candidates returns the primary candidate followed by its fallbacks.
func Candidates(raw string) ([]domain.CandidateURL, error) {
	primary, err := Normalize(raw)
	if err != nil {
		return nil, err
	}
	return append([]domain.CandidateURL{primary}, Fallbacks(primary)...), nil
}

// IsSupported reports whether raw points at a platform in the table.
func IsSupported(raw string) bool {
	u, err := parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	_, ok := Lookup(u.Hostname())
	return ok
}

// Detect returns the platform tag for raw, or PlatformUnknown.
func Detect(raw string) domain.PlatformTag {
	u, err := parse(strings.TrimSpace(raw))
	if err != nil {
		return domain.PlatformUnknown
	}
	if rule, ok := Lookup(u.Hostname()); ok {
		return rule.Tag
	}
	return domain.PlatformUnknown
}

func parse(s string) (*url.URL, error) {
	if s == "" {
		return nil, errMissingHost
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, errMissingHost
	}
	return u, nil
}
