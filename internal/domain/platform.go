package domain

// PlatformTag classifies the hosting platform of a URL.
type PlatformTag string

const (
	PlatformShortVideo    PlatformTag = "short_video"
	PlatformLongVideo     PlatformTag = "long_video"
	PlatformSocialPhoto   PlatformTag = "social_photo"
	PlatformSocialGeneric PlatformTag = "social_generic"
	PlatformUnknown       PlatformTag = "unknown"
)

// String returns the string representation of the PlatformTag.
func (p PlatformTag) String() string {
	return string(p)
}

// CandidateURL is one normalized form of a user supplied URL.
// Rank 0 is the primary candidate; higher ranks are tried later.
type CandidateURL struct {
	RawInput     string      `json:"raw_input"`
	CanonicalURL string      `json:"canonical_url"`
	Platform     PlatformTag `json:"platform"`
	PlatformName string      `json:"platform_name,omitempty"`
	Rank         int         `json:"rank"`
}

// IsPrimary reports whether this is the rank 0 candidate.
func (c CandidateURL) IsPrimary() bool {
	return c.Rank == 0
}

// ListingEntry is a raw entry returned by a listing extractor, before filtering.
type ListingEntry struct {
	ID              string  `json:"id"`
	URL             string  `json:"url"`
	Title           string  `json:"title"`
	DurationSeconds float64 `json:"duration"`
	ExtractorHint   string  `json:"ie_key"`
}
