package downloader

import (
	"context"
	"fmt"
	"strings"
)

// UnknownDuration marks media whose duration could not be determined.
const UnknownDuration = -1

// Fetcher retrieves media for a single URL with a given request
// configuration.
type Fetcher interface {
	// Inspect reads media metadata without downloading the payload.
	Inspect(ctx context.Context, url string, cfg RequestConfig) (*MediaInfo, error)

	// Fetch downloads url into req.Dir and returns the local file path.
	// onSignal receives raw transfer signals and must not block.
	Fetch(ctx context.Context, req FetchRequest, onSignal func(ProgressSignal)) (string, error)
}

// FetchRequest describes one download attempt.
type FetchRequest struct {
	URL    string
	Dir    string
	Name   string
	Config RequestConfig
}

// MediaInfo is the pre-flight view of a media URL.
type MediaInfo struct {
	Title           string
	Ext             string
	VCodec          string
	ContentType     string
	DurationSeconds float64
	Size            int64
}

var imageExts = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "webp": true, "gif": true,
}

// IsVideo reports whether m describes playable video. An unknown duration
// passes; a known zero duration does not.
func (m *MediaInfo) IsVideo() bool {
	if imageExts[strings.ToLower(strings.TrimPrefix(m.Ext, "."))] {
		return false
	}
	if strings.HasPrefix(strings.ToLower(m.ContentType), "image/") {
		return false
	}
	if strings.EqualFold(m.VCodec, "none") {
		return false
	}
	return m.DurationSeconds != 0
}

// HTTPStatusError is returned when a server answers with a non-success
// status.
type HTTPStatusError struct {
	StatusCode int
	URL        string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d from %s", e.StatusCode, e.URL)
}

// HTTPStatus implements classifier.StatusCoder.
func (e *HTTPStatusError) HTTPStatus() int {
	return e.StatusCode
}
