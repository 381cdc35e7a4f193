package listing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/iconidentify/reelgrab/internal/domain"
	"github.com/iconidentify/reelgrab/internal/downloader"
)

// YTDLPLister lists entries with yt-dlp's flat playlist mode.
type YTDLPLister struct {
	binary  string
	request downloader.RequestConfig
	timeout time.Duration
	logger  *slog.Logger
}

// NewYTDLPLister creates a lister. request supplies the client identity,
// proxy and cookies used for every listing call.
func NewYTDLPLister(binary string, request downloader.RequestConfig, timeout time.Duration, logger *slog.Logger) *YTDLPLister {
	return &YTDLPLister{
		binary:  binary,
		request: request,
		timeout: timeout,
		logger:  logger,
	}
}

type flatCollection struct {
	Type       string      `json:"_type"`
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	WebpageURL string      `json:"webpage_url"`
	Duration   float64     `json:"duration"`
	IEKey      string      `json:"ie_key"`
	Extractor  string      `json:"extractor_key"`
	Entries    []flatEntry `json:"entries"`
}

type flatEntry struct {
	ID         string   `json:"id"`
	URL        string   `json:"url"`
	WebpageURL string   `json:"webpage_url"`
	Title      string   `json:"title"`
	Duration   *float64 `json:"duration"`
	IEKey      string   `json:"ie_key"`
}

// List runs yt-dlp --flat-playlist -J capped at limit entries.
func (l *YTDLPLister) List(ctx context.Context, url string, limit int) ([]domain.ListingEntry, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	args := downloader.TransportArgs(l.request)
	args = append(args, "--flat-playlist", "-J")
	if limit > 0 {
		args = append(args, "--playlist-end", strconv.Itoa(limit))
	}
	args = append(args, url)

	start := time.Now()
	res, err := downloader.NewCommand(l.binary, l.request).Run(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", url, downloader.RunError(err, res))
	}

	entries, err := ParseFlatPlaylist([]byte(res.Stdout))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", url, err)
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	l.logger.Debug("listing fetched",
		"url", url,
		"entries", len(entries),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return entries, nil
}

// ParseFlatPlaylist decodes yt-dlp -J output. A single-video document
// yields one entry.
func ParseFlatPlaylist(data []byte) ([]domain.ListingEntry, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errors.New("yt-dlp returned empty output")
	}

	var c flatCollection
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}

	if c.Type != "playlist" && len(c.Entries) == 0 {
		if c.ID == "" && c.WebpageURL == "" {
			return nil, nil
		}
		hint := c.Extractor
		if hint == "" {
			hint = c.IEKey
		}
		return []domain.ListingEntry{{
			ID:              c.ID,
			URL:             c.WebpageURL,
			Title:           c.Title,
			DurationSeconds: c.Duration,
			ExtractorHint:   hint,
		}}, nil
	}

	out := make([]domain.ListingEntry, 0, len(c.Entries))
	for _, e := range c.Entries {
		var dur float64
		if e.Duration != nil {
			dur = *e.Duration
		}
		out = append(out, domain.ListingEntry{
			ID:              strings.TrimSpace(e.ID),
			URL:             entryURL(e),
			Title:           strings.TrimSpace(e.Title),
			DurationSeconds: dur,
			ExtractorHint:   e.IEKey,
		})
	}
	return out, nil
}

// entryURL prefers a full URL; bare YouTube ids are expanded to watch URLs.
func entryURL(e flatEntry) string {
	u := strings.TrimSpace(e.URL)
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	if w := strings.TrimSpace(e.WebpageURL); w != "" {
		return w
	}
	if strings.EqualFold(e.IEKey, "youtube") && e.ID != "" {
		return "https://www.youtube.com/watch?v=" + e.ID
	}
	return u
}
