// Package youtubeapi lists channel uploads through the YouTube Data API v3.
package youtubeapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/iconidentify/reelgrab/internal/domain"
)

const pageSize = 50

// ErrChannelNotFound is returned when a URL does not resolve to a channel id.
var ErrChannelNotFound = errors.New("channel not found")

// APIError is a non-success response from the API.
type APIError struct {
	StatusCode int
	Status     string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("youtube API %s: %s", e.Endpoint, e.Status)
}

// HTTPStatus exposes the status code to the error classifier.
func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

// Config configures the API client.
type Config struct {
	BaseURL string
	APIKey  string
	// SearchRatio is the share of the requested count the uploads playlist
	// must reach before the search endpoint is skipped.
	SearchRatio float64
	Timeout     time.Duration
}

// Client is a YouTube Data API lister.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	searchRatio float64
	logger      *slog.Logger
}

// NewClient creates an API client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = "https://www.googleapis.com/youtube/v3"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	ratio := cfg.SearchRatio
	if ratio < 0 || ratio > 1 {
		ratio = 0.5
	}
	return &Client{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		baseURL:     strings.TrimRight(base, "/"),
		apiKey:      cfg.APIKey,
		searchRatio: ratio,
		logger:      logger,
	}
}

// Available reports whether an API key is configured.
func (c *Client) Available() bool {
	return c != nil && c.apiKey != ""
}

// List returns up to limit uploads of the channel behind channelURL. The
// uploads playlist is tried first; when it yields fewer than SearchRatio of
// limit, the search endpoint is tried and the longer list wins.
func (c *Client) List(ctx context.Context, channelURL string, limit int) ([]domain.ListingEntry, error) {
	if !c.Available() {
		return nil, errors.New("youtube API key is not configured")
	}
	if limit <= 0 {
		limit = 200
	}

	channelID, err := c.ChannelID(ctx, channelURL)
	if err != nil {
		return nil, err
	}

	videos, upErr := c.uploads(ctx, channelID, limit)
	if upErr != nil {
		c.logger.Warn("uploads playlist failed", "channel_id", channelID, "error", upErr)
	}

	if float64(len(videos)) < float64(limit)*c.searchRatio {
		c.logger.Info("uploads playlist short, trying search",
			"channel_id", channelID,
			"found", len(videos),
			"wanted", limit,
		)
		found, err := c.search(ctx, channelID, limit)
		if err != nil {
			c.logger.Warn("search failed", "channel_id", channelID, "error", err)
			if len(videos) == 0 && upErr != nil {
				return nil, upErr
			}
		}
		if len(found) > len(videos) {
			videos = found
		}
	}

	return videos, nil
}

// ChannelID extracts or looks up the channel id for /channel/ID, /c/NAME
// and /@handle URLs.
func (c *Client) ChannelID(ctx context.Context, channelURL string) (string, error) {
	switch {
	case strings.Contains(channelURL, "/channel/"):
		return segmentAfter(channelURL, "/channel/"), nil
	case strings.Contains(channelURL, "/c/"):
		name := segmentAfter(channelURL, "/c/")
		return c.lookupChannel(ctx, url.Values{"forUsername": {name}}, name)
	case strings.Contains(channelURL, "/@"):
		handle := segmentAfter(channelURL, "/@")
		id, err := c.lookupChannel(ctx, url.Values{"forHandle": {"@" + handle}}, handle)
		if err == nil {
			return id, nil
		}
		return c.searchChannel(ctx, handle)
	}
	return "", fmt.Errorf("unsupported channel URL %q: %w", channelURL, ErrChannelNotFound)
}

func segmentAfter(s, marker string) string {
	rest := s[strings.Index(s, marker)+len(marker):]
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

type channelsResponse struct {
	Items []struct {
		ID             string `json:"id"`
		ContentDetails struct {
			RelatedPlaylists struct {
				Uploads string `json:"uploads"`
			} `json:"relatedPlaylists"`
		} `json:"contentDetails"`
	} `json:"items"`
}

func (c *Client) lookupChannel(ctx context.Context, params url.Values, name string) (string, error) {
	params.Set("part", "id")
	var resp channelsResponse
	if err := c.get(ctx, "channels", params, &resp); err != nil {
		return "", err
	}
	if len(resp.Items) == 0 {
		return "", fmt.Errorf("lookup %q: %w", name, ErrChannelNotFound)
	}
	return resp.Items[0].ID, nil
}

type searchResponse struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		ID struct {
			VideoID   string `json:"videoId"`
			ChannelID string `json:"channelId"`
		} `json:"id"`
		Snippet struct {
			Title string `json:"title"`
		} `json:"snippet"`
	} `json:"items"`
}

func (c *Client) searchChannel(ctx context.Context, handle string) (string, error) {
	var resp searchResponse
	err := c.get(ctx, "search", url.Values{
		"part":       {"snippet"},
		"q":          {handle},
		"type":       {"channel"},
		"maxResults": {"1"},
	}, &resp)
	if err != nil {
		return "", err
	}
	if len(resp.Items) == 0 || resp.Items[0].ID.ChannelID == "" {
		return "", fmt.Errorf("search %q: %w", handle, ErrChannelNotFound)
	}
	return resp.Items[0].ID.ChannelID, nil
}

type playlistItemsResponse struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		ContentDetails struct {
			VideoID string `json:"videoId"`
		} `json:"contentDetails"`
	} `json:"items"`
}

func (c *Client) uploads(ctx context.Context, channelID string, limit int) ([]domain.ListingEntry, error) {
	var ch channelsResponse
	err := c.get(ctx, "channels", url.Values{
		"part": {"contentDetails"},
		"id":   {channelID},
	}, &ch)
	if err != nil {
		return nil, err
	}
	if len(ch.Items) == 0 || ch.Items[0].ContentDetails.RelatedPlaylists.Uploads == "" {
		return nil, fmt.Errorf("uploads for %s: %w", channelID, ErrChannelNotFound)
	}
	playlistID := ch.Items[0].ContentDetails.RelatedPlaylists.Uploads

	var out []domain.ListingEntry
	token := ""
	for len(out) < limit {
		params := url.Values{
			"part":       {"contentDetails"},
			"playlistId": {playlistID},
			"maxResults": {strconv.Itoa(min(pageSize, limit-len(out)))},
		}
		if token != "" {
			params.Set("pageToken", token)
		}

		var page playlistItemsResponse
		if err := c.get(ctx, "playlistItems", params, &page); err != nil {
			return out, err
		}
		if len(page.Items) == 0 {
			break
		}

		ids := make([]string, 0, len(page.Items))
		for _, it := range page.Items {
			ids = append(ids, it.ContentDetails.VideoID)
		}
		videos, err := c.videos(ctx, ids)
		if err != nil {
			return out, err
		}
		for _, v := range videos {
			if len(out) >= limit {
				break
			}
			out = append(out, v)
		}

		token = page.NextPageToken
		if token == "" {
			break
		}
	}
	return out, nil
}

func (c *Client) search(ctx context.Context, channelID string, limit int) ([]domain.ListingEntry, error) {
	var out []domain.ListingEntry
	token := ""
	maxPages := (limit + pageSize - 1) / pageSize

	for pages := 0; len(out) < limit && pages < maxPages; pages++ {
		params := url.Values{
			"part":       {"snippet"},
			"channelId":  {channelID},
			"type":       {"video"},
			"order":      {"date"},
			"maxResults": {strconv.Itoa(min(pageSize, limit-len(out)))},
		}
		if token != "" {
			params.Set("pageToken", token)
		}

		var page searchResponse
		if err := c.get(ctx, "search", params, &page); err != nil {
			return out, err
		}
		if len(page.Items) == 0 {
			break
		}

		ids := make([]string, 0, len(page.Items))
		for _, it := range page.Items {
			if it.ID.VideoID != "" {
				ids = append(ids, it.ID.VideoID)
			}
		}
		videos, err := c.videos(ctx, ids)
		if err != nil {
			return out, err
		}
		for _, v := range videos {
			if len(out) >= limit {
				break
			}
			out = append(out, v)
		}

		token = page.NextPageToken
		if token == "" {
			break
		}
	}
	return out, nil
}

type videosResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title string `json:"title"`
		} `json:"snippet"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
	} `json:"items"`
}

// videos fetches details for up to one page of ids, preserving the API's
// order.
func (c *Client) videos(ctx context.Context, ids []string) ([]domain.ListingEntry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var resp videosResponse
	err := c.get(ctx, "videos", url.Values{
		"part": {"snippet,contentDetails"},
		"id":   {strings.Join(ids, ",")},
	}, &resp)
	if err != nil {
		return nil, err
	}

	out := make([]domain.ListingEntry, 0, len(resp.Items))
	for _, v := range resp.Items {
		out = append(out, domain.ListingEntry{
			ID:              v.ID,
			URL:             "https://www.youtube.com/watch?v=" + v.ID,
			Title:           v.Snippet.Title,
			DurationSeconds: float64(ParseDuration(v.ContentDetails.Duration)),
			ExtractorHint:   "Youtube",
		})
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	params.Set("key", c.apiKey)
	u := c.baseURL + "/" + endpoint + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Status: resp.Status, Endpoint: endpoint}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}

var isoDuration = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// ParseDuration converts an ISO 8601 duration such as PT1H2M3S to seconds.
// Malformed input yields 0.
func ParseDuration(s string) int {
	m := isoDuration.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0
	}
	total := 0
	for i, mult := range []int{86400, 3600, 60, 1} {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0
		}
		total += n * mult
	}
	return total
}
