package youtubeapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/iconidentify/reelgrab/internal/classifier"
	"github.com/iconidentify/reelgrab/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeAPI serves a channel with a fixed uploads playlist and a separate
// search index.
type fakeAPI struct {
	mu       sync.Mutex
	uploads  []string
	search   []string
	calls    map[string]int
	status   int
	// pageSize caps page length below the requested maxResults when set.
	pageSize int
}

func newFakeAPI(uploads, search []string) *fakeAPI {
	return &fakeAPI{uploads: uploads, search: search, calls: make(map[string]int)}
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		endpoint := strings.TrimPrefix(r.URL.Path, "/")
		f.calls[endpoint]++
		q := r.URL.Query()
		if q.Get("key") != "test-key" {
			t.Errorf("%s: key = %q", endpoint, q.Get("key"))
		}
		if f.status != 0 {
			w.WriteHeader(f.status)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		switch endpoint {
		case "channels":
			switch {
			case q.Get("forHandle") == "@known":
				writeJSON(w, map[string]any{"items": []any{map[string]any{"id": "UC_known"}}})
			case q.Get("forHandle") != "":
				writeJSON(w, map[string]any{"items": []any{}})
			case q.Get("forUsername") == "legacy":
				writeJSON(w, map[string]any{"items": []any{map[string]any{"id": "UC_legacy"}}})
			default:
				writeJSON(w, map[string]any{"items": []any{map[string]any{
					"id": q.Get("id"),
					"contentDetails": map[string]any{
						"relatedPlaylists": map[string]any{"uploads": "UU_" + q.Get("id")},
					},
				}}})
			}
		case "playlistItems":
			ids, next := f.page(f.uploads, q)
			items := make([]any, 0, len(ids))
			for _, id := range ids {
				items = append(items, map[string]any{"contentDetails": map[string]any{"videoId": id}})
			}
			writeJSON(w, map[string]any{"items": items, "nextPageToken": next})
		case "search":
			if q.Get("type") == "channel" {
				writeJSON(w, map[string]any{"items": []any{map[string]any{"id": map[string]any{"channelId": "UC_searched"}}}})
				return
			}
			ids, next := f.page(f.search, q)
			items := make([]any, 0, len(ids))
			for _, id := range ids {
				items = append(items, map[string]any{"id": map[string]any{"videoId": id}})
			}
			writeJSON(w, map[string]any{"items": items, "nextPageToken": next})
		case "videos":
			var items []any
			for _, id := range strings.Split(q.Get("id"), ",") {
				items = append(items, map[string]any{
					"id":             id,
					"snippet":        map[string]any{"title": "title " + id},
					"contentDetails": map[string]any{"duration": "PT1M5S"},
				})
			}
			writeJSON(w, map[string]any{"items": items})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func (f *fakeAPI) page(all []string, q url.Values) ([]string, string) {
	start := 0
	if token := q.Get("pageToken"); token != "" {
		fmt.Sscanf(token, "p%d", &start)
	}
	size, _ := strconv.Atoi(q.Get("maxResults"))
	if f.pageSize > 0 && f.pageSize < size {
		size = f.pageSize
	}
	end := min(start+size, len(all))
	if start >= end {
		return nil, ""
	}
	next := ""
	if end < len(all) {
		next = fmt.Sprintf("p%d", end)
	}
	return all[start:end], next
}

func writeJSON(w http.ResponseWriter, v any) {
	json.NewEncoder(w).Encode(v)
}

func ids(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return out
}

func newTestClient(srv *httptest.Server, ratio float64) *Client {
	return NewClient(Config{BaseURL: srv.URL, APIKey: "test-key", SearchRatio: ratio}, testLogger())
}

func TestClient_List_UploadsPlaylist(t *testing.T) {
	api := newFakeAPI(ids("u", 5), ids("s", 5))
	api.pageSize = 2
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()

	c := newTestClient(srv, 0.5)
	got, err := c.List(context.Background(), "https://www.youtube.com/channel/UC1/videos", 4)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("len = %d, want 4", len(got))
	}
	for i, e := range got {
		want := fmt.Sprintf("u%d", i)
		if e.ID != want {
			t.Errorf("got[%d].ID = %q, want %q", i, e.ID, want)
		}
		if e.URL != "https://www.youtube.com/watch?v="+want {
			t.Errorf("got[%d].URL = %q", i, e.URL)
		}
		if e.DurationSeconds != 65 {
			t.Errorf("got[%d].DurationSeconds = %v", i, e.DurationSeconds)
		}
	}
	if api.calls["search"] != 0 {
		t.Errorf("search called %d times, want 0", api.calls["search"])
	}
}

func TestClient_List_SearchWhenUploadsShort(t *testing.T) {
	tests := []struct {
		name       string
		uploads    int
		search     int
		ratio      float64
		wantLen    int
		wantPrefix string
		wantSearch bool
	}{
		{"search wins", 1, 6, 0.5, 6, "s", true},
		{"uploads kept when search smaller", 2, 1, 0.5, 2, "u", true},
		{"ratio zero never searches", 1, 6, 0, 1, "u", false},
		{"ratio one searches unless full", 9, 10, 1, 10, "s", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI(ids("u", tt.uploads), ids("s", tt.search))
			srv := httptest.NewServer(api.handler(t))
			defer srv.Close()

			got, err := newTestClient(srv, tt.ratio).List(context.Background(), "https://www.youtube.com/channel/UC1", 10)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(got) != tt.wantLen {
				t.Fatalf("len = %d, want %d", len(got), tt.wantLen)
			}
			if !strings.HasPrefix(got[0].ID, tt.wantPrefix) {
				t.Errorf("first id = %q, want prefix %q", got[0].ID, tt.wantPrefix)
			}
			if (api.calls["search"] > 0) != tt.wantSearch {
				t.Errorf("search calls = %d", api.calls["search"])
			}
		})
	}
}

func TestClient_ChannelID(t *testing.T) {
	api := newFakeAPI(nil, nil)
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()
	c := newTestClient(srv, 0.5)

	tests := []struct {
		url  string
		want string
	}{
		{"https://www.youtube.com/channel/UCabc/videos", "UCabc"},
		{"https://www.youtube.com/channel/UCabc?x=1", "UCabc"},
		{"https://www.youtube.com/c/legacy/videos", "UC_legacy"},
		{"https://www.youtube.com/@known/videos", "UC_known"},
		{"https://www.youtube.com/@other", "UC_searched"},
	}
	for _, tt := range tests {
		got, err := c.ChannelID(context.Background(), tt.url)
		if err != nil {
			t.Errorf("ChannelID(%q): %v", tt.url, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ChannelID(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}

	if _, err := c.ChannelID(context.Background(), "https://www.youtube.com/watch?v=x"); !errors.Is(err, ErrChannelNotFound) {
		t.Errorf("watch URL error = %v, want ErrChannelNotFound", err)
	}
}

func TestClient_List_APIErrorIsClassified(t *testing.T) {
	api := newFakeAPI(nil, nil)
	api.status = http.StatusForbidden
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()

	_, err := newTestClient(srv, 0.5).List(context.Background(), "https://www.youtube.com/channel/UC1", 5)
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusForbidden {
		t.Fatalf("error = %v, want *APIError 403", err)
	}
	if got := classifier.Classify(err).Kind; got != domain.KindHTTPForbidden {
		t.Errorf("Classify = %q", got)
	}
}

func TestClient_Available(t *testing.T) {
	if NewClient(Config{}, testLogger()).Available() {
		t.Error("client without key should not be available")
	}
	var nilClient *Client
	if nilClient.Available() {
		t.Error("nil client should not be available")
	}
	if _, err := NewClient(Config{}, testLogger()).List(context.Background(), "https://www.youtube.com/channel/UC1", 1); err == nil {
		t.Error("List without key should fail")
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"PT1H2M3S", 3723},
		{"PT45S", 45},
		{"PT10M", 600},
		{"PT2H", 7200},
		{"P1DT1S", 86401},
		{"P0D", 0},
		{"PT0S", 0},
		{"", 0},
		{"1:02", 0},
	}
	for _, tt := range tests {
		if got := ParseDuration(tt.in); got != tt.want {
			t.Errorf("ParseDuration(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
