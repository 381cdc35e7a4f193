package platform

import (
	"testing"

	"github.com/iconidentify/reelgrab/internal/domain"
)

func TestIsValidEntry(t *testing.T) {
	tests := []struct {
		name  string
		entry domain.ListingEntry
		want  bool
	}{
		{
			name:  "tiktok video",
			entry: domain.ListingEntry{URL: "https://www.tiktok.com/@u/video/123", DurationSeconds: 15},
			want:  true,
		},
		{
			name:  "zero duration rejected even with video path",
			entry: domain.ListingEntry{URL: "https://www.tiktok.com/@u/video/123", DurationSeconds: 0},
			want:  false,
		},
		{
			name:  "negative duration rejected",
			entry: domain.ListingEntry{URL: "https://www.youtube.com/watch?v=x", DurationSeconds: -1},
			want:  false,
		},
		{
			name:  "youtube shorts accepted",
			entry: domain.ListingEntry{URL: "https://www.youtube.com/shorts/abc", DurationSeconds: 15},
			want:  true,
		},
		{
			name:  "youtube watch accepted",
			entry: domain.ListingEntry{URL: "https://www.youtube.com/watch?v=abc", DurationSeconds: 300},
			want:  true,
		},
		{
			name:  "instagram photo post rejected",
			entry: domain.ListingEntry{URL: "https://www.instagram.com/p/abc", DurationSeconds: 15},
			want:  false,
		},
		{
			name:  "instagram photo rejected even with video extractor hint",
			entry: domain.ListingEntry{URL: "https://www.instagram.com/p/abc/", DurationSeconds: 15, ExtractorHint: "InstagramVideo"},
			want:  false,
		},
		{
			name:  "instagram reel accepted",
			entry: domain.ListingEntry{URL: "https://www.instagram.com/reel/abc/", DurationSeconds: 20},
			want:  true,
		},
		{
			name:  "tiktok photo carousel rejected",
			entry: domain.ListingEntry{URL: "https://www.tiktok.com/@u/photo/999", DurationSeconds: 10},
			want:  false,
		},
		{
			name:  "empty url rejected",
			entry: domain.ListingEntry{URL: "  ", DurationSeconds: 10, ExtractorHint: "Youtube"},
			want:  false,
		},
		{
			name:  "unknown shape rescued by extractor hint",
			entry: domain.ListingEntry{URL: "https://www.youtube.com/embed/abc", DurationSeconds: 10, ExtractorHint: "Youtube"},
			want:  true,
		},
		{
			name:  "extractor hint containing video",
			entry: domain.ListingEntry{URL: "https://cdn.example.com/item/1", DurationSeconds: 10, ExtractorHint: "GenericVideo"},
			want:  true,
		},
		{
			name:  "unknown shape and no hint rejected",
			entry: domain.ListingEntry{URL: "https://www.youtube.com/embed/abc", DurationSeconds: 10},
			want:  false,
		},
		{
			name:  "generic shapes for unknown host",
			entry: domain.ListingEntry{URL: "https://example.com/videos/123", DurationSeconds: 10},
			want:  true,
		},
		{
			name:  "generic host without shape rejected",
			entry: domain.ListingEntry{URL: "https://example.com/gallery/123", DurationSeconds: 10},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidEntry(tt.entry); got != tt.want {
				t.Errorf("IsValidEntry(%+v) = %v, want %v", tt.entry, got, tt.want)
			}
		})
	}
}

func TestFilterEntries_OrderAndLimit(t *testing.T) {
	entries := []domain.ListingEntry{
		{ID: "1", URL: "https://www.tiktok.com/@u/video/1", DurationSeconds: 5},
		{ID: "2", URL: "https://www.tiktok.com/@u/photo/2", DurationSeconds: 5},
		{ID: "3", URL: "https://www.tiktok.com/@u/video/3", DurationSeconds: 0},
		{ID: "4", URL: "https://www.tiktok.com/@u/video/4", DurationSeconds: 7},
		{ID: "5", URL: "https://www.tiktok.com/@u/video/5", DurationSeconds: 9},
	}

	got := FilterEntries(entries, 0)
	wantIDs := []string{"1", "4", "5"}
	if len(got) != len(wantIDs) {
		t.Fatalf("len = %d, want %d", len(got), len(wantIDs))
	}
	for i, id := range wantIDs {
		if got[i].ID != id {
			t.Errorf("item[%d].ID = %q, want %q", i, got[i].ID, id)
		}
		if !got[i].Selected {
			t.Errorf("item[%d] should be selected", i)
		}
	}

	limited := FilterEntries(entries, 2)
	if len(limited) != 2 || limited[1].ID != "4" {
		t.Errorf("FilterEntries(limit 2) = %+v", limited)
	}
}
