package platform

import (
	"strings"

	"github.com/iconidentify/reelgrab/internal/domain"
)

// videoExtractors are extractor keys that only ever yield videos.
var videoExtractors = set("youtube", "tiktok", "vimeo", "dailymotion", "twitch:vod")

// IsValidEntry reports whether a listing entry is a real, downloadable video.
// Entries with a zero duration are always rejected, even when the URL looks
// like a video.
func IsValidEntry(e domain.ListingEntry) bool {
	if strings.TrimSpace(e.URL) == "" {
		return false
	}
	if e.DurationSeconds <= 0 {
		return false
	}

	videoShapes, photoShapes := genericVideoShapes, []string(nil)
	if u, err := parse(e.URL); err == nil {
		if rule, ok := Lookup(u.Hostname()); ok {
			videoShapes, photoShapes = rule.VideoShapes, rule.PhotoShapes
		}
	}

	if matchesAny(e.URL, photoShapes) {
		return false
	}
	if matchesAny(e.URL, videoShapes) {
		return true
	}
	return isVideoExtractor(e.ExtractorHint)
}

// FilterEntries keeps valid entries in their original order, up to limit
// (limit <= 0 means no cap).
func FilterEntries(entries []domain.ListingEntry, limit int) []domain.VideoDescriptor {
	var out []domain.VideoDescriptor
	for _, e := range entries {
		if limit > 0 && len(out) >= limit {
			break
		}
		if IsValidEntry(e) {
			out = append(out, domain.NewVideoDescriptor(e))
		}
	}
	return out
}

func isVideoExtractor(hint string) bool {
	h := strings.ToLower(strings.TrimSpace(hint))
	if h == "" {
		return false
	}
	return strings.Contains(h, "video") || videoExtractors[h]
}
