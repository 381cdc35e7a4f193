// Package platform holds the platform pattern table and everything that reads it:
// URL normalization, fallback candidate generation and the listing entry validity filter.
package platform

import (
	"net/url"
	"strings"

	"github.com/tidwall/match"

	"github.com/iconidentify/reelgrab/internal/domain"
)

// Rule describes one platform's URL conventions.
type Rule struct {
	Name    string
	Tag     domain.PlatformTag
	Domains []string
	// Host is the canonical host the rule rewrites URLs onto.
	Host string
	// VideoShapes are glob patterns (tidwall/match) over a scheme-less URL that
	// identify a playable video entry.
	VideoShapes []string
	// PhotoShapes identify non-video posts and take precedence over VideoShapes.
	PhotoShapes []string

	canonicalize func(u *url.URL) *url.URL
	fallbacks    func(u *url.URL) []string
}

// genericVideoShapes apply to entries whose host is not in the table.
var genericVideoShapes = []string{
	"*/video/*",
	"*watch?v=*",
	"*/shorts/*",
	"*/videos/*",
	"*/watch/*",
	"*/reel/*",
}

var table = []Rule{
	{
		Name:         "tiktok",
		Tag:          domain.PlatformShortVideo,
		Domains:      []string{"tiktok.com"},
		Host:         "www.tiktok.com",
		VideoShapes:  []string{"*/video/*"},
		PhotoShapes:  []string{"*/photo/*"},
		canonicalize: canonicalTikTok,
		fallbacks:    fallbackTikTok,
	},
	{
		Name:         "youtube",
		Tag:          domain.PlatformLongVideo,
		Domains:      []string{"youtube.com", "youtu.be"},
		Host:         "www.youtube.com",
		VideoShapes:  []string{"*watch?v=*", "*/shorts/*", "*/live/*"},
		canonicalize: canonicalYouTube,
		fallbacks:    fallbackYouTube,
	},
	{
		Name:         "instagram",
		Tag:          domain.PlatformSocialPhoto,
		Domains:      []string{"instagram.com"},
		Host:         "www.instagram.com",
		VideoShapes:  []string{"*/reel/*", "*/reels/*", "*/tv/*"},
		PhotoShapes:  []string{"*/p/*"},
		canonicalize: canonicalInstagram,
		fallbacks:    fallbackInstagram,
	},
	{
		Name:         "facebook",
		Tag:          domain.PlatformSocialGeneric,
		Domains:      []string{"facebook.com", "fb.watch"},
		Host:         "www.facebook.com",
		VideoShapes:  []string{"*/videos/*", "*/watch/*", "*watch?v=*", "*/reel/*", "fb.watch/*"},
		PhotoShapes:  []string{"*/photo*", "*/photos/*"},
		canonicalize: canonicalFacebook,
		fallbacks:    fallbackFacebook,
	},
	{
		Name:         "twitter",
		Tag:          domain.PlatformSocialGeneric,
		Domains:      []string{"twitter.com", "x.com"},
		Host:         "x.com",
		VideoShapes:  []string{"*/status/*", "*/video/*"},
		PhotoShapes:  []string{"*/photo/*"},
		canonicalize: canonicalTwitter,
		fallbacks:    fallbackTwitter,
	},
}

// Rules returns a copy of the platform table.
func Rules() []Rule {
	return append([]Rule(nil), table...)
}

// Lookup finds the rule whose domain matches host. The host may carry a
// "www." or "m." prefix or a port.
func Lookup(host string) (*Rule, bool) {
	host = strings.ToLower(host)
	if h, _, ok := strings.Cut(host, ":"); ok {
		host = h
	}
	for i := range table {
		for _, d := range table[i].Domains {
			if host == d || strings.HasSuffix(host, "."+d) {
				return &table[i], true
			}
		}
	}
	return nil, false
}

// matchesAny reports whether the scheme-less form of rawURL matches a pattern.
func matchesAny(rawURL string, patterns []string) bool {
	s := stripURL(rawURL)
	for _, p := range patterns {
		if match.Match(s, p) {
			return true
		}
	}
	return false
}

func stripURL(rawURL string) string {
	s := strings.ToLower(strings.TrimSpace(rawURL))
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "www.")
	s = strings.TrimPrefix(s, "m.")
	return s
}

// pathSegments splits a URL path into its non-empty segments.
func pathSegments(u *url.URL) []string {
	var segs []string
	for _, s := range strings.Split(u.Path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// build returns an https URL on host with the given path segments.
func build(host string, segs ...string) *url.URL {
	return &url.URL{Scheme: "https", Host: host, Path: "/" + strings.Join(segs, "/")}
}
