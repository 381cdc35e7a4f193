package platform

import (
	"net/url"
	"strings"
)

const (
	youtubeHost   = "www.youtube.com"
	tiktokHost    = "www.tiktok.com"
	instagramHost = "www.instagram.com"
	facebookHost  = "www.facebook.com"
	twitterHost   = "x.com"

	// youtubeChannelFilter restricts a YouTube search to channels.
	youtubeChannelFilter = "EgIQAg%253D%253D"
)

var (
	youtubeTabs = set("videos", "shorts", "playlists", "streams", "live", "featured", "community", "about", "podcasts")

	instagramReserved = set("reel", "reels", "p", "tv", "stories", "explore", "accounts", "direct")

	facebookReserved = set("watch", "reel", "reels", "videos", "share", "groups", "events", "story.php",
		"photo.php", "photo", "photos", "permalink.php", "profile.php", "pages", "hashtag", "gaming")

	twitterReserved = set("home", "explore", "search", "i", "hashtag", "settings", "notifications", "messages", "intent")
)

func set(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}

func withHost(u *url.URL, host string) *url.URL {
	out := *u
	out.Host = host
	return &out
}

// YouTube

func watchURL(id string) *url.URL {
	return &url.URL{Scheme: "https", Host: youtubeHost, Path: "/watch", RawQuery: "v=" + url.QueryEscape(id)}
}

func canonicalYouTube(u *url.URL) *url.URL {
	segs := pathSegments(u)

	if strings.HasSuffix(u.Hostname(), "youtu.be") {
		if len(segs) == 0 {
			return build(youtubeHost)
		}
		return watchURL(segs[0])
	}

	if len(segs) == 0 {
		return withHost(u, youtubeHost)
	}

	switch {
	case segs[0] == "watch":
		if v := u.Query().Get("v"); v != "" {
			return watchURL(v)
		}
	case strings.HasPrefix(segs[0], "@"):
		if len(segs) == 1 {
			return build(youtubeHost, segs[0], "videos")
		}
		return build(youtubeHost, segs...)
	case segs[0] == "channel" || segs[0] == "c" || segs[0] == "user":
		if len(segs) == 2 {
			return build(youtubeHost, segs[0], segs[1], "videos")
		}
		if len(segs) > 2 && youtubeTabs[segs[2]] {
			return build(youtubeHost, segs...)
		}
	}
	return withHost(u, youtubeHost)
}

func fallbackYouTube(u *url.URL) []string {
	segs := pathSegments(u)
	if len(segs) == 0 {
		return nil
	}

	base := "https://" + youtubeHost + "/"
	switch {
	case strings.HasPrefix(segs[0], "@"):
		h := strings.TrimPrefix(segs[0], "@")
		return []string{
			base + "@" + h + "/videos",
			base + "@" + h + "/shorts",
			base + "c/" + h + "/videos",
			base + "user/" + h + "/videos",
			base + "channel/" + h + "/videos",
			base + "results?search_query=" + url.QueryEscape(h) + "&sp=" + youtubeChannelFilter,
		}
	case segs[0] == "channel" && len(segs) >= 2:
		return []string{
			base + "channel/" + segs[1] + "/videos",
			base + "channel/" + segs[1] + "/shorts",
		}
	case segs[0] == "c" && len(segs) >= 2:
		return []string{
			base + "c/" + segs[1] + "/videos",
			base + "@" + segs[1] + "/videos",
			base + "user/" + segs[1] + "/videos",
		}
	case segs[0] == "user" && len(segs) >= 2:
		return []string{
			base + "user/" + segs[1] + "/videos",
			base + "c/" + segs[1] + "/videos",
			base + "@" + segs[1] + "/videos",
		}
	}
	return nil
}

// TikTok

func isTikTokShortLink(host string) bool {
	return strings.HasPrefix(host, "vm.") || strings.HasPrefix(host, "vt.")
}

func canonicalTikTok(u *url.URL) *url.URL {
	if isTikTokShortLink(u.Hostname()) {
		return u
	}
	segs := pathSegments(u)
	if len(segs) == 1 && strings.HasPrefix(segs[0], "@") {
		return build(tiktokHost, segs[0], "video")
	}
	return withHost(u, tiktokHost)
}

func fallbackTikTok(u *url.URL) []string {
	segs := pathSegments(u)
	if len(segs) == 0 || len(segs) > 2 || !strings.HasPrefix(segs[0], "@") {
		return nil
	}
	base := "https://" + tiktokHost + "/" + segs[0]
	return []string{base, base + "/video"}
}

// Instagram

func canonicalInstagram(u *url.URL) *url.URL {
	segs := pathSegments(u)
	if len(segs) == 1 && !instagramReserved[segs[0]] {
		return &url.URL{Scheme: "https", Host: instagramHost, Path: "/" + segs[0] + "/reels/"}
	}
	return withHost(u, instagramHost)
}

func fallbackInstagram(u *url.URL) []string {
	segs := pathSegments(u)
	if len(segs) == 0 || instagramReserved[segs[0]] {
		return nil
	}
	base := "https://" + instagramHost + "/" + segs[0]
	return []string{base + "/reels/", base + "/"}
}

// Facebook

func canonicalFacebook(u *url.URL) *url.URL {
	if strings.HasSuffix(u.Hostname(), "fb.watch") {
		return u
	}
	segs := pathSegments(u)
	switch {
	case len(segs) == 1 && segs[0] == "profile.php":
		q := u.Query()
		if q.Get("sk") == "" {
			q.Set("sk", "videos")
		}
		out := withHost(u, facebookHost)
		out.RawQuery = q.Encode()
		return out
	case len(segs) >= 2 && segs[0] == "pages" && !contains(segs, "videos"):
		return build(facebookHost, append(segs, "videos")...)
	case len(segs) == 1 && !facebookReserved[segs[0]]:
		return build(facebookHost, segs[0], "videos")
	}
	return withHost(u, facebookHost)
}

func fallbackFacebook(u *url.URL) []string {
	segs := pathSegments(u)
	if len(segs) == 0 {
		return nil
	}
	base := "https://" + facebookHost + "/"
	if segs[0] == "profile.php" {
		id := u.Query().Get("id")
		if id == "" {
			return nil
		}
		return []string{
			base + "profile.php?id=" + url.QueryEscape(id) + "&sk=videos",
			base + "profile.php?id=" + url.QueryEscape(id),
		}
	}
	if facebookReserved[segs[0]] {
		return nil
	}
	return []string{
		base + segs[0] + "/videos",
		base + segs[0] + "/reels",
		base + segs[0],
	}
}

// Twitter / X

func canonicalTwitter(u *url.URL) *url.URL {
	segs := pathSegments(u)
	if len(segs) == 1 && !twitterReserved[strings.ToLower(segs[0])] {
		return build(twitterHost, segs[0], "media")
	}
	return withHost(u, twitterHost)
}

func fallbackTwitter(u *url.URL) []string {
	segs := pathSegments(u)
	if len(segs) == 0 || twitterReserved[strings.ToLower(segs[0])] {
		return nil
	}
	base := "https://" + twitterHost + "/" + segs[0]
	return []string{base + "/media", base}
}

func contains(segs []string, s string) bool {
	for _, seg := range segs {
		if seg == s {
			return true
		}
	}
	return false
}
