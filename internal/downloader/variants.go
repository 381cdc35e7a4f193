package downloader

import (
	"math/rand/v2"
	"strings"
	"time"

	"github.com/iconidentify/reelgrab/internal/config"
	"github.com/iconidentify/reelgrab/internal/domain"
)

const (
	standardChunkSize = 1 << 20   // 1MB
	fallbackChunkSize = 512 << 10 // 512KB

	desktopChromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	mobileSafariUA  = "Mozilla/5.0 (iPhone; CPU iPhone OS 14_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.0.3 Mobile/15E148 Safari/604.1"
)

// userAgentPool is the client-identity pool rotated through on forbidden
// responses.
var userAgentPool = [...]string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Android 13; Mobile; rv:109.0) Gecko/109.0 Firefox/109.0",
}

// Header is a single request header.
type Header struct {
	Name  string
	Value string
}

// String renders the header in "Name:Value" form.
func (h Header) String() string {
	return h.Name + ":" + h.Value
}

// RequestConfig is the full set of request parameters for one attempt. It is
// passed by value; use Clone before handing it to code that may modify the
// header slice.
type RequestConfig struct {
	Variant         domain.ConfigVariant
	UserAgent       string
	Headers         []Header
	SocketTimeout   time.Duration
	Retries         int
	FragmentRetries int
	ChunkSize       int64
	Concurrency     int
	Format          string
	Proxy           string
	CookiesFile     string
}

// Clone returns a deep copy of c.
func (c RequestConfig) Clone() RequestConfig {
	c.Headers = append([]Header(nil), c.Headers...)
	return c
}

// Header returns the value of the named header, or "".
func (c RequestConfig) Header(name string) string {
	for _, h := range c.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// Variants builds request configurations for each variant from the
// download settings.
type Variants struct {
	standardTimeout time.Duration
	fallbackTimeout time.Duration
	format          string
	proxy           string
	cookiesFile     string

	pick func(n int) int
}

// NewVariants creates a variant builder.
func NewVariants(cfg config.DownloadConfig) *Variants {
	v := &Variants{
		standardTimeout: cfg.StandardSocketTimeout,
		fallbackTimeout: cfg.FallbackSocketTimeout,
		format:          cfg.FormatSelector(),
		proxy:           cfg.Proxy,
		cookiesFile:     cfg.CookiesFile,
		pick:            rand.IntN,
	}
	if v.standardTimeout <= 0 {
		v.standardTimeout = 60 * time.Second
	}
	if v.fallbackTimeout <= 0 {
		v.fallbackTimeout = 30 * time.Second
	}
	return v
}

// For returns a fresh configuration for variant. AlternateHeaders draws a
// user agent from the pool on every call.
func (v *Variants) For(variant domain.ConfigVariant) RequestConfig {
	switch variant {
	case domain.VariantSocketFallback:
		return v.socketFallback()
	case domain.VariantAlternateHeaders:
		return v.alternateHeaders()
	default:
		return v.standard()
	}
}

// Next maps a classifier mutation onto the variant for the following
// attempt. MutationNone keeps the current configuration.
func (v *Variants) Next(current RequestConfig, m domain.Mutation) RequestConfig {
	switch m {
	case domain.MutationUseFallbackConfig:
		return v.For(domain.VariantSocketFallback)
	case domain.MutationUseAlternateHeaders:
		return v.For(domain.VariantAlternateHeaders)
	default:
		return current.Clone()
	}
}

func (v *Variants) base() RequestConfig {
	return RequestConfig{
		Format:      v.format,
		Proxy:       v.proxy,
		CookiesFile: v.cookiesFile,
		Concurrency: 1,
	}
}

func (v *Variants) standard() RequestConfig {
	c := v.base()
	c.Variant = domain.VariantStandard
	c.UserAgent = desktopChromeUA
	c.SocketTimeout = v.standardTimeout
	c.Retries = 5
	c.FragmentRetries = 5
	c.ChunkSize = standardChunkSize
	c.Headers = []Header{
		{"Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"},
		{"Accept-Language", "en-US,en;q=0.5"},
	}
	return c
}

func (v *Variants) socketFallback() RequestConfig {
	c := v.base()
	c.Variant = domain.VariantSocketFallback
	c.UserAgent = mobileSafariUA
	c.SocketTimeout = v.fallbackTimeout
	c.Retries = 2
	c.FragmentRetries = 2
	c.ChunkSize = fallbackChunkSize
	c.Headers = []Header{
		{"Accept", "*/*"},
		{"Accept-Language", "en-US,en;q=0.9"},
		{"Sec-Fetch-Dest", "empty"},
		{"Sec-Fetch-Mode", "cors"},
		{"Sec-Fetch-Site", "same-origin"},
	}
	return c
}

func (v *Variants) alternateHeaders() RequestConfig {
	c := v.standard()
	c.Variant = domain.VariantAlternateHeaders
	c.UserAgent = userAgentPool[v.pick(len(userAgentPool))]
	c.Headers = []Header{
		{"Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"},
		{"Accept-Language", "en-US,en;q=0.5"},
		{"DNT", "1"},
		{"Upgrade-Insecure-Requests", "1"},
		{"Sec-Fetch-Dest", "document"},
		{"Sec-Fetch-Mode", "navigate"},
		{"Sec-Fetch-Site", "none"},
	}
	return c
}
