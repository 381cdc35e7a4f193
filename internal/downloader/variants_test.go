package downloader

import (
	"testing"
	"time"

	"github.com/iconidentify/reelgrab/internal/config"
	"github.com/iconidentify/reelgrab/internal/domain"
)

func TestVariants_For(t *testing.T) {
	v := NewVariants(config.DownloadConfig{
		Resolution:  "720p",
		Proxy:       "http://proxy:8080",
		CookiesFile: "/tmp/cookies.txt",
	})

	tests := []struct {
		variant         domain.ConfigVariant
		timeout         time.Duration
		retries         int
		chunk           int64
		secFetchPresent bool
	}{
		{domain.VariantStandard, 60 * time.Second, 5, 1 << 20, false},
		{domain.VariantSocketFallback, 30 * time.Second, 2, 512 << 10, true},
		{domain.VariantAlternateHeaders, 60 * time.Second, 5, 1 << 20, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.variant), func(t *testing.T) {
			c := v.For(tt.variant)
			if c.Variant != tt.variant {
				t.Errorf("Variant = %q", c.Variant)
			}
			if c.SocketTimeout != tt.timeout {
				t.Errorf("SocketTimeout = %v, want %v", c.SocketTimeout, tt.timeout)
			}
			if c.Retries != tt.retries || c.FragmentRetries != tt.retries {
				t.Errorf("Retries = %d/%d, want %d", c.Retries, c.FragmentRetries, tt.retries)
			}
			if c.ChunkSize != tt.chunk {
				t.Errorf("ChunkSize = %d, want %d", c.ChunkSize, tt.chunk)
			}
			if c.Concurrency != 1 {
				t.Errorf("Concurrency = %d, want 1", c.Concurrency)
			}
			if (c.Header("Sec-Fetch-Mode") != "") != tt.secFetchPresent {
				t.Errorf("Sec-Fetch-Mode = %q", c.Header("Sec-Fetch-Mode"))
			}
			if c.Format != "best[height<=720]/best" || c.Proxy != "http://proxy:8080" || c.CookiesFile != "/tmp/cookies.txt" {
				t.Errorf("shared settings not carried: %+v", c)
			}
		})
	}
}

func TestVariants_AlternateHeadersDrawsFromPool(t *testing.T) {
	v := NewVariants(config.DownloadConfig{})
	seen := make(map[string]bool)
	for i := range userAgentPool {
		idx := i
		v.pick = func(n int) int { return idx }
		seen[v.For(domain.VariantAlternateHeaders).UserAgent] = true
	}
	if len(seen) != len(userAgentPool) {
		t.Errorf("distinct user agents = %d, want %d", len(seen), len(userAgentPool))
	}

	v = NewVariants(config.DownloadConfig{})
	for i := 0; i < 50; i++ {
		ua := v.For(domain.VariantAlternateHeaders).UserAgent
		found := false
		for _, p := range userAgentPool {
			if p == ua {
				found = true
			}
		}
		if !found {
			t.Fatalf("user agent %q not in pool", ua)
		}
	}
}

func TestVariants_Next(t *testing.T) {
	v := NewVariants(config.DownloadConfig{})
	std := v.For(domain.VariantStandard)

	if got := v.Next(std, domain.MutationNone).Variant; got != domain.VariantStandard {
		t.Errorf("None -> %q", got)
	}
	if got := v.Next(std, domain.MutationUseFallbackConfig).Variant; got != domain.VariantSocketFallback {
		t.Errorf("UseFallbackConfig -> %q", got)
	}
	if got := v.Next(std, domain.MutationUseAlternateHeaders).Variant; got != domain.VariantAlternateHeaders {
		t.Errorf("UseAlternateHeaders -> %q", got)
	}

	fb := v.For(domain.VariantSocketFallback)
	if got := v.Next(fb, domain.MutationNone).Variant; got != domain.VariantSocketFallback {
		t.Errorf("None should keep the fallback variant, got %q", got)
	}
}

func TestRequestConfig_CloneIsolatesHeaders(t *testing.T) {
	v := NewVariants(config.DownloadConfig{})
	orig := v.For(domain.VariantStandard)
	clone := orig.Clone()
	clone.Headers[0].Value = "mutated"
	clone.SocketTimeout = time.Second

	if orig.Headers[0].Value == "mutated" {
		t.Error("clone shares header storage with the original")
	}
	if orig.SocketTimeout == time.Second {
		t.Error("clone shares scalar fields with the original")
	}

	again := v.For(domain.VariantStandard)
	if again.Headers[0].Value == "mutated" {
		t.Error("variant builder leaked a mutated header")
	}
}

func TestTransportArgs(t *testing.T) {
	v := NewVariants(config.DownloadConfig{CookiesFile: "c.txt"})
	got := TransportArgs(v.For(domain.VariantSocketFallback))
	want := []string{"--socket-timeout", "30", "--http-chunk-size", "524288", "--cookies", "c.txt"}
	if len(got) != len(want) {
		t.Fatalf("TransportArgs = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("arg[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
