package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			APIKey: "test-api-key",
		},
		Storage: StorageConfig{
			BasePath: "/data/videos",
		},
		Download: DownloadConfig{
			Resolution:    "best",
			MaxAttempts:   3,
			BackoffFactor: 2,
		},
		Listing: ListingConfig{
			MaxItems:           50,
			SecondaryRatio:     0.8,
			YouTubeSearchRatio: 0.5,
		},
		Batch: BatchConfig{
			Pacing: time.Second,
		},
	}
}

func TestConfig_Validate_Success(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("Validate() should pass, got %v", err)
	}
}

func TestConfig_Validate_MissingAPIKey(t *testing.T) {
	cfg := validConfig()
	cfg.Server.APIKey = ""

	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should fail for missing API_KEY")
	}
	if err := cfg.validateCommon(); err != nil {
		t.Errorf("validateCommon() should not need an API key, got %v", err)
	}
}

func TestConfig_Validate_Fields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"missing storage", func(c *Config) { c.Storage.BasePath = "" }, true},
		{"output target replaces storage path", func(c *Config) {
			c.Storage.BasePath = ""
			c.Storage.OutputTarget = "b2://key:secret@bucket/prefix"
		}, false},
		{"zero attempts", func(c *Config) { c.Download.MaxAttempts = 0 }, true},
		{"four attempts", func(c *Config) { c.Download.MaxAttempts = 4 }, true},
		{"one attempt", func(c *Config) { c.Download.MaxAttempts = 1 }, false},
		{"shrinking backoff", func(c *Config) { c.Download.BackoffFactor = 0.5 }, true},
		{"unknown resolution", func(c *Config) { c.Download.Resolution = "4k" }, true},
		{"720p resolution", func(c *Config) { c.Download.Resolution = "720p" }, false},
		{"zero max items", func(c *Config) { c.Listing.MaxItems = 0 }, true},
		{"secondary ratio above one", func(c *Config) { c.Listing.SecondaryRatio = 1.5 }, true},
		{"secondary ratio tunable", func(c *Config) { c.Listing.SecondaryRatio = 0.6 }, false},
		{"negative search ratio", func(c *Config) { c.Listing.YouTubeSearchRatio = -0.1 }, true},
		{"negative pacing", func(c *Config) { c.Batch.Pacing = -time.Second }, true},
		{"no pacing", func(c *Config) { c.Batch.Pacing = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestDownloadConfig_FormatSelector(t *testing.T) {
	tests := []struct {
		resolution string
		want       string
	}{
		{"best", "best"},
		{"1080p", "best[height<=1080]/best"},
		{"720p", "best[height<=720]/best"},
		{"480p", "best[height<=480]/best"},
		{"360p", "best[height<=360]/best"},
		{"", "best"},
		{"8k", "best"},
	}

	for _, tt := range tests {
		t.Run(tt.resolution, func(t *testing.T) {
			cfg := DownloadConfig{Resolution: tt.resolution}
			if got := cfg.FormatSelector(); got != tt.want {
				t.Errorf("FormatSelector() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStorageConfig_Target(t *testing.T) {
	cfg := StorageConfig{BasePath: "/data/videos"}
	if got := cfg.Target(); got != "/data/videos" {
		t.Errorf("Target() = %q", got)
	}
	cfg.OutputTarget = "fs:///mnt/media"
	if got := cfg.Target(); got != "fs:///mnt/media" {
		t.Errorf("Target() = %q", got)
	}
}

func TestServerConfig_Address(t *testing.T) {
	tests := []struct {
		name string
		cfg  ServerConfig
		want string
	}{
		{
			name: "default",
			cfg:  ServerConfig{Host: "0.0.0.0", Port: 9848},
			want: "0.0.0.0:9848",
		},
		{
			name: "localhost",
			cfg:  ServerConfig{Host: "localhost", Port: 8080},
			want: "localhost:8080",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Address(); got != tt.want {
				t.Errorf("Address() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("API_KEY", "test-api-key")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Download.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", cfg.Download.MaxAttempts)
	}
	if cfg.Download.RetryDelay != 2*time.Second {
		t.Errorf("RetryDelay = %v, want 2s", cfg.Download.RetryDelay)
	}
	if cfg.Download.StandardSocketTimeout != 60*time.Second {
		t.Errorf("StandardSocketTimeout = %v, want 60s", cfg.Download.StandardSocketTimeout)
	}
	if cfg.Download.FallbackSocketTimeout != 30*time.Second {
		t.Errorf("FallbackSocketTimeout = %v, want 30s", cfg.Download.FallbackSocketTimeout)
	}
	if cfg.Batch.Pacing != time.Second {
		t.Errorf("Pacing = %v, want 1s", cfg.Batch.Pacing)
	}
	if cfg.Listing.SecondaryRatio != 0.8 {
		t.Errorf("SecondaryRatio = %v, want 0.8", cfg.Listing.SecondaryRatio)
	}
	if cfg.Listing.YouTubeSearchRatio != 0.5 {
		t.Errorf("YouTubeSearchRatio = %v, want 0.5", cfg.Listing.YouTubeSearchRatio)
	}
	if cfg.Tracing.ServiceName != "reelgrab" {
		t.Errorf("ServiceName = %q", cfg.Tracing.ServiceName)
	}
}

func TestLoad_FromYAMLFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	// envconfig applies defaults over YAML for fields that have one, so
	// only default-less fields are asserted from the file.
	t.Setenv("SERVER_PORT", "8080")

	yamlContent := `
server:
  api_key: "yaml-api-key"
download:
  proxy: "socks5://127.0.0.1:1080"
  cookies_file: "/etc/reelgrab/cookies.txt"
listing:
  youtube_api_key: "yt-key"
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want %d", cfg.Server.Port, 8080)
	}
	if cfg.Server.APIKey != "yaml-api-key" {
		t.Errorf("APIKey = %q, want %q", cfg.Server.APIKey, "yaml-api-key")
	}
	if cfg.Download.Proxy != "socks5://127.0.0.1:1080" {
		t.Errorf("Proxy = %q", cfg.Download.Proxy)
	}
	if cfg.Download.CookiesFile != "/etc/reelgrab/cookies.txt" {
		t.Errorf("CookiesFile = %q", cfg.Download.CookiesFile)
	}
	if cfg.Listing.YouTubeAPIKey != "yt-key" {
		t.Errorf("YouTubeAPIKey = %q", cfg.Listing.YouTubeAPIKey)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  api_key: "yaml-api-key"
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	t.Setenv("API_KEY", "env-api-key")
	t.Setenv("STORAGE_PATH", "/env/path")
	t.Setenv("DOWNLOAD_RESOLUTION", "720p")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.APIKey != "env-api-key" {
		t.Errorf("APIKey should be from env, got %q", cfg.Server.APIKey)
	}
	if cfg.Storage.BasePath != "/env/path" {
		t.Errorf("BasePath should be from env, got %q", cfg.Storage.BasePath)
	}
	if got := cfg.Download.FormatSelector(); got != "best[height<=720]/best" {
		t.Errorf("FormatSelector() = %q", got)
	}
}

func TestLoadLocal_NoAPIKey(t *testing.T) {
	t.Setenv("API_KEY", "")

	if _, err := LoadLocal(""); err != nil {
		t.Fatalf("LoadLocal failed: %v", err)
	}
	if _, err := Load(""); err == nil {
		t.Error("Load should fail validation without API_KEY")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	invalidYAML := `
server:
  host: "localhost
  port: 8080
`
	if err := os.WriteFile(configPath, []byte(invalidYAML), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Error("Load should fail for invalid YAML")
	}
}

func TestLoad_NonexistentFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Load should fail for nonexistent file")
	}
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("API_KEY", "k")
	t.Setenv("DOWNLOAD_MAX_ATTEMPTS", "7")

	if _, err := Load(""); err == nil {
		t.Error("Load should reject more than 3 attempts")
	}
}
