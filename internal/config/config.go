package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Worker   WorkerConfig   `yaml:"worker"`
	Download DownloadConfig `yaml:"download"`
	Listing  ListingConfig  `yaml:"listing"`
	Batch    BatchConfig    `yaml:"batch"`
	Events   EventsConfig   `yaml:"events"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `yaml:"host" envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port         int           `yaml:"port" envconfig:"SERVER_PORT" default:"9848"`
	APIKey       string        `yaml:"api_key" envconfig:"API_KEY"`
	ReadTimeout  time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT" default:"5m"`
}

// StorageConfig holds output configuration. OutputTarget, when set, takes
// precedence over BasePath and may name a remote target (b2://...).
type StorageConfig struct {
	BasePath     string `yaml:"base_path" envconfig:"STORAGE_PATH" default:"/data/videos"`
	TempPath     string `yaml:"temp_path" envconfig:"STORAGE_TEMP_PATH" default:"/data/temp"`
	OutputTarget string `yaml:"output_target" envconfig:"OUTPUT_TARGET"`
	MinFreeBytes uint64 `yaml:"min_free_bytes" envconfig:"STORAGE_MIN_FREE_BYTES" default:"1073741824"` // 1GB
}

// Target returns the effective output target URL.
func (c *StorageConfig) Target() string {
	if c.OutputTarget != "" {
		return c.OutputTarget
	}
	return c.BasePath
}

// WorkerConfig holds worker pool configuration.
type WorkerConfig struct {
	Count        int           `yaml:"count" envconfig:"WORKER_COUNT" default:"2"`
	PollInterval time.Duration `yaml:"poll_interval" envconfig:"WORKER_POLL_INTERVAL" default:"1s"`
	MaxRetries   int           `yaml:"max_retries" envconfig:"WORKER_MAX_RETRIES" default:"1"`
}

// DownloadConfig holds retrieval configuration.
type DownloadConfig struct {
	YTDLPPath             string        `yaml:"ytdlp_path" envconfig:"YTDLP_PATH" default:"yt-dlp"`
	FFProbePath           string        `yaml:"ffprobe_path" envconfig:"FFPROBE_PATH"` // empty disables output verification
	Resolution            string        `yaml:"resolution" envconfig:"DOWNLOAD_RESOLUTION" default:"best"`
	Proxy                 string        `yaml:"proxy" envconfig:"DOWNLOAD_PROXY"`
	CookiesFile           string        `yaml:"cookies_file" envconfig:"DOWNLOAD_COOKIES_FILE"`
	MaxAttempts           int           `yaml:"max_attempts" envconfig:"DOWNLOAD_MAX_ATTEMPTS" default:"3"`
	RetryDelay            time.Duration `yaml:"retry_delay" envconfig:"DOWNLOAD_RETRY_DELAY" default:"2s"`
	MaxRetryDelay         time.Duration `yaml:"max_retry_delay" envconfig:"DOWNLOAD_MAX_RETRY_DELAY" default:"10s"`
	BackoffFactor         float64       `yaml:"backoff_factor" envconfig:"DOWNLOAD_BACKOFF_FACTOR" default:"2"`
	StandardSocketTimeout time.Duration `yaml:"standard_socket_timeout" envconfig:"DOWNLOAD_SOCKET_TIMEOUT" default:"60s"`
	FallbackSocketTimeout time.Duration `yaml:"fallback_socket_timeout" envconfig:"DOWNLOAD_FALLBACK_SOCKET_TIMEOUT" default:"30s"`
	Timeout               time.Duration `yaml:"timeout" envconfig:"DOWNLOAD_TIMEOUT" default:"30s"`
	ReadTimeout           time.Duration `yaml:"read_timeout" envconfig:"DOWNLOAD_READ_TIMEOUT" default:"2m"`
	ProgressInterval      time.Duration `yaml:"progress_interval" envconfig:"DOWNLOAD_PROGRESS_INTERVAL" default:"500ms"`
}

// ListingConfig holds channel listing configuration.
type ListingConfig struct {
	MaxItems int           `yaml:"max_items" envconfig:"LISTING_MAX_ITEMS" default:"50"`
	Timeout  time.Duration `yaml:"timeout" envconfig:"LISTING_TIMEOUT" default:"3m"`

	// SecondaryRatio is the share of the requested count the API lister
	// must reach before the extractor cascade is skipped.
	SecondaryRatio float64 `yaml:"secondary_ratio" envconfig:"LISTING_SECONDARY_RATIO" default:"0.8"`

	YouTubeAPIKey      string  `yaml:"youtube_api_key" envconfig:"YOUTUBE_API_KEY"`
	YouTubeAPIBaseURL  string  `yaml:"youtube_api_base_url" envconfig:"YOUTUBE_API_BASE_URL" default:"https://www.googleapis.com/youtube/v3"`
	YouTubeSearchRatio float64 `yaml:"youtube_search_ratio" envconfig:"YOUTUBE_SEARCH_RATIO" default:"0.5"`
}

// BatchConfig holds batch retrieval configuration.
type BatchConfig struct {
	Pacing time.Duration `yaml:"pacing" envconfig:"BATCH_PACING" default:"1s"`
}

// EventsConfig holds event journal configuration.
type EventsConfig struct {
	RingBufferSize int    `yaml:"ring_buffer_size" envconfig:"EVENTS_BUFFER_SIZE" default:"1000"`
	SQLitePath     string `yaml:"sqlite_path" envconfig:"EVENTS_SQLITE_PATH"`
	RetentionDays  int    `yaml:"retention_days" envconfig:"EVENTS_RETENTION_DAYS" default:"30"`
}

// TracingConfig holds OpenTelemetry configuration. Tracing is disabled when
// Endpoint is empty.
type TracingConfig struct {
	ServiceName string `yaml:"service_name" envconfig:"OTEL_SERVICE_NAME" default:"reelgrab"`
	Endpoint    string `yaml:"endpoint" envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values.
func Load(configPath string) (*Config, error) {
	cfg, err := load(configPath)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// LoadLocal is Load for the command line tool, which has no API surface and
// therefore needs no API key.
func LoadLocal(configPath string) (*Config, error) {
	cfg, err := load(configPath)
	if err != nil {
		return nil, err
	}

	if err := cfg.validateCommon(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Load from YAML file if provided
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// Override with environment variables
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.Server.APIKey == "" {
		return fmt.Errorf("API_KEY is required")
	}
	return c.validateCommon()
}

func (c *Config) validateCommon() error {
	if c.Storage.Target() == "" {
		return fmt.Errorf("STORAGE_PATH or OUTPUT_TARGET is required")
	}
	if c.Download.MaxAttempts < 1 || c.Download.MaxAttempts > 3 {
		return fmt.Errorf("DOWNLOAD_MAX_ATTEMPTS must be between 1 and 3")
	}
	if c.Download.BackoffFactor < 1 {
		return fmt.Errorf("DOWNLOAD_BACKOFF_FACTOR must be at least 1")
	}
	if _, ok := resolutions[c.Download.Resolution]; !ok {
		return fmt.Errorf("DOWNLOAD_RESOLUTION %q is not one of best, 1080p, 720p, 480p, 360p", c.Download.Resolution)
	}
	if c.Listing.MaxItems < 1 {
		return fmt.Errorf("LISTING_MAX_ITEMS must be positive")
	}
	if c.Listing.SecondaryRatio < 0 || c.Listing.SecondaryRatio > 1 {
		return fmt.Errorf("LISTING_SECONDARY_RATIO must be within [0,1]")
	}
	if c.Listing.YouTubeSearchRatio < 0 || c.Listing.YouTubeSearchRatio > 1 {
		return fmt.Errorf("YOUTUBE_SEARCH_RATIO must be within [0,1]")
	}
	if c.Batch.Pacing < 0 {
		return fmt.Errorf("BATCH_PACING must not be negative")
	}
	return nil
}

var resolutions = map[string]string{
	"best":  "best",
	"1080p": "best[height<=1080]/best",
	"720p":  "best[height<=720]/best",
	"480p":  "best[height<=480]/best",
	"360p":  "best[height<=360]/best",
}

// FormatSelector returns the extractor format selector for the configured
// resolution preference.
func (c *DownloadConfig) FormatSelector() string {
	if f, ok := resolutions[c.Resolution]; ok {
		return f
	}
	return "best"
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
