package downloader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/iconidentify/reelgrab/internal/config"
)

var directMediaExts = map[string]bool{
	".mp4": true, ".m4v": true, ".webm": true, ".mov": true, ".mkv": true,
}

// IsDirectMedia reports whether rawURL points straight at a media file that
// can be fetched without an extractor.
func IsDirectMedia(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	return directMediaExts[strings.ToLower(path.Ext(u.Path))]
}

// HTTPDownloader fetches direct media URLs over plain HTTP.
type HTTPDownloader struct {
	// client is used for short requests (Inspect) with overall timeout
	client *http.Client
	// streamClient is used for streaming downloads without overall timeout
	streamClient *http.Client
	readTimeout  time.Duration
	logger       *slog.Logger
}

// NewHTTPDownloader creates a new HTTP-based media fetcher.
func NewHTTPDownloader(cfg config.DownloadConfig, logger *slog.Logger) *HTTPDownloader {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	streamTransport := &http.Transport{
		Proxy:                 proxyFunc(cfg.Proxy),
		ResponseHeaderTimeout: timeout,
	}

	return &HTTPDownloader{
		client: &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{Proxy: proxyFunc(cfg.Proxy)},
		},
		// No Timeout - stalls are caught by the per-attempt idle watchdog
		streamClient: &http.Client{
			Transport: streamTransport,
		},
		readTimeout: cfg.ReadTimeout,
		logger:      logger,
	}
}

func proxyFunc(proxy string) func(*http.Request) (*url.URL, error) {
	if proxy == "" {
		return http.ProxyFromEnvironment
	}
	u, err := url.Parse(proxy)
	if err != nil {
		return http.ProxyFromEnvironment
	}
	return http.ProxyURL(u)
}

func applyHeaders(req *http.Request, cfg RequestConfig) {
	if cfg.UserAgent != "" {
		req.Header.Set("User-Agent", cfg.UserAgent)
	}
	for _, h := range cfg.Headers {
		req.Header.Set(h.Name, h.Value)
	}
}

// Inspect issues a HEAD request and reports what the server says the media
// is. Duration is never known for direct media.
func (d *HTTPDownloader) Inspect(ctx context.Context, rawURL string, cfg RequestConfig) (*MediaInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	applyHeaders(req, cfg)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, URL: rawURL}
	}

	return &MediaInfo{
		Ext:             strings.TrimPrefix(path.Ext(req.URL.Path), "."),
		ContentType:     resp.Header.Get("Content-Type"),
		DurationSeconds: UnknownDuration,
		Size:            resp.ContentLength,
	}, nil
}

// Fetch downloads the media in a single attempt. Retries belong to the
// engine. The attempt is aborted once no data has arrived for the idle
// timeout: the variant's socket timeout or the configured read timeout,
// whichever is shorter.
func (d *HTTPDownloader) Fetch(ctx context.Context, fr FetchRequest, onSignal func(ProgressSignal)) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	idle := d.idleTimeout(fr.Config)
	watchdog := startIdleWatchdog(idle, cancel)
	defer watchdog.stop()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fr.URL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	applyHeaders(req, fr.Config)
	req.Header.Set("Accept", "video/mp4,video/*;q=0.9,*/*;q=0.8")

	resp, err := d.streamClient.Do(req)
	if err != nil {
		return "", watchdog.wrap(fmt.Errorf("send request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &HTTPStatusError{StatusCode: resp.StatusCode, URL: fr.URL}
	}

	dest := filepath.Join(fr.Dir, fr.Name+extFor(req.URL.Path, resp.Header.Get("Content-Type")))
	tmp := dest + ".part"

	out, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}

	watchdog.touch()
	pr := newProgressReader(resp.Body, resp.ContentLength, watchdog.touch, d.logger, fr.URL, onSignal)
	_, err = io.Copy(out, pr)
	pr.Close()
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return "", watchdog.wrap(fmt.Errorf("write media: %w", err))
	}

	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("finalize file: %w", err)
	}

	if onSignal != nil {
		onSignal(ProgressSignal{Status: SignalFinished, DownloadedBytes: pr.downloaded, TotalBytes: pr.total})
	}
	return dest, nil
}

func (d *HTTPDownloader) idleTimeout(cfg RequestConfig) time.Duration {
	idle := cfg.SocketTimeout
	if d.readTimeout > 0 && (idle <= 0 || d.readTimeout < idle) {
		idle = d.readTimeout
	}
	return idle
}

// idleWatchdog cancels an attempt when touch has not been called within
// timeout. A zero timeout disables it.
type idleWatchdog struct {
	timeout time.Duration
	timer   *time.Timer
	fired   atomic.Bool
}

func startIdleWatchdog(timeout time.Duration, cancel context.CancelFunc) *idleWatchdog {
	w := &idleWatchdog{timeout: timeout}
	if timeout > 0 {
		w.timer = time.AfterFunc(timeout, func() {
			w.fired.Store(true)
			cancel()
		})
	}
	return w
}

func (w *idleWatchdog) touch() {
	if w.timer != nil && !w.fired.Load() {
		w.timer.Reset(w.timeout)
	}
}

func (w *idleWatchdog) stop() {
	if w.timer != nil {
		w.timer.Stop()
	}
}

// wrap replaces the cancellation caused by the watchdog with a stall error.
func (w *idleWatchdog) wrap(err error) error {
	if !w.fired.Load() {
		return err
	}
	return fmt.Errorf("download stalled: no data received for %v: %w", w.timeout, os.ErrDeadlineExceeded)
}

func extFor(urlPath, contentType string) string {
	if ext := strings.ToLower(path.Ext(urlPath)); directMediaExts[ext] {
		return ext
	}
	if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
		return exts[0]
	}
	return ".mp4"
}

// progressReader wraps an io.ReadCloser to track download progress. onData
// is called whenever bytes arrive.
type progressReader struct {
	reader     io.ReadCloser
	total      int64
	downloaded int64
	onData     func()
	lastLog    time.Time
	logger     *slog.Logger
	url        string
	onSignal   func(ProgressSignal)
	mu         sync.Mutex
	closed     bool
}

func newProgressReader(r io.ReadCloser, total int64, onData func(), logger *slog.Logger, url string, onSignal func(ProgressSignal)) *progressReader {
	return &progressReader{
		reader:   r,
		total:    total,
		onData:   onData,
		lastLog:  time.Now(),
		logger:   logger,
		url:      url,
		onSignal: onSignal,
	}
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.reader.Read(buf)
	if n == 0 {
		return n, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.downloaded += int64(n)
	if p.onData != nil {
		p.onData()
	}

	if p.onSignal != nil {
		p.onSignal(ProgressSignal{
			Status:          SignalDownloading,
			DownloadedBytes: p.downloaded,
			TotalBytes:      p.total,
		})
	}

	// Log progress every 30 seconds
	if time.Since(p.lastLog) > 30*time.Second {
		p.logProgress()
		p.lastLog = time.Now()
	}

	return n, err
}

func (p *progressReader) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true

	// Log final progress
	if p.downloaded > 0 {
		p.logProgress()
	}
	p.mu.Unlock()

	return p.reader.Close()
}

func (p *progressReader) logProgress() {
	if p.total > 0 {
		pct := float64(p.downloaded) / float64(p.total) * 100
		p.logger.Info("download progress",
			"url", p.url,
			"downloaded", humanize.Bytes(uint64(p.downloaded)),
			"total", humanize.Bytes(uint64(p.total)),
			"percent", fmt.Sprintf("%.1f%%", pct),
		)
	} else {
		p.logger.Info("download progress",
			"url", p.url,
			"downloaded", humanize.Bytes(uint64(p.downloaded)),
		)
	}
}
