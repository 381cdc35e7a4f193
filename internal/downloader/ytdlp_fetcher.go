package downloader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"github.com/iconidentify/reelgrab/internal/config"
)

// YTDLPFetcher retrieves media through the yt-dlp extractor.
type YTDLPFetcher struct {
	binary           string
	progressInterval time.Duration
	logger           *slog.Logger
}

// NewYTDLPFetcher creates a fetcher that runs the configured yt-dlp binary.
func NewYTDLPFetcher(cfg config.DownloadConfig, logger *slog.Logger) *YTDLPFetcher {
	interval := cfg.ProgressInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &YTDLPFetcher{
		binary:           cfg.YTDLPPath,
		progressInterval: interval,
		logger:           logger,
	}
}

// command builds the identity part of a yt-dlp invocation from cfg.
func (f *YTDLPFetcher) command(cfg RequestConfig) *ytdlp.Command {
	return NewCommand(f.binary, cfg)
}

// NewCommand returns a yt-dlp command carrying the client identity of cfg:
// user agent, headers and proxy.
func NewCommand(binary string, cfg RequestConfig) *ytdlp.Command {
	cmd := ytdlp.New()
	if binary != "" {
		cmd.SetExecutable(binary)
	}
	if cfg.UserAgent != "" {
		cmd.UserAgent(cfg.UserAgent)
	}
	for _, h := range cfg.Headers {
		cmd.AddHeaders(h.String())
	}
	if cfg.Proxy != "" {
		cmd.Proxy(cfg.Proxy)
	}
	return cmd
}

// TransportArgs renders the socket and cookie parameters of cfg as raw
// yt-dlp flags.
func TransportArgs(cfg RequestConfig) []string {
	var args []string
	if cfg.SocketTimeout > 0 {
		args = append(args, "--socket-timeout", strconv.Itoa(int(cfg.SocketTimeout/time.Second)))
	}
	if cfg.ChunkSize > 0 {
		args = append(args, "--http-chunk-size", strconv.FormatInt(cfg.ChunkSize, 10))
	}
	if cfg.CookiesFile != "" {
		args = append(args, "--cookies", cfg.CookiesFile)
	}
	return args
}

type mediaJSON struct {
	Title    string  `json:"title"`
	Ext      string  `json:"ext"`
	VCodec   string  `json:"vcodec"`
	Duration float64 `json:"duration"`
	Filesize int64   `json:"filesize"`
}

// Inspect dumps the media metadata without downloading it.
func (f *YTDLPFetcher) Inspect(ctx context.Context, url string, cfg RequestConfig) (*MediaInfo, error) {
	args := append(TransportArgs(cfg), "--dump-single-json", "--skip-download", "--no-playlist", url)

	res, err := f.command(cfg).Run(ctx, args...)
	if err != nil {
		return nil, RunError(err, res)
	}

	var m mediaJSON
	if err := json.Unmarshal([]byte(res.Stdout), &m); err != nil {
		return nil, fmt.Errorf("decode media info: %w", err)
	}

	return &MediaInfo{
		Title:           m.Title,
		Ext:             m.Ext,
		VCodec:          m.VCodec,
		DurationSeconds: m.Duration,
		Size:            m.Filesize,
	}, nil
}

// Fetch downloads url into req.Dir as <req.Name>.<ext>.
func (f *YTDLPFetcher) Fetch(ctx context.Context, req FetchRequest, onSignal func(ProgressSignal)) (string, error) {
	cfg := req.Config
	cmd := f.command(cfg).
		Output(filepath.Join(req.Dir, req.Name+".%(ext)s")).
		RestrictFilenames().
		ForceOverwrites().
		Retries(strconv.Itoa(cfg.Retries)).
		FragmentRetries(strconv.Itoa(cfg.FragmentRetries))

	if cfg.Format != "" {
		cmd.Format(cfg.Format)
	}
	if cfg.Concurrency > 0 {
		cmd.ConcurrentFragments(cfg.Concurrency)
	}

	if onSignal != nil {
		cmd.ProgressFunc(f.progressInterval, func(u ytdlp.ProgressUpdate) {
			status := SignalDownloading
			switch u.Status {
			case ytdlp.ProgressStatusFinished:
				status = SignalFinished
			case ytdlp.ProgressStatusPostProcessing:
				status = SignalPostProcessing
			}
			onSignal(ProgressSignal{
				Status:          status,
				DownloadedBytes: int64(u.DownloadedBytes),
				TotalBytes:      int64(u.TotalBytes),
				FragmentIndex:   u.FragmentIndex,
				FragmentCount:   u.FragmentCount,
			})
		})
	}

	args := append(TransportArgs(cfg), "--no-playlist", req.URL)
	res, err := cmd.Run(ctx, args...)
	if err != nil {
		return "", RunError(err, res)
	}

	file, err := findOutput(req.Dir, req.Name)
	if err != nil {
		return "", err
	}

	f.logger.Debug("yt-dlp finished", "url", req.URL, "file", file, "variant", cfg.Variant)
	return file, nil
}

// findOutput locates the finished file yt-dlp wrote for name.
func findOutput(dir, name string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, name+".*"))
	if err != nil {
		return "", fmt.Errorf("scan output: %w", err)
	}

	var best string
	var bestSize int64
	for _, m := range matches {
		if strings.HasSuffix(m, ".part") || strings.HasSuffix(m, ".ytdl") || strings.HasSuffix(m, ".json") {
			continue
		}
		fi, err := os.Stat(m)
		if err != nil || fi.IsDir() {
			continue
		}
		if fi.Size() > bestSize {
			best, bestSize = m, fi.Size()
		}
	}

	if best == "" {
		return "", errors.New("no output file produced")
	}
	return best, nil
}

// RunError folds the tail of yt-dlp's stderr into err so the classifier can
// see HTTP status lines.
func RunError(err error, res *ytdlp.Result) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if res == nil {
		return fmt.Errorf("yt-dlp: %w", err)
	}
	if line := lastErrorLine(res.Stderr); line != "" {
		return fmt.Errorf("yt-dlp: %s: %w", line, err)
	}
	return fmt.Errorf("yt-dlp: %w", err)
}

func lastErrorLine(stderr string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if strings.HasPrefix(line, "ERROR:") {
			return line
		}
	}
	if len(lines) > 0 {
		return strings.TrimSpace(lines[len(lines)-1])
	}
	return ""
}
