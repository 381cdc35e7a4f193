package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"golang.org/x/term"

	"github.com/iconidentify/reelgrab/internal/app"
	"github.com/iconidentify/reelgrab/internal/config"
	"github.com/iconidentify/reelgrab/internal/domain"
	"github.com/iconidentify/reelgrab/internal/tracing"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code so deferred cleanup, including the
// trace exporter flush, happens before the process exits.
func run() int {
	maxItems := flag.Int("max", 0, "Maximum number of videos to list (default from config)")
	out := flag.String("out", "", "Output directory or target URL (fs://dir, b2://key:secret@bucket/prefix)")
	resolution := flag.String("resolution", "", "Resolution preference: best, 1080p, 720p, 480p, 360p")
	listOnly := flag.Bool("list", false, "Resolve and print the listing without downloading")
	configPath := flag.String("config", "", "Path to config file")
	verbose := flag.Bool("v", false, "Verbose logging")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: reelgrab [flags] URL")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("reelgrab %s (built %s)\n", Version, BuildTime)
		return exitOK
	}

	if flag.NArg() != 1 {
		flag.Usage()
		return exitUsage
	}
	url := flag.Arg(0)

	interactive := term.IsTerminal(int(os.Stdout.Fd()))
	logger := newLogger(interactive, *verbose)
	slog.SetDefault(logger)

	// Flags take precedence over the config file and environment
	overrides := map[string]string{
		"OUTPUT_TARGET":       *out,
		"DOWNLOAD_RESOLUTION": *resolution,
	}
	if *out == "" && os.Getenv("OUTPUT_TARGET") == "" && os.Getenv("STORAGE_PATH") == "" {
		overrides["STORAGE_PATH"] = "."
	}
	if *maxItems > 0 {
		overrides["LISTING_MAX_ITEMS"] = strconv.Itoa(*maxItems)
	}
	for k, v := range overrides {
		if v != "" {
			os.Setenv(k, v)
		}
	}

	cfg, err := config.LoadLocal(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return exitFailed
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			fmt.Fprintln(os.Stderr, "\nCanceling: the current transfer is aborted, remaining items are skipped")
			cancel()
		case <-ctx.Done():
		}
	}()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
	}
	defer shutdownTracing()

	pipeline, err := app.NewPipeline(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		return exitFailed
	}

	fmt.Printf("Resolving %s ...\n", url)
	res, err := pipeline.Resolver.ResolveListing(ctx, url, cfg.Listing.MaxItems)
	if err != nil {
		if ctx.Err() != nil {
			return exitCanceled
		}
		logger.Error("resolve failed", "error", err)
		return exitFailed
	}
	if len(res.Items) == 0 {
		fmt.Println(domain.ErrNoValidItems.Error())
		return exitFailed
	}

	fmt.Println(res.String())
	if *listOnly {
		for i, it := range res.Items {
			fmt.Println(listingLine(i, it))
		}
		return exitOK
	}

	fmt.Printf("Saving to %s\n\n", pipeline.Target)

	bar := newProgressLine(os.Stdout, len(res.Items), interactive)
	result := pipeline.Batch.Run(ctx, res.Items, bar.Item, nil)
	bar.Done()

	fmt.Println()
	fmt.Println(summary(result))
	for _, it := range result.Items {
		if it.Status == domain.ItemStatusFailed {
			fmt.Printf("  failed: %s  %s\n", it.URL, it.Error)
		}
	}
	return exitCode(result)
}

const (
	exitOK       = 0
	exitFailed   = 1
	exitUsage    = 2
	exitCanceled = 130
)

func exitCode(result domain.BatchResult) int {
	switch {
	case result.Canceled:
		return exitCanceled
	case result.Succeeded < result.Total:
		return exitFailed
	}
	return exitOK
}

func newLogger(interactive, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	} else if interactive {
		// Keep the terminal for the progress line
		level = slog.LevelWarn
	}
	opts := &slog.HandlerOptions{Level: level}
	if interactive {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
