// Package app assembles the resolution and retrieval pipeline from config.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/iconidentify/reelgrab/internal/batch"
	"github.com/iconidentify/reelgrab/internal/config"
	"github.com/iconidentify/reelgrab/internal/domain"
	"github.com/iconidentify/reelgrab/internal/downloader"
	"github.com/iconidentify/reelgrab/internal/listing"
	"github.com/iconidentify/reelgrab/internal/listing/youtubeapi"
	"github.com/iconidentify/reelgrab/internal/resolver"
	"github.com/iconidentify/reelgrab/internal/sink"
)

// Pipeline holds the wired components shared by the server and the CLI.
type Pipeline struct {
	Target   sink.OutputTarget
	Engine   *downloader.Engine
	Resolver *resolver.Resolver
	Batch    *batch.Orchestrator
}

// NewPipeline opens the output target and wires listers, fetchers, the
// retrieval engine and the batch orchestrator.
func NewPipeline(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Pipeline, error) {
	target, err := sink.Open(ctx, cfg.Storage.Target(), sink.Options{
		TempPath:     cfg.Storage.TempPath,
		MinFreeBytes: cfg.Storage.MinFreeBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("open output target: %w", err)
	}

	variants := downloader.NewVariants(cfg.Download)
	engine := downloader.NewEngine(
		variants,
		downloader.NewYTDLPFetcher(cfg.Download, logger.With("component", "ytdlp")),
		downloader.NewHTTPDownloader(cfg.Download, logger.With("component", "http")),
		downloader.RetryConfigFrom(cfg.Download),
		logger.With("component", "engine"),
	)

	if cfg.Download.FFProbePath != "" {
		probe, err := downloader.NewFFProbe(cfg.Download.FFProbePath)
		if err != nil {
			logger.Warn("output verification disabled", "error", err)
		} else {
			engine.SetVerifier(probe)
		}
	}

	res := resolver.New(
		listing.NewYTDLPLister(
			cfg.Download.YTDLPPath,
			variants.For(domain.VariantStandard),
			cfg.Listing.Timeout,
			logger.With("component", "lister"),
		),
		logger.With("component", "resolver"),
	)

	api := youtubeapi.NewClient(youtubeapi.Config{
		BaseURL:     cfg.Listing.YouTubeAPIBaseURL,
		APIKey:      cfg.Listing.YouTubeAPIKey,
		SearchRatio: cfg.Listing.YouTubeSearchRatio,
	}, logger.With("component", "youtubeapi"))
	if api.Available() {
		res.SetSecondary(api, cfg.Listing.SecondaryRatio)
		logger.Info("secondary listing source enabled", "source", "youtube_data_api")
	}

	orch := batch.New(engine, target, cfg.Batch.Pacing, logger.With("component", "batch"))

	logger.Info("pipeline ready",
		"target", target.String(),
		"resolution", cfg.Download.Resolution,
		"max_attempts", cfg.Download.MaxAttempts,
		"pacing", cfg.Batch.Pacing,
	)

	return &Pipeline{
		Target:   target,
		Engine:   engine,
		Resolver: res,
		Batch:    orch,
	}, nil
}

// SetEventEmitter journals resolver, engine and batch events to emitter.
func (p *Pipeline) SetEventEmitter(emitter domain.EventEmitter) {
	p.Resolver.SetEventEmitter(emitter)
	p.Engine.SetEventEmitter(emitter)
	p.Batch.SetEventEmitter(emitter)
}
