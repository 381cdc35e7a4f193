package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iconidentify/reelgrab/internal/api"
	"github.com/iconidentify/reelgrab/internal/api/handler"
	"github.com/iconidentify/reelgrab/internal/app"
	"github.com/iconidentify/reelgrab/internal/config"
	"github.com/iconidentify/reelgrab/internal/domain"
	"github.com/iconidentify/reelgrab/internal/repository"
	"github.com/iconidentify/reelgrab/internal/service"
	"github.com/iconidentify/reelgrab/internal/sink"
	"github.com/iconidentify/reelgrab/internal/tracing"
	"github.com/iconidentify/reelgrab/internal/worker"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("reelgrab-server %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	// Setup logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting reelgrab server",
		"version", Version,
		"build_time", BuildTime,
	)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.Storage.TempPath, 0755); err != nil {
		logger.Error("failed to create temp directory", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
	}
	defer shutdownTracing()

	events, err := service.NewEventService(service.EventServiceConfig{
		RingBufferSize: cfg.Events.RingBufferSize,
		SQLitePath:     cfg.Events.SQLitePath,
		RetentionDays:  cfg.Events.RetentionDays,
	}, logger.With("component", "events"))
	if err != nil {
		logger.Error("failed to open event journal", "error", err)
		os.Exit(1)
	}
	defer events.Close()

	pipeline, err := app.NewPipeline(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}
	pipeline.SetEventEmitter(events)

	// Initialize repositories and services
	jobRepo := repository.NewInMemoryJobRepository()
	sessions := service.NewSessionService(
		repository.NewInMemorySessionRepository(),
		jobRepo,
		pipeline.Resolver,
		pipeline.Batch,
		service.SessionServiceConfig{
			DefaultMaxItems: cfg.Listing.MaxItems,
			MaxRetries:      cfg.Worker.MaxRetries,
			ListingTimeout:  cfg.Listing.Timeout,
		},
		logger.With("component", "sessions"),
	)
	sessions.SetEventEmitter(events)
	sessions.SetProgressPublisher(events)

	// Local targets report disk usage in /stats
	storagePath := ""
	if fs, ok := pipeline.Target.(*sink.FSTarget); ok {
		storagePath = fs.Dir()
	}

	router := api.NewRouter(
		handler.NewSessionHandler(sessions, logger),
		handler.NewEventHandler(events, logger),
		handler.NewHealthHandler(jobRepo, storagePath, sessions, events),
		cfg.Server.APIKey,
	)

	// Initialize worker pool
	pool := worker.NewPool(
		worker.Config{
			Workers:      cfg.Worker.Count,
			PollInterval: cfg.Worker.PollInterval,
		},
		jobRepo,
		sessions,
		logger,
	)
	pool.Start()

	// Prune the event journal daily
	cleanupCtx, cancelCleanup := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			if err := events.CleanupOldEvents(cleanupCtx); err != nil {
				logger.Warn("event cleanup failed", "error", err)
			}
			select {
			case <-cleanupCtx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	// Setup HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	events.EmitInfo(domain.EventCategorySystem, "server", "Server started", domain.EventMetadata{
		"addr":    srv.Addr,
		"version": Version,
	})

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancelCleanup()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop accepting new requests
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	// Stop workers; running batches are canceled
	if err := pool.Stop(25 * time.Second); err != nil {
		logger.Error("worker pool shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
