package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/iconidentify/reelgrab/internal/classifier"
	"github.com/iconidentify/reelgrab/internal/domain"
	"github.com/iconidentify/reelgrab/internal/sink"
	"github.com/iconidentify/reelgrab/internal/tracing"
)

var tracer = tracing.Tracer("downloader")

// Engine retrieves single items with a bounded, adaptive retry loop.
type Engine struct {
	variants *Variants
	extract  Fetcher
	direct   Fetcher
	retry    RetryConfig
	verifier Verifier
	events   domain.EventEmitter
	logger   *slog.Logger
}

// NewEngine creates a retrieval engine. extract handles platform pages;
// direct, when non-nil, handles URLs that already point at a media file.
func NewEngine(variants *Variants, extract, direct Fetcher, retry RetryConfig, logger *slog.Logger) *Engine {
	if retry.MaxAttempts < 1 || retry.MaxAttempts > domain.MaxAttempts {
		retry.MaxAttempts = domain.MaxAttempts
	}
	return &Engine{
		variants: variants,
		extract:  extract,
		direct:   direct,
		retry:    retry,
		logger:   logger,
	}
}

// SetVerifier installs a check run on every fetched file before commit.
func (e *Engine) SetVerifier(v Verifier) {
	e.verifier = v
}

// SetEventEmitter sets the event emitter for attempt journaling.
func (e *Engine) SetEventEmitter(emitter domain.EventEmitter) {
	e.events = emitter
}

func (e *Engine) fetcherFor(url string) Fetcher {
	if e.direct != nil && IsDirectMedia(url) {
		return e.direct
	}
	return e.extract
}

// Retrieve downloads item into target. It never returns an error: every
// outcome, including cancellation and an exhausted budget, is described by
// the result. onProgress receives per-attempt monotonic percentages on a
// separate goroutine and has returned before Retrieve does.
func (e *Engine) Retrieve(ctx context.Context, item domain.VideoDescriptor, target sink.OutputTarget, onProgress func(float64)) (result *domain.RetrievalResult) {
	ctx, span := tracer.Start(ctx, "downloader.Retrieve")
	span.SetAttributes(
		attribute.String("item.id", item.ID),
		attribute.String("item.url", item.URL),
	)
	var spanErr error
	defer func() { tracing.End(span, &spanErr) }()

	start := time.Now()
	logger := e.logger.With("item_id", item.ID, "url", item.URL)

	pump := newProgressPump(onProgress)
	tracker := newProgressTracker(pump)

	result = &domain.RetrievalResult{ItemID: item.ID, Status: domain.ItemStatusFailed}
	defer func() {
		pump.close()
		result.Progress = domain.TerminalProgress(tracker.value(), result.Success)
		result.Elapsed = time.Since(start)
		spanErr = result.Err
		span.SetAttributes(
			attribute.String("item.status", string(result.Status)),
			attribute.Int("attempts", len(result.Attempts)),
		)
	}()

	dir, err := target.Prepare(ctx, item.ID)
	if err != nil {
		result.Err = domain.NewItemError(item.ID, "prepare output", err)
		logger.Error("output target unavailable", "target", target.String(), "error", err)
		e.emit(domain.EventSeverityError, "Output target unavailable", item, domain.EventMetadata{"error": err.Error()})
		return result
	}

	fetcher := e.fetcherFor(item.URL)
	cfg := e.variants.For(domain.VariantStandard)
	var lastErr error

	for n := 1; n <= e.retry.MaxAttempts; n++ {
		if n > 1 {
			if err := sleep(ctx, e.retry.Delay(n-1)); err != nil {
				e.cancel(result, item, err)
				return result
			}

			info, ierr := fetcher.Inspect(ctx, item.URL, cfg.Clone())
			if ierr == nil && !info.IsVideo() {
				e.rejectNonVideo(result, item, "pre-flight", info)
				return result
			}
			if ierr != nil {
				logger.Debug("pre-flight inconclusive", "error", ierr)
			}
		}

		if err := ctx.Err(); err != nil {
			e.cancel(result, item, err)
			return result
		}

		attempt := domain.RetrievalAttempt{
			Number:    n,
			Variant:   cfg.Variant,
			StartedAt: time.Now(),
		}
		tracker.reset()

		path, err := fetcher.Fetch(ctx, FetchRequest{
			URL:    item.URL,
			Dir:    dir,
			Name:   sink.SafeName(item.ID),
			Config: cfg.Clone(),
		}, tracker.observe)
		if err == nil && e.verifier != nil {
			info, verr := e.verifier.Verify(ctx, path)
			if verr == nil && !info.IsVideo() {
				os.Remove(path)
				attempt.Outcome = domain.OutcomeFatal
				attempt.Error = domain.ErrNonVideoContent.Error()
				attempt.Duration = time.Since(attempt.StartedAt)
				result.Attempts = append(result.Attempts, attempt)
				e.rejectNonVideo(result, item, "verify output", info)
				return result
			}
			if verr != nil {
				logger.Debug("output verification inconclusive", "error", verr)
			}
		}
		if err == nil {
			var final string
			final, err = target.Commit(ctx, item.ID, path)
			if err == nil {
				tracker.finish()
				attempt.Outcome = domain.OutcomeSuccess
				attempt.Duration = time.Since(attempt.StartedAt)
				result.Attempts = append(result.Attempts, attempt)
				result.Success = true
				result.Status = domain.ItemStatusCompleted
				result.Path = final
				logger.Info("item retrieved", "attempt", n, "variant", cfg.Variant, "path", final)
				e.emit(domain.EventSeveritySuccess, "Item retrieved", item, domain.EventMetadata{
					"attempt": n,
					"variant": string(cfg.Variant),
					"path":    final,
				})
				return result
			}
			err = fmt.Errorf("commit output: %w", err)
		}
		attempt.Duration = time.Since(attempt.StartedAt)

		if ctx.Err() != nil {
			attempt.Outcome = domain.OutcomeFatal
			attempt.Error = err.Error()
			result.Attempts = append(result.Attempts, attempt)
			e.cancel(result, item, ctx.Err())
			return result
		}

		class := classifier.Classify(err)
		attempt.Classification = &class
		attempt.Error = err.Error()
		attempt.Outcome = domain.OutcomeRetriable
		if n == e.retry.MaxAttempts {
			attempt.Outcome = domain.OutcomeFatal
		}
		result.Attempts = append(result.Attempts, attempt)
		lastErr = err

		next := e.variants.Next(cfg, class.Mutation)
		logger.Warn("retrieval attempt failed",
			"attempt", n,
			"variant", cfg.Variant,
			"kind", class.Kind,
			"next_variant", next.Variant,
			"error", err,
		)
		e.emit(domain.EventSeverityWarning, "Retrieval attempt failed", item, domain.EventMetadata{
			"attempt":      n,
			"variant":      string(cfg.Variant),
			"kind":         string(class.Kind),
			"next_variant": string(next.Variant),
			"error":        err.Error(),
		})
		cfg = next
	}

	result.Err = domain.NewItemError(item.ID, "retrieve",
		fmt.Errorf("%w after %d attempts: %w", domain.ErrRetryBudgetExhausted, len(result.Attempts), lastErr))
	logger.Error("retry budget exhausted", "attempts", len(result.Attempts), "error", lastErr)
	e.emit(domain.EventSeverityError, "Retry budget exhausted", item, domain.EventMetadata{
		"attempts": len(result.Attempts),
		"error":    errString(lastErr),
	})
	return result
}

func (e *Engine) rejectNonVideo(result *domain.RetrievalResult, item domain.VideoDescriptor, op string, info *MediaInfo) {
	result.Status = domain.ItemStatusNonVideo
	result.Err = domain.NewItemError(item.ID, op, domain.ErrNonVideoContent)
	e.logger.Warn("item rejected as non-video",
		"item_id", item.ID,
		"stage", op,
		"ext", info.Ext,
		"vcodec", info.VCodec,
		"duration", info.DurationSeconds,
	)
	e.emit(domain.EventSeverityWarning, "Item is not a video", item, domain.EventMetadata{
		"stage":    op,
		"ext":      info.Ext,
		"vcodec":   info.VCodec,
		"duration": info.DurationSeconds,
	})
}

func (e *Engine) cancel(result *domain.RetrievalResult, item domain.VideoDescriptor, err error) {
	result.Status = domain.ItemStatusCanceled
	result.Err = domain.NewItemError(item.ID, "retrieve", err)
	e.logger.Info("retrieval canceled", "item_id", item.ID, "attempts", len(result.Attempts))
}

func (e *Engine) emit(sev domain.EventSeverity, msg string, item domain.VideoDescriptor, md domain.EventMetadata) {
	if e.events == nil {
		return
	}
	if md == nil {
		md = domain.EventMetadata{}
	}
	md["item_id"] = item.ID
	md["url"] = item.URL
	e.events.Emit(domain.Event{
		Severity: sev,
		Category: domain.EventCategoryRetrieve,
		Source:   "engine",
		Message:  msg,
		Metadata: md.ToJSON(),
	})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// IsCanceled reports whether a result ended because its context was done.
func IsCanceled(r *domain.RetrievalResult) bool {
	return r != nil && (r.Status == domain.ItemStatusCanceled ||
		errors.Is(r.Err, context.Canceled) || errors.Is(r.Err, context.DeadlineExceeded))
}
