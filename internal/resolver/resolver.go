// Package resolver turns a channel or profile URL into a filtered list of
// downloadable videos, walking the fallback candidates when the primary URL
// yields nothing.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/iconidentify/reelgrab/internal/classifier"
	"github.com/iconidentify/reelgrab/internal/domain"
	"github.com/iconidentify/reelgrab/internal/listing"
	"github.com/iconidentify/reelgrab/internal/platform"
	"github.com/iconidentify/reelgrab/internal/tracing"
)

var tracer = tracing.Tracer("resolver")

// DefaultMaxItems is used when a caller passes a non-positive limit.
const DefaultMaxItems = 50

// Source names where a resolution came from.
type Source string

const (
	SourcePrimary   Source = "primary"
	SourceFallback  Source = "fallback"
	SourceSecondary Source = "secondary"
	SourceNone      Source = "none"
)

// Resolution is a resolved listing and the candidate that produced it.
type Resolution struct {
	Candidate domain.CandidateURL     `json:"candidate"`
	Items     []domain.VideoDescriptor `json:"items"`
	Source    Source                   `json:"source"`
	Tried     int                      `json:"tried"`
}

// Resolver resolves listings through a primary lister and an optional
// secondary lister for long-form video platforms.
type Resolver struct {
	primary        listing.Lister
	secondary      listing.Lister
	secondaryRatio float64
	events         domain.EventEmitter
	logger         *slog.Logger
}

// New creates a resolver backed by primary.
func New(primary listing.Lister, logger *slog.Logger) *Resolver {
	return &Resolver{
		primary: primary,
		logger:  logger,
	}
}

// SetSecondary installs a lister consulted first for long-form video URLs.
// Its result is kept without running the cascade when it reaches ratio of
// the requested count.
func (r *Resolver) SetSecondary(l listing.Lister, ratio float64) {
	r.secondary = l
	r.secondaryRatio = ratio
}

// SetEventEmitter sets the event emitter for resolution journaling.
func (r *Resolver) SetEventEmitter(emitter domain.EventEmitter) {
	r.events = emitter
}

// Resolve returns up to maxItems valid videos for raw, in extractor order.
// The only errors are an invalid URL and context cancellation; a listing
// with no valid items is an empty result.
func (r *Resolver) Resolve(ctx context.Context, raw string, maxItems int) ([]domain.VideoDescriptor, error) {
	res, err := r.ResolveListing(ctx, raw, maxItems)
	if err != nil {
		return nil, err
	}
	return res.Items, nil
}

// ResolveListing is Resolve with the winning candidate attached.
func (r *Resolver) ResolveListing(ctx context.Context, raw string, maxItems int) (res *Resolution, err error) {
	ctx, span := tracer.Start(ctx, "resolver.Resolve")
	defer func() { tracing.End(span, &err) }()

	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}

	primary, err := platform.Normalize(raw)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("url.canonical", primary.CanonicalURL),
		attribute.String("platform", string(primary.Platform)),
		attribute.Int("max_items", maxItems),
	)

	logger := r.logger.With("url", primary.CanonicalURL, "platform", primary.Platform)
	start := time.Now()

	var secondary []domain.VideoDescriptor
	if r.secondary != nil && primary.Platform == domain.PlatformLongVideo {
		secondary = r.fromSecondary(ctx, primary, maxItems, logger)
		if float64(len(secondary)) >= float64(maxItems)*r.secondaryRatio && len(secondary) > 0 {
			return r.done(primary, secondary, SourceSecondary, 0, start, logger), nil
		}
	}

	res, err = r.cascade(ctx, primary, maxItems, logger)
	if err != nil {
		return nil, err
	}
	if len(secondary) > len(res.Items) {
		logger.Info("secondary listing longer than cascade",
			"secondary", len(secondary),
			"cascade", len(res.Items),
		)
		return r.done(primary, secondary, SourceSecondary, res.Tried, start, logger), nil
	}
	if len(res.Items) == 0 {
		logger.Warn("no valid items found", "candidates_tried", res.Tried)
		r.emit(domain.EventSeverityWarning, "No valid items found", domain.EventMetadata{
			"url":              primary.CanonicalURL,
			"candidates_tried": res.Tried,
			"error":            domain.ErrNoValidItems.Error(),
		})
		return res, nil
	}
	return r.done(res.Candidate, res.Items, res.Source, res.Tried, start, logger), nil
}

func (r *Resolver) done(c domain.CandidateURL, items []domain.VideoDescriptor, src Source, tried int, start time.Time, logger *slog.Logger) *Resolution {
	logger.Info("listing resolved",
		"candidate", c.CanonicalURL,
		"rank", c.Rank,
		"source", src,
		"items", len(items),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	r.emit(domain.EventSeveritySuccess, "Listing resolved", domain.EventMetadata{
		"url":    c.CanonicalURL,
		"rank":   c.Rank,
		"source": string(src),
		"items":  len(items),
	})
	return &Resolution{Candidate: c, Items: items, Source: src, Tried: tried}
}

// cascade runs the probe, the primary extraction and then the fallbacks.
func (r *Resolver) cascade(ctx context.Context, primary domain.CandidateURL, maxItems int, logger *slog.Logger) (*Resolution, error) {
	tried := 0
	skipPrimary := false

	if err := r.Probe(ctx, primary.CanonicalURL); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if classifier.IsNotFound(err) {
			logger.Warn("primary candidate not found, trying fallbacks", "error", err)
			skipPrimary = true
		} else {
			logger.Debug("probe inconclusive", "error", err, "kind", classifier.Classify(err).Kind)
		}
	}

	if !skipPrimary {
		tried++
		items := r.extract(ctx, primary, maxItems, logger)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if len(items) > 0 {
			return &Resolution{Candidate: primary, Items: items, Source: SourcePrimary, Tried: tried}, nil
		}
	}

	fallbacks := platform.Fallbacks(primary)
	for _, cand := range fallbacks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tried++
		logger.Info("trying fallback candidate",
			"candidate", cand.CanonicalURL,
			"rank", cand.Rank,
			"of", len(fallbacks),
		)
		items := r.extract(ctx, cand, maxItems, logger)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if len(items) > 0 {
			return &Resolution{Candidate: cand, Items: items, Source: SourceFallback, Tried: tried}, nil
		}
	}

	return &Resolution{Candidate: primary, Source: SourceNone, Tried: tried}, nil
}

// Probe lists a single entry of url. The listing error is returned as is
// so callers can classify it.
func (r *Resolver) Probe(ctx context.Context, url string) error {
	ctx, span := tracer.Start(ctx, "resolver.Probe")
	var err error
	defer func() { tracing.End(span, &err) }()

	_, err = r.primary.List(ctx, url, 1)
	return err
}

// extract lists and filters one candidate. Listing errors are logged and
// reported as an empty result.
func (r *Resolver) extract(ctx context.Context, cand domain.CandidateURL, maxItems int, logger *slog.Logger) []domain.VideoDescriptor {
	entries, err := r.primary.List(ctx, cand.CanonicalURL, maxItems)
	if err != nil {
		if ctx.Err() == nil {
			class := classifier.Classify(err)
			logger.Warn("candidate extraction failed",
				"candidate", cand.CanonicalURL,
				"rank", cand.Rank,
				"kind", class.Kind,
				"error", err,
			)
			r.emit(domain.EventSeverityWarning, "Candidate extraction failed", domain.EventMetadata{
				"url":   cand.CanonicalURL,
				"rank":  cand.Rank,
				"kind":  string(class.Kind),
				"error": err.Error(),
			})
		}
		return nil
	}

	items := platform.FilterEntries(entries, maxItems)
	logger.Debug("candidate extracted",
		"candidate", cand.CanonicalURL,
		"entries", len(entries),
		"valid", len(items),
	)
	return items
}

func (r *Resolver) fromSecondary(ctx context.Context, primary domain.CandidateURL, maxItems int, logger *slog.Logger) []domain.VideoDescriptor {
	entries, err := r.secondary.List(ctx, primary.CanonicalURL, maxItems)
	if err != nil {
		logger.Warn("secondary listing failed", "error", err)
		return nil
	}
	items := platform.FilterEntries(entries, maxItems)
	logger.Debug("secondary listing", "entries", len(entries), "valid", len(items))
	return items
}

func (r *Resolver) emit(sev domain.EventSeverity, msg string, md domain.EventMetadata) {
	if r.events == nil {
		return
	}
	r.events.Emit(domain.Event{
		Severity: sev,
		Category: domain.EventCategoryResolve,
		Source:   "resolver",
		Message:  msg,
		Metadata: md.ToJSON(),
	})
}

// String describes a resolution for logs and CLI output.
func (res *Resolution) String() string {
	if res == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%d items from %s (%s, rank %d)", len(res.Items), res.Candidate.CanonicalURL, res.Source, res.Candidate.Rank)
}
