// Package batch runs retrieval over a list of items, one at a time.
package batch

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/iconidentify/reelgrab/internal/domain"
	"github.com/iconidentify/reelgrab/internal/sink"
	"github.com/iconidentify/reelgrab/internal/tracing"
)

var tracer = tracing.Tracer("batch")

// Retriever retrieves a single item. *downloader.Engine implements it.
type Retriever interface {
	Retrieve(ctx context.Context, item domain.VideoDescriptor, target sink.OutputTarget, onProgress func(float64)) *domain.RetrievalResult
}

// Orchestrator runs selected items strictly sequentially with a pacing
// delay between them.
type Orchestrator struct {
	retriever Retriever
	target    sink.OutputTarget
	pacing    time.Duration
	events    domain.EventEmitter
	logger    *slog.Logger
}

// New creates an orchestrator writing to target.
func New(retriever Retriever, target sink.OutputTarget, pacing time.Duration, logger *slog.Logger) *Orchestrator {
	if pacing < 0 {
		pacing = 0
	}
	return &Orchestrator{
		retriever: retriever,
		target:    target,
		pacing:    pacing,
		logger:    logger,
	}
}

// SetEventEmitter sets the event emitter for batch journaling.
func (o *Orchestrator) SetEventEmitter(emitter domain.EventEmitter) {
	o.events = emitter
}

// Run retrieves every selected item in order. onItem receives per-item
// progress; onBatch receives the overall percentage, which never decreases.
// Both run on the retrieval goroutine's behalf and must not block for long.
// Items after a cancellation are left untouched.
func (o *Orchestrator) Run(ctx context.Context, items []domain.VideoDescriptor, onItem func(domain.ProgressEvent), onBatch func(float64)) domain.BatchResult {
	ctx, span := tracer.Start(ctx, "batch.Run")
	defer span.End()

	out := append([]domain.VideoDescriptor(nil), items...)
	var order []int
	for i, it := range out {
		if it.Selected {
			order = append(order, i)
		}
	}

	total := len(order)
	result := domain.BatchResult{Total: total}
	span.SetAttributes(attribute.Int("batch.total", total))

	o.logger.Info("batch started", "total", total, "items", len(out))
	o.emit(domain.EventSeverityInfo, "Batch started", domain.EventMetadata{"total": total})

	var overall float64
	report := func(idx, done int, cur, itemPct float64) {
		pct := float64(done)/float64(total)*100 + cur/float64(total)
		if pct > 100 {
			pct = 100
		}
		if pct > overall {
			overall = pct
			if onBatch != nil {
				onBatch(overall)
			}
		}
		if onItem != nil {
			onItem(domain.ProgressEvent{
				ItemIndex:    idx,
				ItemID:       out[idx].ID,
				ItemPercent:  itemPct,
				ItemStatus:   out[idx].Status,
				BatchPercent: overall,
			})
		}
	}

	for k, idx := range order {
		if ctx.Err() != nil {
			result.Canceled = true
			break
		}

		item := &out[idx]
		item.Status = domain.ItemStatusDownloading
		item.ResetProgress()
		item.Error = ""

		res := o.retriever.Retrieve(ctx, *item, o.target, func(pct float64) {
			item.Progress = pct
			report(idx, k, pct, pct)
		})

		item.Status = res.Status
		item.Progress = domain.TerminalProgress(res.Progress, res.Success)
		if res.Success {
			item.FilePath = res.Path
			result.Succeeded++
		} else if res.Err != nil {
			item.Error = res.Err.Error()
		}
		report(idx, k+1, 0, item.Progress)

		if res.Status == domain.ItemStatusCanceled {
			result.Canceled = true
			break
		}

		o.logger.Info("batch item finished",
			"index", k+1,
			"of", total,
			"item_id", item.ID,
			"status", item.Status,
			"attempts", len(res.Attempts),
		)

		if k < total-1 && o.pacing > 0 {
			if err := sleep(ctx, o.pacing); err != nil {
				result.Canceled = true
				break
			}
		}
	}

	result.Status = domain.BatchStatusLine(result.Succeeded, total)
	result.Items = out
	span.SetAttributes(
		attribute.Int("batch.succeeded", result.Succeeded),
		attribute.Bool("batch.canceled", result.Canceled),
	)

	sev := domain.EventSeveritySuccess
	switch {
	case result.Canceled:
		sev = domain.EventSeverityWarning
	case result.Succeeded < total:
		sev = domain.EventSeverityError
	}
	o.logger.Info("batch finished", "status", result.Status, "canceled", result.Canceled)
	o.emit(sev, "Batch finished", domain.EventMetadata{
		"status":    result.Status,
		"succeeded": result.Succeeded,
		"total":     total,
		"canceled":  result.Canceled,
	})
	return result
}

// RetryFailed re-runs exactly the selected items whose progress stayed
// below 100. Selection flags in the returned items are those of the input.
func (o *Orchestrator) RetryFailed(ctx context.Context, items []domain.VideoDescriptor, onItem func(domain.ProgressEvent), onBatch func(float64)) domain.BatchResult {
	subset := append([]domain.VideoDescriptor(nil), items...)
	for i := range subset {
		subset[i].Selected = subset[i].Selected && subset[i].NeedsRetry()
	}

	result := o.Run(ctx, subset, onItem, onBatch)
	for i := range result.Items {
		result.Items[i].Selected = items[i].Selected
	}
	return result
}

// FailedItems returns the selected items whose progress stayed below 100.
func FailedItems(items []domain.VideoDescriptor) []domain.VideoDescriptor {
	var out []domain.VideoDescriptor
	for _, it := range items {
		if it.Selected && it.NeedsRetry() {
			out = append(out, it)
		}
	}
	return out
}

func (o *Orchestrator) emit(sev domain.EventSeverity, msg string, md domain.EventMetadata) {
	if o.events == nil {
		return
	}
	o.events.Emit(domain.Event{
		Severity: sev,
		Category: domain.EventCategoryBatch,
		Source:   "batch",
		Message:  msg,
		Metadata: md.ToJSON(),
	})
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
