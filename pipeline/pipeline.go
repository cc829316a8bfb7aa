// Package pipeline composes capture, extraction, and validation into the
// per-URL item pipeline and the batch orchestrator above it.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/pageshot-ai/pageshot/capture"
	"github.com/pageshot-ai/pageshot/metrics"
	"github.com/pageshot-ai/pageshot/models"
	"github.com/pageshot-ai/pageshot/record"
)

// Store is the storage collaborator: the pipeline only decides whether an
// artifact is eligible for persistence (capture succeeded); where and how
// it lands is the store's business. Errors are logged, never propagated.
type Store interface {
	// PersistArtifact writes the screenshot and sets artifact.Path.
	PersistArtifact(artifact *models.CaptureArtifact, target models.Target) error

	// PersistRecord writes the extracted record JSON.
	PersistRecord(rec models.Record, target models.Target, artifact *models.CaptureArtifact) error

	// MaybeDiscard removes the persisted screenshot when the retention
	// policy says extracted artifacts should not be kept.
	MaybeDiscard(artifact *models.CaptureArtifact)
}

// Pipeline runs one target end to end: capture, then extraction, then
// validation. A stage failure short-circuits the rest and becomes the
// item's failure, tagged with the stage that produced it.
type Pipeline struct {
	capture   *capture.Stage
	extractor *Extractor
	validator *record.Validator
	store     Store // may be nil

	// retryOnce re-runs the whole item (fresh capture included) a single
	// time after a failed extraction. Counted separately from the capture
	// stage's own attempt budget.
	retryOnce bool
}

// New creates an item pipeline. store may be nil to disable persistence.
func New(cap *capture.Stage, ex *Extractor, val *record.Validator, store Store, retryOnce bool) *Pipeline {
	return &Pipeline{
		capture:   cap,
		extractor: ex,
		validator: val,
		store:     store,
		retryOnce: retryOnce,
	}
}

// Run produces exactly one ItemResult for the target. It never returns an
// error: failures are values on the result.
func (p *Pipeline) Run(ctx context.Context, target models.Target, ov capture.Overrides) *models.ItemResult {
	start := time.Now()

	result, retriable := p.runOnce(ctx, target, ov, start)
	if retriable && p.retryOnce && ctx.Err() == nil {
		slog.Info("retrying item after extraction failure",
			"url", target.URL, "kind", target.Kind)
		prevAttempts := result.Attempts
		result, _ = p.runOnce(ctx, target, ov, start)
		result.Attempts += prevAttempts
	}

	p.observe(result)
	return result
}

// runOnce is a single pass through the three stages. retriable reports
// whether a whole-pipeline retry could plausibly help (extraction failed
// after a successful capture).
func (p *Pipeline) runOnce(ctx context.Context, target models.Target, ov capture.Overrides, start time.Time) (result *models.ItemResult, retriable bool) {
	captureStart := time.Now()
	artifact, attempts, err := p.capture.Run(ctx, target.URL, ov)
	if err != nil {
		return models.FailedItem(target, asPipelineError(err, models.StageCapture), attempts, time.Since(start)), false
	}
	metrics.CaptureDuration.WithLabelValues(artifact.Engine).Observe(time.Since(captureStart).Seconds())

	if p.store != nil {
		if persistErr := p.store.PersistArtifact(artifact, target); persistErr != nil {
			slog.Warn("failed to persist screenshot", "url", target.URL, "error", persistErr)
		}
	}

	raw, usedKind, err := p.extractor.Extract(ctx, artifact, target.Kind, target.Instruction)
	if err != nil {
		perr := asPipelineError(err, models.StageExtract)
		// A fresh capture might fix extraction failures caused by a bad
		// render; timeouts and unknown kinds will not improve.
		retriable = perr.Kind == models.FailInvalidResponse
		return models.FailedItem(target, perr, attempts, time.Since(start)), retriable
	}

	rec := p.validator.Validate(raw, usedKind)

	if p.store != nil {
		if persistErr := p.store.PersistRecord(rec, target, artifact); persistErr != nil {
			slog.Warn("failed to persist record", "url", target.URL, "error", persistErr)
		}
		p.store.MaybeDiscard(artifact)
	}

	// The raw bytes have served their purpose; keep only the reference.
	artifact.PNG = nil

	return &models.ItemResult{
		URL:      target.URL,
		Kind:     usedKind,
		Success:  true,
		Record:   rec,
		Artifact: artifact,
		Attempts: attempts,
		Duration: time.Since(start),
	}, false
}

func (p *Pipeline) observe(result *models.ItemResult) {
	if result.Success {
		metrics.ItemsTotal.WithLabelValues("success").Inc()
		return
	}
	metrics.ItemsTotal.WithLabelValues("failure").Inc()
	if result.Failure != nil {
		metrics.FailuresTotal.WithLabelValues(string(result.Failure.Kind)).Inc()
	}
}

// asPipelineError normalizes any error into a *models.PipelineError.
func asPipelineError(err error, stage string) *models.PipelineError {
	var perr *models.PipelineError
	if errors.As(err, &perr) {
		return perr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return models.NewPipelineError(models.FailCancelled, stage, "item cancelled", err)
	}
	return models.NewPipelineError(models.FailCapture, stage, err.Error(), err)
}
