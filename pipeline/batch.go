package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pageshot-ai/pageshot/capture"
	"github.com/pageshot-ai/pageshot/metrics"
	"github.com/pageshot-ai/pageshot/models"
)

// Progress is invoked after each item completes, with the running
// completion count. Calls are serialized; implementations need no locking.
type Progress func(completed, total int, item *models.ItemResult)

// Orchestrator schedules pipeline runs for a whole batch under a fixed
// concurrency ceiling. Individual item failures never fail the batch;
// only invalid setup does.
type Orchestrator struct {
	pipeline    *Pipeline
	concurrency int
}

// NewOrchestrator creates a batch orchestrator with the given default
// worker count.
func NewOrchestrator(p *Pipeline, concurrency int) *Orchestrator {
	return &Orchestrator{pipeline: p, concurrency: concurrency}
}

// DefaultConcurrency resolves a caller-supplied concurrency override:
// 0 means "use the configured default".
func (o *Orchestrator) DefaultConcurrency(override int) int {
	if override == 0 {
		return o.concurrency
	}
	return override
}

// MakeTargets pairs each URL with the record kind, preserving order.
func MakeTargets(urls []string, kind string) []models.Target {
	targets := make([]models.Target, len(urls))
	for i, u := range urls {
		targets[i] = models.Target{URL: u, Kind: kind}
	}
	return targets
}

// Run processes all targets and returns one ItemResult per target, in
// submission order regardless of completion order.
//
// Malformed URLs are rejected before scheduling and appear as
// InvalidTarget failures; they never consume a worker slot. Cancelling
// ctx marks queued targets Cancelled without a capture attempt, while
// in-flight items stop at their next timeout checkpoint.
//
// It returns a hard error only when the target list is empty or the
// concurrency value is not positive.
func (o *Orchestrator) Run(ctx context.Context, targets []models.Target, concurrency int, ov capture.Overrides, onProgress Progress) (*models.BatchResult, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("batch: target list is empty")
	}
	if concurrency <= 0 {
		return nil, fmt.Errorf("batch: invalid concurrency %d", concurrency)
	}

	start := time.Now()
	results := make([]*models.ItemResult, len(targets))

	// The callback runs under the mutex so invocations never overlap and
	// completion counts arrive in order.
	var progressMu sync.Mutex
	completed := 0
	report := func(item *models.ItemResult) {
		progressMu.Lock()
		defer progressMu.Unlock()
		completed++
		if onProgress != nil {
			onProgress(completed, len(targets), item)
		}
	}

	// Reject invalid targets up front; only the rest get scheduled.
	pending := make([]int, 0, len(targets))
	for i, t := range targets {
		if err := t.Validate(); err != nil {
			results[i] = models.FailedItem(t, asPipelineError(err, models.StageSubmit), 0, 0)
			report(results[i])
			continue
		}
		pending = append(pending, i)
	}

	if len(pending) > 0 {
		workers := concurrency
		if workers > len(pending) {
			workers = len(pending)
		}

		jobs := make(chan int)
		var wg sync.WaitGroup

		// Each worker runs one pipeline to completion before taking the
		// next queued target, and writes only its own result slot.
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for idx := range jobs {
					t := targets[idx]
					if ctx.Err() != nil {
						results[idx] = models.FailedItem(t, models.NewPipelineError(
							models.FailCancelled, models.StageSubmit,
							"batch cancelled before item started", ctx.Err()), 0, 0)
					} else {
						results[idx] = o.pipeline.Run(ctx, t, ov)
					}
					report(results[idx])
				}
			}()
		}

		for _, idx := range pending {
			jobs <- idx
		}
		close(jobs)
		wg.Wait()
	}

	result := &models.BatchResult{
		Items:    results,
		Duration: time.Since(start),
	}
	result.Tally()

	status := "completed"
	switch {
	case result.Succeeded == 0:
		status = "failed"
	case result.Failed > 0:
		status = "partial"
	}
	metrics.BatchesTotal.WithLabelValues(status).Inc()

	slog.Info("batch finished",
		"total", len(targets),
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"duration", result.Duration.Round(time.Millisecond),
	)
	return result, nil
}
