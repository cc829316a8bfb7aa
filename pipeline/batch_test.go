package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pageshot-ai/pageshot/capture"
	"github.com/pageshot-ai/pageshot/engine"
	"github.com/pageshot-ai/pageshot/models"
	"github.com/pageshot-ai/pageshot/prompt"
	"github.com/pageshot-ai/pageshot/record"
)

// gaugeEngine tracks how many captures run simultaneously.
type gaugeEngine struct {
	delay  time.Duration
	active atomic.Int32
	peak   atomic.Int32
}

func (e *gaugeEngine) Name() string { return "gauge" }

func (e *gaugeEngine) Capture(ctx context.Context, req *engine.CaptureRequest) (*engine.Shot, error) {
	cur := e.active.Add(1)
	for {
		p := e.peak.Load()
		if cur <= p || e.peak.CompareAndSwap(p, cur) {
			break
		}
	}
	defer e.active.Add(-1)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(e.delay):
	}
	return &engine.Shot{
		PNG:        []byte{1},
		EngineName: e.Name(),
		FinalURL:   req.URL,
		CapturedAt: time.Now(),
	}, nil
}

func (e *gaugeEngine) Close() {}

func newTestOrchestrator(eng engine.Engine, client *fakeVLM, concurrency int) *Orchestrator {
	return NewOrchestrator(newTestPipeline(eng, client, nil, false), concurrency)
}

func batchURLs(n int) []string {
	urls := make([]string, n)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://shop.example/item/%d", i)
	}
	return urls
}

func TestBatchRun_ResultsInSubmissionOrder(t *testing.T) {
	eng := &gaugeEngine{delay: 5 * time.Millisecond}
	client := &fakeVLM{response: `{"product_name":"Widget"}`}
	o := newTestOrchestrator(eng, client, 4)

	targets := MakeTargets(batchURLs(8), "product")
	res, err := o.Run(context.Background(), targets, 4, capture.Overrides{}, nil)
	require.NoError(t, err)

	require.Len(t, res.Items, 8)
	for i, item := range res.Items {
		require.NotNil(t, item)
		assert.Equal(t, targets[i].URL, item.URL, "result %d must match target %d", i, i)
		assert.True(t, item.Success)
	}
	assert.Equal(t, 8, res.Succeeded)
	assert.Equal(t, 0, res.Failed)
}

func TestBatchRun_ConcurrencyCeiling(t *testing.T) {
	eng := &gaugeEngine{delay: 30 * time.Millisecond}
	client := &fakeVLM{response: `{"a":1}`}
	o := newTestOrchestrator(eng, client, 2)

	targets := MakeTargets(batchURLs(5), "product")
	_, err := o.Run(context.Background(), targets, 2, capture.Overrides{}, nil)
	require.NoError(t, err)

	assert.LessOrEqual(t, eng.peak.Load(), int32(2),
		"no more than 2 captures may run at once")
}

func TestBatchRun_InvalidTargetDoesNotBlockOthers(t *testing.T) {
	eng := &gaugeEngine{}
	client := &fakeVLM{response: `{"product_name":"Widget"}`}
	o := newTestOrchestrator(eng, client, 2)

	targets := MakeTargets([]string{"https://a.example/p1", "not-a-url"}, "product")
	res, err := o.Run(context.Background(), targets, 2, capture.Overrides{}, nil)
	require.NoError(t, err)

	require.Len(t, res.Items, 2)
	assert.True(t, res.Items[0].Success)

	bad := res.Items[1]
	require.False(t, bad.Success)
	assert.Equal(t, models.FailInvalidTarget, bad.Failure.Kind)
	assert.Equal(t, models.StageSubmit, bad.Failure.Stage)
	assert.Equal(t, 0, bad.Attempts)

	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.FailureCounts[models.FailInvalidTarget])
}

func TestBatchRun_PartialFailureTally(t *testing.T) {
	eng := &stubEngine{name: "rod", failFirst: 1}
	client := &fakeVLM{response: `{"a":1}`}
	stage := capture.NewStage([]engine.Engine{eng}, nil, testCaptureCfg())
	ex := NewExtractor(client, prompt.NewRegistry("product"), time.Second)
	o := NewOrchestrator(New(stage, ex, record.NewValidator(), nil, false), 1)

	targets := MakeTargets(batchURLs(3), "product")
	res, err := o.Run(context.Background(), targets, 1, capture.Overrides{}, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.FailureCounts[models.FailCapture])
}

func TestBatchRun_CancellationMarksQueuedItems(t *testing.T) {
	eng := &gaugeEngine{delay: 50 * time.Millisecond}
	client := &fakeVLM{response: `{"a":1}`}
	o := newTestOrchestrator(eng, client, 1)

	ctx, cancel := context.WithCancel(context.Background())
	var once sync.Once
	progress := func(completed, total int, item *models.ItemResult) {
		once.Do(cancel)
	}

	targets := MakeTargets(batchURLs(5), "product")
	res, err := o.Run(ctx, targets, 1, capture.Overrides{}, progress)
	require.NoError(t, err)

	require.Len(t, res.Items, 5)
	cancelled := 0
	for _, item := range res.Items {
		if !item.Success && item.Failure.Kind == models.FailCancelled {
			cancelled++
			assert.Equal(t, 0, item.Attempts,
				"queued items must be cancelled without a capture attempt")
		}
	}
	assert.GreaterOrEqual(t, cancelled, 3, "items queued behind the cancel point stay uncaptured")
}

func TestBatchRun_ProgressReportsEveryItem(t *testing.T) {
	eng := &gaugeEngine{delay: time.Millisecond}
	client := &fakeVLM{response: `{"a":1}`}
	o := newTestOrchestrator(eng, client, 3)

	var mu sync.Mutex
	var seen []int
	progress := func(completed, total int, item *models.ItemResult) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, completed)
		assert.Equal(t, 4, total)
	}

	_, err := o.Run(context.Background(), MakeTargets(batchURLs(4), "product"), 3, capture.Overrides{}, progress)
	require.NoError(t, err)

	require.Len(t, seen, 4)
	for i, c := range seen {
		assert.Equal(t, i+1, c, "completion counts must be monotonically increasing")
	}
}

func TestBatchRun_ProgressCallbacksNeverOverlap(t *testing.T) {
	eng := &gaugeEngine{delay: time.Millisecond}
	client := &fakeVLM{response: `{"a":1}`}
	o := newTestOrchestrator(eng, client, 8)

	var inFlight atomic.Int32
	var overlaps atomic.Int32
	progress := func(completed, total int, item *models.ItemResult) {
		if inFlight.Add(1) > 1 {
			overlaps.Add(1)
		}
		time.Sleep(time.Millisecond)
		inFlight.Add(-1)
	}

	_, err := o.Run(context.Background(), MakeTargets(batchURLs(16), "product"), 8, capture.Overrides{}, progress)
	require.NoError(t, err)

	assert.Zero(t, overlaps.Load(), "progress callbacks must be serialized across workers")
}

func TestBatchRun_HardErrors(t *testing.T) {
	eng := &gaugeEngine{}
	client := &fakeVLM{response: `{"a":1}`}
	o := newTestOrchestrator(eng, client, 2)

	_, err := o.Run(context.Background(), nil, 2, capture.Overrides{}, nil)
	assert.Error(t, err, "empty target list is a setup error")

	targets := MakeTargets(batchURLs(1), "product")
	_, err = o.Run(context.Background(), targets, 0, capture.Overrides{}, nil)
	assert.Error(t, err, "non-positive concurrency is a setup error")

	_, err = o.Run(context.Background(), targets, -3, capture.Overrides{}, nil)
	assert.Error(t, err)
}

func TestDefaultConcurrency(t *testing.T) {
	o := NewOrchestrator(nil, 3)
	assert.Equal(t, 3, o.DefaultConcurrency(0))
	assert.Equal(t, 7, o.DefaultConcurrency(7))
}
