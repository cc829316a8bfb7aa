package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pageshot-ai/pageshot/capture"
	"github.com/pageshot-ai/pageshot/config"
	"github.com/pageshot-ai/pageshot/engine"
	"github.com/pageshot-ai/pageshot/models"
	"github.com/pageshot-ai/pageshot/prompt"
	"github.com/pageshot-ai/pageshot/record"
)

// stubEngine captures nothing real: it counts calls and fails the first
// failFirst of them (-1 fails forever). delay simulates render time.
type stubEngine struct {
	name      string
	failFirst int32
	delay     time.Duration
	calls     atomic.Int32
}

func (e *stubEngine) Name() string { return e.name }

func (e *stubEngine) Capture(ctx context.Context, req *engine.CaptureRequest) (*engine.Shot, error) {
	n := e.calls.Add(1)
	if e.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(e.delay):
		}
	}
	if e.failFirst < 0 || n <= e.failFirst {
		return nil, errors.New("render failed")
	}
	return &engine.Shot{
		PNG:        []byte{1, 2, 3},
		EngineName: e.name,
		FinalURL:   req.URL,
		CapturedAt: time.Now(),
		FullPage:   req.FullPage,
	}, nil
}

func (e *stubEngine) Close() {}

// recordingStore remembers what the pipeline asked it to persist.
type recordingStore struct {
	mu        sync.Mutex
	artifacts int
	records   int
	discards  int
}

func (s *recordingStore) PersistArtifact(a *models.CaptureArtifact, t models.Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts++
	a.Path = "/tmp/shot.png"
	return nil
}

func (s *recordingStore) PersistRecord(r models.Record, t models.Target, a *models.CaptureArtifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records++
	return nil
}

func (s *recordingStore) MaybeDiscard(a *models.CaptureArtifact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discards++
}

func testCaptureCfg() config.CaptureConfig {
	return config.CaptureConfig{
		AttemptsPerEngine: 1,
		RetryBackoff:      time.Millisecond,
		Timeout:           time.Second,
		ReadyState:        "load",
	}
}

func newTestPipeline(eng engine.Engine, client *fakeVLM, store Store, retryOnce bool) *Pipeline {
	stage := capture.NewStage([]engine.Engine{eng}, nil, testCaptureCfg())
	ex := NewExtractor(client, prompt.NewRegistry("product"), time.Second)
	return New(stage, ex, record.NewValidator(), store, retryOnce)
}

func TestPipelineRun_Success(t *testing.T) {
	eng := &stubEngine{name: "rod"}
	client := &fakeVLM{response: `{"product_name":"Widget","price":"$9.99","rating":"4.5"}`}
	store := &recordingStore{}
	p := newTestPipeline(eng, client, store, false)

	res := p.Run(context.Background(), models.Target{URL: "https://a.example/p1", Kind: "product"}, capture.Overrides{})

	require.True(t, res.Success)
	assert.Nil(t, res.Failure)
	assert.Equal(t, "Widget", res.Record["product_name"])
	assert.Equal(t, 4.5, res.Record["rating"])
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 1, store.artifacts)
	assert.Equal(t, 1, store.records)
	assert.Equal(t, 1, store.discards)
	assert.Nil(t, res.Artifact.PNG)
	assert.Equal(t, "/tmp/shot.png", res.Artifact.Path)
}

func TestPipelineRun_CaptureFailureShortCircuits(t *testing.T) {
	eng := &stubEngine{name: "rod", failFirst: -1}
	client := &fakeVLM{response: `{"a":1}`}
	store := &recordingStore{}
	p := newTestPipeline(eng, client, store, false)

	res := p.Run(context.Background(), models.Target{URL: "https://a.example/p1", Kind: "product"}, capture.Overrides{})

	require.False(t, res.Success)
	require.NotNil(t, res.Failure)
	assert.Equal(t, models.FailCapture, res.Failure.Kind)
	assert.Equal(t, models.StageCapture, res.Failure.Stage)
	assert.Equal(t, 0, store.artifacts, "nothing should be persisted after a failed capture")
	assert.Equal(t, 0, store.records, "extraction must not run after a failed capture")
}

func TestPipelineRun_ExtractionFailureTagged(t *testing.T) {
	eng := &stubEngine{name: "rod"}
	client := &fakeVLM{response: "no json here"}
	p := newTestPipeline(eng, client, nil, false)

	res := p.Run(context.Background(), models.Target{URL: "https://a.example/p1", Kind: "product"}, capture.Overrides{})

	require.False(t, res.Success)
	assert.Equal(t, models.FailInvalidResponse, res.Failure.Kind)
	assert.Equal(t, models.StageExtract, res.Failure.Stage)
}

func TestPipelineRun_RetryRecapturesOnInvalidResponse(t *testing.T) {
	eng := &stubEngine{name: "rod"}
	client := &fakeVLM{response: "still not json"}
	p := newTestPipeline(eng, client, nil, true)

	res := p.Run(context.Background(), models.Target{URL: "https://a.example/p1", Kind: "product"}, capture.Overrides{})

	require.False(t, res.Success)
	assert.Equal(t, int32(2), eng.calls.Load(), "retry should include a fresh capture")
	assert.Equal(t, 2, res.Attempts)
}

func TestPipelineRun_NoRetryOnUnknownKind(t *testing.T) {
	eng := &stubEngine{name: "rod"}
	client := &fakeVLM{response: `{"a":1}`}
	stage := capture.NewStage([]engine.Engine{eng}, nil, testCaptureCfg())
	ex := NewExtractor(client, prompt.NewRegistry("missing-default"), time.Second)
	p := New(stage, ex, record.NewValidator(), nil, true)

	res := p.Run(context.Background(), models.Target{URL: "https://a.example/p1", Kind: "nope"}, capture.Overrides{})

	require.False(t, res.Success)
	assert.Equal(t, models.FailUnknownKind, res.Failure.Kind)
	assert.Equal(t, int32(1), eng.calls.Load(), "unknown kind must not trigger a retry")
}
