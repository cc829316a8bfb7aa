package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pageshot-ai/pageshot/models"
	"github.com/pageshot-ai/pageshot/prompt"
)

// fakeVLM returns a canned response (or error) after an optional delay.
type fakeVLM struct {
	response string
	err      error
	delay    time.Duration
}

func (f *fakeVLM) Infer(ctx context.Context, png []byte, instruction string) (string, error) {
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func testArtifact() *models.CaptureArtifact {
	return &models.CaptureArtifact{
		PNG:        []byte{0x89, 0x50, 0x4e, 0x47},
		Engine:     "rod",
		CapturedAt: time.Now(),
	}
}

func TestFirstJSONObject(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		want  string
		found bool
	}{
		{"bare object", `{"a":1}`, `{"a":1}`, true},
		{"leading prose", `Sure! Here is the data: {"a":1}`, `{"a":1}`, true},
		{"trailing prose", `{"a":1} hope that helps`, `{"a":1}`, true},
		{"markdown fence", "```json\n{\"a\":1}\n```", `{"a":1}`, true},
		{"nested objects", `{"a":{"b":2}}`, `{"a":{"b":2}}`, true},
		{"brace inside string", `{"a":"}{"}`, `{"a":"}{"}`, true},
		{"escaped quote", `{"a":"say \"hi\" {"}`, `{"a":"say \"hi\" {"}`, true},
		{"no object", `the page failed to load`, "", false},
		{"unbalanced", `{"a": 1`, "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := firstJSONObject(tt.in)
			assert.Equal(t, tt.found, found)
			if tt.found {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestExtract_ParsesJSONWithProse(t *testing.T) {
	client := &fakeVLM{response: `Here you go:
{"product_name": "Widget", "price": "$9.99", "rating": 4.5}
Let me know if you need anything else.`}
	ex := NewExtractor(client, prompt.NewRegistry("product"), time.Second)

	raw, usedKind, err := ex.Extract(context.Background(), testArtifact(), "product", "")
	require.NoError(t, err)
	assert.Equal(t, "product", usedKind)
	assert.Equal(t, "Widget", raw["product_name"])
	assert.Equal(t, 4.5, raw["rating"])
}

func TestExtract_InvalidResponse(t *testing.T) {
	client := &fakeVLM{response: "I could not read the screenshot, sorry."}
	ex := NewExtractor(client, prompt.NewRegistry("product"), time.Second)

	_, _, err := ex.Extract(context.Background(), testArtifact(), "product", "")
	var perr *models.PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, models.FailInvalidResponse, perr.Kind)
	assert.Equal(t, models.StageExtract, perr.Stage)
}

func TestExtract_Timeout(t *testing.T) {
	client := &fakeVLM{response: `{"a":1}`, delay: 200 * time.Millisecond}
	ex := NewExtractor(client, prompt.NewRegistry("product"), 20*time.Millisecond)

	_, _, err := ex.Extract(context.Background(), testArtifact(), "product", "")
	var perr *models.PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, models.FailExtractionTimeout, perr.Kind)
}

func TestExtract_UnknownKindFallsBackToDefault(t *testing.T) {
	client := &fakeVLM{response: `{"product_name":"Widget"}`}
	ex := NewExtractor(client, prompt.NewRegistry("product"), time.Second)

	_, usedKind, err := ex.Extract(context.Background(), testArtifact(), "no-such-kind", "")
	require.NoError(t, err)
	assert.Equal(t, "product", usedKind)
}

func TestExtract_UnknownKindNoDefault(t *testing.T) {
	client := &fakeVLM{response: `{"a":1}`}
	ex := NewExtractor(client, prompt.NewRegistry("missing-default"), time.Second)

	_, _, err := ex.Extract(context.Background(), testArtifact(), "also-missing", "")
	var perr *models.PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, models.FailUnknownKind, perr.Kind)
}

func TestExtract_InstructionOverride(t *testing.T) {
	client := &fakeVLM{response: `{"a":1}`}
	ex := NewExtractor(client, prompt.NewRegistry("missing-default"), time.Second)

	_, usedKind, err := ex.Extract(context.Background(), testArtifact(), "custom", "List every heading as JSON.")
	require.NoError(t, err)
	assert.Equal(t, "custom", usedKind, "override bypasses the registry entirely")
}

func TestExtract_InferenceError(t *testing.T) {
	client := &fakeVLM{err: errors.New("provider returned status 500")}
	ex := NewExtractor(client, prompt.NewRegistry("product"), time.Second)

	_, _, err := ex.Extract(context.Background(), testArtifact(), "product", "")
	var perr *models.PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, models.FailInvalidResponse, perr.Kind)
}
