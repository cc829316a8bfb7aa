package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pageshot-ai/pageshot/metrics"
	"github.com/pageshot-ai/pageshot/models"
	"github.com/pageshot-ai/pageshot/prompt"
	"github.com/pageshot-ai/pageshot/vlm"
)

// Extractor is the extraction stage: one inference call per artifact,
// bounded by a timeout, with the first JSON object dug out of whatever
// text the model returns. It performs no retries of its own; retry
// policy belongs to the pipeline level.
type Extractor struct {
	client  vlm.Client
	prompts *prompt.Registry
	timeout time.Duration
}

// NewExtractor creates an extraction stage.
func NewExtractor(client vlm.Client, prompts *prompt.Registry, timeout time.Duration) *Extractor {
	return &Extractor{client: client, prompts: prompts, timeout: timeout}
}

// Extract resolves the instruction for kind, queries the inference
// service with the artifact, and parses the response into a raw field
// map. A non-empty override replaces the registered template for this
// call. usedKind reports which kind's template was applied (it differs
// from kind when the default template kicked in), so the caller can
// validate against the matching schema.
func (e *Extractor) Extract(ctx context.Context, artifact *models.CaptureArtifact, kind, override string) (raw map[string]any, usedKind string, err error) {
	var instruction string
	if override != "" {
		instruction, usedKind = override, kind
	} else {
		var resolveErr error
		instruction, usedKind, resolveErr = e.prompts.Resolve(kind)
		if resolveErr != nil {
			return nil, "", models.NewPipelineError(models.FailUnknownKind, models.StageExtract,
				fmt.Sprintf("no instruction template for record kind %q", kind), resolveErr)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	text, inferErr := e.client.Infer(ctx, artifact.PNG, instruction)
	metrics.InferenceDuration.Observe(time.Since(start).Seconds())

	if inferErr != nil {
		switch {
		case errors.Is(inferErr, context.DeadlineExceeded):
			return nil, usedKind, models.NewPipelineError(models.FailExtractionTimeout, models.StageExtract,
				fmt.Sprintf("inference exceeded %s", e.timeout), inferErr)
		case errors.Is(inferErr, context.Canceled):
			return nil, usedKind, models.NewPipelineError(models.FailCancelled, models.StageExtract,
				"inference cancelled", inferErr)
		default:
			return nil, usedKind, models.NewPipelineError(models.FailInvalidResponse, models.StageExtract,
				"inference call failed", inferErr)
		}
	}

	obj, found := firstJSONObject(text)
	if !found {
		return nil, usedKind, models.NewPipelineError(models.FailInvalidResponse, models.StageExtract,
			"response contains no JSON object", nil)
	}

	var parsed map[string]any
	if jsonErr := json.Unmarshal([]byte(obj), &parsed); jsonErr != nil {
		return nil, usedKind, models.NewPipelineError(models.FailInvalidResponse, models.StageExtract,
			"response JSON object does not parse", jsonErr)
	}
	return parsed, usedKind, nil
}

// firstJSONObject returns the first syntactically valid top-level JSON
// object substring of s, tolerating leading and trailing commentary
// (markdown fences, prose, stray braces inside strings).
func firstJSONObject(s string) (string, bool) {
	for start := 0; start < len(s); start++ {
		if s[start] != '{' {
			continue
		}
		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(s); i++ {
			c := s[i]
			if inString {
				switch {
				case escaped:
					escaped = false
				case c == '\\':
					escaped = true
				case c == '"':
					inString = false
				}
				continue
			}
			switch c {
			case '"':
				inString = true
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					candidate := s[start : i+1]
					if json.Valid([]byte(candidate)) {
						return candidate, true
					}
					// Balanced but invalid; try the next opening brace.
					i = len(s)
				}
			}
		}
	}
	return "", false
}
