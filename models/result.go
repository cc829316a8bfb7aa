package models

import (
	"encoding/json"
	"time"
)

// ItemResult is the per-target outcome of the pipeline: either a validated
// Record plus its artifact reference, or a typed failure. Exactly one is
// produced per submitted target. Immutable after creation.
type ItemResult struct {
	URL     string `json:"url"`
	Kind    string `json:"kind"`
	Success bool   `json:"success"`

	// Record is set only on success.
	Record Record `json:"record,omitempty"`

	// Artifact references the screenshot that produced the record.
	// Always a real completed capture, never a placeholder.
	Artifact *CaptureArtifact `json:"artifact,omitempty"`

	// Failure is set only when Success is false.
	Failure *ErrorDetail `json:"failure,omitempty"`

	// Attempts is the total number of capture attempts made across all
	// engines (and across the optional whole-pipeline retry).
	Attempts int `json:"attempts"`

	// Duration is the wall-clock time this item took end to end.
	// Serialized as whole milliseconds.
	Duration time.Duration `json:"-"`
}

// MarshalJSON emits Duration as milliseconds under duration_ms.
func (r *ItemResult) MarshalJSON() ([]byte, error) {
	type alias ItemResult
	return json.Marshal(&struct {
		*alias
		DurationMs int64 `json:"duration_ms"`
	}{alias: (*alias)(r), DurationMs: r.Duration.Milliseconds()})
}

// UnmarshalJSON accepts duration_ms in milliseconds.
func (r *ItemResult) UnmarshalJSON(data []byte) error {
	type alias ItemResult
	aux := struct {
		*alias
		DurationMs int64 `json:"duration_ms"`
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.Duration = time.Duration(aux.DurationMs) * time.Millisecond
	return nil
}

// FailedItem builds a failure ItemResult from a PipelineError.
func FailedItem(t Target, perr *PipelineError, attempts int, dur time.Duration) *ItemResult {
	return &ItemResult{
		URL:      t.URL,
		Kind:     t.Kind,
		Success:  false,
		Failure:  perr.ToDetail(),
		Attempts: attempts,
		Duration: dur,
	}
}

// BatchResult aggregates all ItemResults of one batch. Items preserves the
// submission order regardless of completion order; a batch with failed
// items is still a completed batch.
type BatchResult struct {
	Items []*ItemResult `json:"items"`

	Succeeded     int                 `json:"succeeded"`
	Failed        int                 `json:"failed"`
	FailureCounts map[FailureKind]int `json:"failure_counts,omitempty"`

	// Duration is the total wall-clock time of the batch.
	// Serialized as whole milliseconds.
	Duration time.Duration `json:"-"`
}

// MarshalJSON emits Duration as milliseconds under duration_ms.
func (r *BatchResult) MarshalJSON() ([]byte, error) {
	type alias BatchResult
	return json.Marshal(&struct {
		*alias
		DurationMs int64 `json:"duration_ms"`
	}{alias: (*alias)(r), DurationMs: r.Duration.Milliseconds()})
}

// UnmarshalJSON accepts duration_ms in milliseconds.
func (r *BatchResult) UnmarshalJSON(data []byte) error {
	type alias BatchResult
	aux := struct {
		*alias
		DurationMs int64 `json:"duration_ms"`
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.Duration = time.Duration(aux.DurationMs) * time.Millisecond
	return nil
}

// Tally recomputes the aggregate counters from Items.
func (r *BatchResult) Tally() {
	r.Succeeded = 0
	r.Failed = 0
	r.FailureCounts = make(map[FailureKind]int)
	for _, item := range r.Items {
		if item == nil {
			continue
		}
		if item.Success {
			r.Succeeded++
		} else {
			r.Failed++
			if item.Failure != nil {
				r.FailureCounts[item.Failure.Kind]++
			}
		}
	}
}

// ByURL returns the items keyed by target URL. When the same URL was
// submitted more than once the last occurrence wins.
func (r *BatchResult) ByURL() map[string]*ItemResult {
	m := make(map[string]*ItemResult, len(r.Items))
	for _, item := range r.Items {
		if item != nil {
			m[item.URL] = item
		}
	}
	return m
}
