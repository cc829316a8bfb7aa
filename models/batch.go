package models

import (
	"sync"
	"time"
)

// BatchRequest is the payload for POST /api/v1/batch.
type BatchRequest struct {
	// URLs is the ordered list of target pages. Required.
	URLs []string `json:"urls" binding:"required,min=1,max=100"`

	// RecordKind selects the instruction template and output schema
	// (e.g. "product", "article", "real_estate").
	RecordKind string `json:"record_kind,omitempty"`

	// Options contains shared capture settings applied to all URLs.
	Options BatchOptions `json:"options"`

	// WebhookURL, when set, receives a signed batch.completed event.
	WebhookURL string `json:"webhook_url,omitempty" binding:"omitempty,url"`
}

// BatchOptions are the shared capture settings applied to every URL in a batch.
type BatchOptions struct {
	// Concurrency overrides the server's default worker count. Optional.
	Concurrency int `json:"concurrency,omitempty" binding:"omitempty,min=1,max=20"`

	// Timeout is the per-item capture timeout in seconds.
	Timeout int `json:"timeout,omitempty" binding:"omitempty,min=1,max=120"`

	// FullPage captures the whole page instead of the viewport.
	FullPage *bool `json:"full_page,omitempty"`
}

// BatchResponse is the immediate response for POST /api/v1/batch.
type BatchResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Total  int    `json:"total"`
}

// BatchStatusResponse is the response for GET /api/v1/batch/:id.
type BatchStatusResponse struct {
	ID        string       `json:"id"`
	Status    string       `json:"status"`
	Completed int          `json:"completed"`
	Total     int          `json:"total"`
	Result    *BatchResult `json:"result,omitempty"`
}

// BatchJob tracks an in-progress batch operation in the API job store.
// The background runner updates it while handlers read it, so mutable
// state lives behind a mutex; use the accessors.
type BatchJob struct {
	ID        string
	Kind      string
	Total     int
	Cancel    func()
	CreatedAt int64 // unix timestamp

	mu        sync.Mutex
	status    string // "processing", "completed", "partial", "failed", "cancelled"
	completed int
	result    *BatchResult
}

// NewBatchJob creates a job in the "processing" state.
func NewBatchJob(id, kind string, total int, cancel func()) *BatchJob {
	return &BatchJob{
		ID:        id,
		Kind:      kind,
		Total:     total,
		Cancel:    cancel,
		CreatedAt: time.Now().Unix(),
		status:    "processing",
	}
}

// SetCompleted records the running completion count.
func (j *BatchJob) SetCompleted(n int) {
	j.mu.Lock()
	j.completed = n
	j.mu.Unlock()
}

// Finish records the terminal status and result.
func (j *BatchJob) Finish(status string, result *BatchResult) {
	j.mu.Lock()
	j.status = status
	j.result = result
	j.mu.Unlock()
}

// Status returns the current job status.
func (j *BatchJob) Status() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Snapshot returns a consistent view of the mutable job state.
func (j *BatchJob) Snapshot() (status string, completed int, result *BatchResult) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status, j.completed, j.result
}

// ExtractRequest is the payload for POST /api/v1/extract (single URL,
// synchronous).
type ExtractRequest struct {
	URL        string `json:"url" binding:"required,url"`
	RecordKind string `json:"record_kind,omitempty"`

	// Instruction overrides the registered template for this request.
	Instruction string `json:"instruction,omitempty"`

	Timeout  int   `json:"timeout,omitempty" binding:"omitempty,min=1,max=120"`
	FullPage *bool `json:"full_page,omitempty"`

	// CacheMaxAgeMs serves a cached result not older than this. 0 disables.
	CacheMaxAgeMs int `json:"cache_max_age_ms,omitempty" binding:"omitempty,min=0"`
}

// ExtractResponse is the response for POST /api/v1/extract.
type ExtractResponse struct {
	Success  bool             `json:"success"`
	Record   Record           `json:"record,omitempty"`
	Artifact *CaptureArtifact `json:"artifact,omitempty"`
	Error    *ErrorDetail     `json:"error,omitempty"`

	// CacheStatus is "hit" or "miss" when caching was requested.
	CacheStatus string `json:"cache_status,omitempty"`

	TotalMs int64 `json:"total_ms"`
}
