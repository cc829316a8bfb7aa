package models

import "fmt"

// FailureKind classifies why a pipeline item failed.
type FailureKind string

const (
	// FailCapture: every engine exhausted its attempt budget.
	FailCapture FailureKind = "CAPTURE_FAILURE"

	// FailExtractionTimeout: the inference call exceeded its deadline.
	FailExtractionTimeout FailureKind = "EXTRACTION_TIMEOUT"

	// FailInvalidResponse: the inference response contained no parseable JSON object.
	FailInvalidResponse FailureKind = "INVALID_RESPONSE_FORMAT"

	// FailUnknownKind: no instruction template for the record kind and no default.
	FailUnknownKind FailureKind = "UNKNOWN_RECORD_KIND"

	// FailInvalidTarget: malformed URL, rejected before scheduling.
	FailInvalidTarget FailureKind = "INVALID_TARGET"

	// FailCancelled: the batch was cancelled before or during this item.
	FailCancelled FailureKind = "CANCELLED"
)

// Pipeline stage names, recorded on failures so callers can tell which
// stage produced them.
const (
	StageSubmit   = "submit"
	StageCapture  = "capture"
	StageExtract  = "extract"
	StageValidate = "validate"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Kind    FailureKind `json:"kind"`
	Stage   string      `json:"stage,omitempty"`
	Message string      `json:"message"`
}

// PipelineError is the internal error type carrying a failure kind and the
// stage that produced it. It implements the error interface and supports
// error wrapping via Unwrap.
type PipelineError struct {
	Kind    FailureKind
	Stage   string
	Message string
	Err     error // wrapped original error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s [%s]: %s: %v", e.Kind, e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Kind, e.Stage, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewPipelineError creates a new PipelineError.
func NewPipelineError(kind FailureKind, stage, message string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Stage: stage, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *PipelineError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Kind: e.Kind, Stage: e.Stage, Message: e.Message}
}
