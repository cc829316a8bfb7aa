package models

import (
	"fmt"
	"net/url"
	"strings"
)

// Target is one unit of batch input: an absolute http/https URL plus the
// record kind selecting the instruction template and output schema.
// Immutable once submitted.
type Target struct {
	URL  string `json:"url"`
	Kind string `json:"kind"`

	// Instruction, when set, replaces the registered template for this
	// target only.
	Instruction string `json:"instruction,omitempty"`
}

// Validate checks that the target URL is an absolute http or https URL.
// Invalid targets are rejected before scheduling, never silently dropped.
func (t Target) Validate() error {
	u, err := url.Parse(t.URL)
	if err != nil {
		return NewPipelineError(FailInvalidTarget, StageSubmit,
			fmt.Sprintf("malformed URL %q", t.URL), err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return NewPipelineError(FailInvalidTarget, StageSubmit,
			fmt.Sprintf("URL %q must start with http:// or https://", t.URL), nil)
	}
	if u.Host == "" {
		return NewPipelineError(FailInvalidTarget, StageSubmit,
			fmt.Sprintf("URL %q has no host", t.URL), nil)
	}
	return nil
}
