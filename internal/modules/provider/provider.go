package provider

import (
	"fmt"

	"github.com/reusedev/gen-hub/internal/consts"
)

// Job is one generation handed to the external provider. Parameters are
// already validated and clamped by the pipeline before a Job is built.
type Job struct {
	GenerationId string         `json:"generation_id"`
	Mode         consts.Mode    `json:"mode"`
	Model        string         `json:"model"`
	Prompt       string         `json:"prompt,omitempty"`
	Params       map[string]any `json:"params"`
	SourceImages []string       `json:"source_images,omitempty"`
}

// Result is the provider's terminal report for a job.
type Result struct {
	Outputs      []string `json:"outputs"`
	Cost         float64  `json:"cost"`
	ProcessingMs int64    `json:"processing_ms"`
}

// RejectedError is a terminal provider refusal. It is not retried.
type RejectedError struct {
	StatusCode int
	Body       string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("provider rejected request, status code: %d, body: %s", e.StatusCode, e.Body)
}

// TimeoutError reports that all retry attempts were exhausted on
// transient failures (timeouts and 5xx-equivalents).
type TimeoutError struct {
	Attempts int
	Last     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("provider call failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *TimeoutError) Unwrap() error {
	return e.Last
}
