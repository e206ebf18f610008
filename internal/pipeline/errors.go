package pipeline

import (
	"fmt"
	"time"
)

// ValidationError aborts a run before any external call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("pipeline: invalid context: %s: %s", e.Field, e.Reason)
}

// PipelineExhaustedError is raised when every section and the outcome stage
// failed. It carries whatever partial metadata was accumulated so callers can
// still account for spend.
type PipelineExhaustedError struct {
	TokensUsed int
	Elapsed    time.Duration
	LastErr    error
}

func (e *PipelineExhaustedError) Error() string {
	return fmt.Sprintf("pipeline: all generation stages failed (tokens=%d, elapsed=%s): %v",
		e.TokensUsed, e.Elapsed.Round(time.Millisecond), e.LastErr)
}

func (e *PipelineExhaustedError) Unwrap() error { return e.LastErr }
