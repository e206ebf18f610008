package llmclient

import (
	"context"
	"errors"
)

// ErrEmptyOutput is returned when the provider answered without usable text.
var ErrEmptyOutput = errors.New("llmclient: empty output from model")

// Format selects the response shape requested from the provider.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// GenerateOptions carries per-call tuning. Zero values mean provider defaults.
type GenerateOptions struct {
	Temperature    float64
	MaxTokens      int
	ResponseFormat Format
}

// Generation is the provider-neutral result of one model call.
type Generation struct {
	Text       string
	TokensUsed int
}

// LLMClient is the sole point of contact with an external text generation
// service. Implementations do not retry; retry, rate limiting, and logging
// are applied via Middleware by whoever owns the policy.
type LLMClient interface {
	Name() string
	Generate(ctx context.Context, system, user string, opts GenerateOptions) (Generation, error)
	Close() error
}

// PermanentError indicates an error that will not resolve with retries.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}
