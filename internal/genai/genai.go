// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package genai abstracts the generative-text service behind a Generator
// interface so every synthesis stage (term mapping, relevance scoring,
// outline, review sections) calls text generation the same way and tests can
// substitute fakes. Errors are classified as transient or permanent so
// callers' retry policies know what is worth retrying.
package genai

import (
	"context"
	"errors"
	"fmt"
)

// Request is one text-generation call.
type Request struct {
	// Prompt is the full prompt text.
	Prompt string

	// Model is the model identifier. Empty uses the backend's default.
	Model string

	// MaxTokens bounds the generated output length. Zero uses the
	// backend's default.
	MaxTokens int

	// Temperature controls sampling randomness.
	Temperature float64
}

// Generator produces text from a prompt. Implementations must be safe for
// concurrent use; the review synthesizer issues section calls in parallel.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// TransientError marks a failure the caller may retry: rate limiting,
// server-side errors, or network problems.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err (or anything it wraps) is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Transient wraps err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// Transientf is Transient(fmt.Errorf(...)).
func Transientf(format string, args ...any) error {
	return &TransientError{Err: fmt.Errorf(format, args...)}
}
