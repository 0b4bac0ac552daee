// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package retry provides the backoff policy shared by every stage that talks
// to a network collaborator. A Policy carries the attempt limit, the backoff
// schedule, and the predicate deciding which errors are worth retrying, so
// the retrieval engine and the synthesizers handle transient failures the
// same way.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Policy describes how a caller retries a failing operation.
type Policy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int

	// BaseDelay is the delay before the second attempt; it doubles each
	// attempt after that.
	BaseDelay time.Duration

	// MaxDelay caps the backoff delay. Zero means uncapped.
	MaxDelay time.Duration

	// Jitter randomizes each delay to between 50% and 150% of its nominal
	// value so concurrent retries do not synchronize.
	Jitter bool

	// Retryable reports whether an error is transient. Nil retries everything.
	Retryable func(error) bool

	// OnRetry, when set, is called before each backoff sleep with the error
	// that triggered it and the upcoming attempt number (2-based).
	OnRetry func(err error, attempt int, delay time.Duration)
}

// Default is the network retry schedule: five attempts, exponential backoff
// from one second capped at thirty, jittered.
func Default() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Jitter:      true,
	}
}

// Do runs fn until it succeeds, the policy is exhausted, a non-retryable
// error occurs, or the context is cancelled. The returned error wraps the
// last failure with the attempt count.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := p.delay(attempt - 1)
			if p.OnRetry != nil {
				p.OnRetry(lastErr, attempt, delay)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
	}
	return fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}

// delay returns the backoff duration preceding the given retry (1-based).
func (p Policy) delay(retry int) time.Duration {
	d := time.Duration(math.Pow(2, float64(retry-1)) * float64(p.BaseDelay))
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter && d > 0 {
		d = d/2 + time.Duration(rand.Int63n(int64(d)))
	}
	return d
}
