/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package retry runs calls to external extraction backends under a per-call
// timeout and a bounded retry budget with exponential backoff.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/chainguard-dev/clog"
)

// MaxBudget is the largest accepted MaxRetries.
const MaxBudget = 10

// Config configures retry behavior for extractor calls.
type Config struct {
	// MaxRetries is the number of retries after the first attempt (default: 2).
	// 0 means do not retry at all.
	MaxRetries int
	// AttemptTimeout bounds each individual attempt (default: 30s).
	// 0 disables the per-attempt deadline.
	AttemptTimeout time.Duration
	// BaseBackoff is the initial backoff duration (default: 250ms)
	BaseBackoff time.Duration
	// MaxBackoff is the maximum backoff duration (default: 5s)
	MaxBackoff time.Duration
	// MaxJitter is the maximum random jitter added to backoff (default: 100ms)
	MaxJitter time.Duration
}

// Validate checks that the retry configuration has valid values.
func (c Config) Validate() error {
	switch {
	case c.MaxRetries < 0:
		return errors.New("max retries cannot be negative")
	case c.MaxRetries > MaxBudget:
		return fmt.Errorf("max retries cannot exceed %d", MaxBudget)
	case c.AttemptTimeout < 0:
		return errors.New("attempt timeout cannot be negative")
	case c.BaseBackoff < 0:
		return errors.New("base backoff cannot be negative")
	case c.MaxBackoff < 0:
		return errors.New("max backoff cannot be negative")
	case c.MaxJitter < 0:
		return errors.New("max jitter cannot be negative")
	}
	return nil
}

// DefaultConfig returns the configuration used for extractor calls.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     2,
		AttemptTimeout: 30 * time.Second,
		BaseBackoff:    250 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		MaxJitter:      100 * time.Millisecond,
	}
}

// ExhaustedError is returned when every attempt failed with a retryable
// error, or an attempt failed with a non-retryable one.
type ExhaustedError struct {
	Operation string
	Attempts  int
	Err       error
}

// Error implements error
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s): %v", e.Operation, e.Attempts, e.Err)
}

// Unwrap returns the last attempt's error.
func (e *ExhaustedError) Unwrap() error { return e.Err }

// Do executes fn with exponential backoff retry. Each attempt receives a
// context bounded by AttemptTimeout; an attempt that runs out of time is
// retried like any retryable error. Cancellation of ctx itself is returned
// unwrapped and never retried.
func Do[T any](ctx context.Context, cfg Config, operation string, isRetryable func(error) bool, fn func(context.Context) (T, error)) (T, error) {
	var (
		result  T
		lastErr error
	)

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, lastErr = call(ctx, cfg.AttemptTimeout, fn)
		if lastErr == nil {
			return result, nil
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		timedOut := errors.Is(lastErr, context.DeadlineExceeded)
		if !timedOut && !isRetryable(lastErr) {
			return result, &ExhaustedError{Operation: operation, Attempts: attempt + 1, Err: lastErr}
		}

		if attempt >= cfg.MaxRetries {
			break
		}

		// Calculate exponential backoff: BaseBackoff * 2^attempt, capped at MaxBackoff
		backoff := min(cfg.BaseBackoff<<attempt, cfg.MaxBackoff)

		// Add random jitter to avoid thundering herd
		var jitter time.Duration
		if cfg.MaxJitter > 0 {
			n, err := rand.Int(rand.Reader, big.NewInt(int64(cfg.MaxJitter)))
			if err == nil {
				jitter = time.Duration(n.Int64())
			}
		}

		clog.FromContext(ctx).With("operation", operation).
			With("attempt", attempt+1).
			With("max_retries", cfg.MaxRetries).
			With("backoff", backoff+jitter).
			With("timed_out", timedOut).
			With("error", lastErr.Error()).
			Warn("Extractor call failed, retrying")

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(backoff + jitter):
		}
	}

	return result, &ExhaustedError{Operation: operation, Attempts: cfg.MaxRetries + 1, Err: lastErr}
}

func call[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}
