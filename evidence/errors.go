/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package evidence

import (
	"context"
	"errors"
	"fmt"
)

// UnavailableError reports that a matcher could not produce evidence for a
// signal category after exhausting its retry budget. It is scoped to the
// category and never aborts a run.
type UnavailableError struct {
	Category string
	Matcher  string
	Err      error
}

// Error implements error
func (e *UnavailableError) Error() string {
	return fmt.Sprintf("extractor %s unavailable for signal category %q: %v", e.Matcher, e.Category, e.Err)
}

// Unwrap returns the underlying matcher error.
func (e *UnavailableError) Unwrap() error { return e.Err }

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying (bad credentials, malformed
// requests). A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Retryable is the retry classifier used for matcher calls.
func Retryable(err error) bool {
	return err != nil && !IsPermanent(err) && !errors.Is(err, context.Canceled)
}
