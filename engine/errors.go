/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package engine

import (
	"fmt"
	"strings"

	"chainguard.dev/rubriceval/evidence"
)

// CancellationError reports an evaluation aborted by its caller. No
// assessment is returned with it.
type CancellationError struct {
	// Stage is the phase that observed the cancellation.
	Stage string
	Cause error
}

// Error implements error
func (e *CancellationError) Error() string {
	return fmt.Sprintf("evaluation cancelled during %s: %v", e.Stage, e.Cause)
}

// Unwrap returns the cancellation cause.
func (e *CancellationError) Unwrap() error { return e.Cause }

// ExtractionError reports unavailable signal categories in strict mode.
type ExtractionError struct {
	Unavailable []*evidence.UnavailableError
}

// Error implements error
func (e *ExtractionError) Error() string {
	cats := make([]string, 0, len(e.Unavailable))
	for _, u := range e.Unavailable {
		cats = append(cats, u.Category+" ("+u.Matcher+")")
	}
	return fmt.Sprintf("extraction failed for %d signal categor(ies): %s", len(e.Unavailable), strings.Join(cats, ", "))
}

// Unwrap exposes the category failures.
func (e *ExtractionError) Unwrap() []error {
	out := make([]error, len(e.Unavailable))
	for i, u := range e.Unavailable {
		out[i] = u
	}
	return out
}
