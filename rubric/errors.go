/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package rubric

import (
	"fmt"
	"strings"
)

// ValidationError reports every authoring problem found while loading a
// rubric. It is always fatal.
type ValidationError struct {
	Rubric   string
	Problems []error
}

// Error implements error
func (e *ValidationError) Error() string {
	var sb strings.Builder
	name := e.Rubric
	if name == "" {
		name = "<unnamed>"
	}
	fmt.Fprintf(&sb, "invalid rubric %s: %d problem(s)", name, len(e.Problems))
	for _, p := range e.Problems {
		sb.WriteString("\n  - ")
		sb.WriteString(p.Error())
	}
	return sb.String()
}

// Unwrap exposes the individual problems to errors.Is and errors.As.
func (e *ValidationError) Unwrap() []error {
	return e.Problems
}

// MissingBandError reports a scale value with no band.
type MissingBandError struct {
	CriterionID string
	Score       int
}

// Error implements error
func (e *MissingBandError) Error() string {
	return fmt.Sprintf("criterion %q: no band for scale value %d", e.CriterionID, e.Score)
}

// UnknownSignalError reports a descriptor referencing a signal category that
// is not in the catalog.
type UnknownSignalError struct {
	CriterionID string
	Score       int
	Signal      string
}

// Error implements error
func (e *UnknownSignalError) Error() string {
	if e.Signal == "" {
		return fmt.Sprintf("criterion %q band %d: descriptor has an empty signal category", e.CriterionID, e.Score)
	}
	return fmt.Sprintf("criterion %q band %d: unknown signal category %q", e.CriterionID, e.Score, e.Signal)
}

// Warning is a non-fatal authoring problem.
type Warning struct {
	CriterionID string
	Lower       int
	Higher      int
	Message     string
}

// String implements fmt.Stringer
func (w Warning) String() string {
	return fmt.Sprintf("criterion %q bands %d->%d: %s", w.CriterionID, w.Lower, w.Higher, w.Message)
}
