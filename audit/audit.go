/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package audit records the justification chain of an evaluation run: one
// decision per scored criterion and one entry per signal category whose
// extraction failed. Evidence is referenced by id, never copied.
package audit

import (
	"cmp"
	"slices"
	"sync"

	"chainguard.dev/rubriceval/rubric"
)

// BandCheck is the outcome of testing one band during descending evaluation.
type BandCheck struct {
	Score     int    `json:"score"`
	Label     string `json:"label"`
	Satisfied bool   `json:"satisfied"`
	// Path names the satisfied path, if any.
	Path string `json:"path,omitempty"`
	// Unmet lists the required descriptors that were not met, per path,
	// rendered as "signal>=n".
	Unmet []string `json:"unmet,omitempty"`
	// NoRequirements marks a floor band that is only awarded by fallback.
	NoRequirements bool `json:"no_requirements,omitempty"`
}

// Decision is the justification entry for one criterion.
type Decision struct {
	// Seq is the 1-based position of the entry in the ordered trail.
	Seq         int         `json:"seq"`
	Position    int         `json:"position"`
	CriterionID string      `json:"criterion"`
	Score       int         `json:"score"`
	Label       string      `json:"label"`
	Path        string      `json:"path,omitempty"`
	Confidence  float64     `json:"confidence"`
	Borderline  bool        `json:"borderline,omitempty"`
	Fallback    bool        `json:"fallback,omitempty"`
	Examined    []BandCheck `json:"examined"`
	EvidenceIDs []string    `json:"evidence_ids,omitempty"`
	Unavailable []string    `json:"unavailable,omitempty"`
	Note        string      `json:"note,omitempty"`
}

// ExtractionFailure notes a signal category with no evidence because its
// extractor was unavailable.
type ExtractionFailure struct {
	Category string   `json:"category"`
	Matcher  string   `json:"matcher"`
	Criteria []string `json:"criteria,omitempty"`
	Reason   string   `json:"reason"`
}

// Trail is an append-only log safe for concurrent use.
type Trail struct {
	rubric *rubric.Rubric

	mu        sync.Mutex
	decisions []Decision
	failures  []ExtractionFailure
}

// New creates an empty trail for an evaluation against r.
func New(r *rubric.Rubric) *Trail {
	return &Trail{rubric: r}
}

// Record appends a decision. Position is filled in from the rubric.
func (t *Trail) Record(d Decision) {
	d.Position = t.rubric.Position(d.CriterionID)
	d.Examined = cloneChecks(d.Examined)
	d.EvidenceIDs = slices.Clone(d.EvidenceIDs)
	d.Unavailable = slices.Clone(d.Unavailable)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.decisions = append(t.decisions, d)
}

// RecordUnavailable appends an extraction failure.
func (t *Trail) RecordUnavailable(f ExtractionFailure) {
	f.Criteria = slices.Clone(f.Criteria)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures = append(t.failures, f)
}

// Decisions returns a copy of the decisions ordered by rubric position and
// then by append order, with Seq numbered in that order.
func (t *Trail) Decisions() []Decision {
	t.mu.Lock()
	out := make([]Decision, len(t.decisions))
	for i, d := range t.decisions {
		d.Examined = cloneChecks(d.Examined)
		d.EvidenceIDs = slices.Clone(d.EvidenceIDs)
		d.Unavailable = slices.Clone(d.Unavailable)
		out[i] = d
	}
	t.mu.Unlock()

	slices.SortStableFunc(out, func(a, b Decision) int {
		return cmp.Compare(a.Position, b.Position)
	})
	for i := range out {
		out[i].Seq = i + 1
	}
	return out
}

// Decision returns the last decision recorded for a criterion.
func (t *Trail) Decision(criterionID string) (Decision, bool) {
	ds := t.Decisions()
	for i := len(ds) - 1; i >= 0; i-- {
		if ds[i].CriterionID == criterionID {
			return ds[i], true
		}
	}
	return Decision{}, false
}

// Unavailable returns a copy of the extraction failures ordered by category
// and then matcher.
func (t *Trail) Unavailable() []ExtractionFailure {
	t.mu.Lock()
	out := make([]ExtractionFailure, len(t.failures))
	for i, f := range t.failures {
		f.Criteria = slices.Clone(f.Criteria)
		out[i] = f
	}
	t.mu.Unlock()

	slices.SortStableFunc(out, func(a, b ExtractionFailure) int {
		if c := cmp.Compare(a.Category, b.Category); c != 0 {
			return c
		}
		return cmp.Compare(a.Matcher, b.Matcher)
	})
	return out
}

// Len returns the number of decisions recorded.
func (t *Trail) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.decisions)
}

func cloneChecks(in []BandCheck) []BandCheck {
	if in == nil {
		return nil
	}
	out := make([]BandCheck, len(in))
	for i, c := range in {
		c.Unmet = slices.Clone(c.Unmet)
		out[i] = c
	}
	return out
}
