/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package report turns evaluations into the structured evaluation report
// and writes it as JSON, CSV or a markdown table.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"chainguard.dev/rubriceval/aggregate"
	"chainguard.dev/rubriceval/audit"
	"chainguard.dev/rubriceval/document"
	"chainguard.dev/rubriceval/engine"
	"chainguard.dev/rubriceval/evidence"
)

// EvidenceRef is the part of an evidence item a reader needs to find it in
// the document.
type EvidenceRef struct {
	ID       string        `json:"id"`
	Span     document.Span `json:"span"`
	Strength string        `json:"strength"`
	Source   string        `json:"source"`
	Snippet  string        `json:"snippet"`
}

// Clause is one rationale entry with its supporting evidence.
type Clause struct {
	Descriptor  string        `json:"descriptor"`
	Required    bool          `json:"required"`
	Satisfied   bool          `json:"satisfied"`
	Effective   int           `json:"effective"`
	MinEvidence int           `json:"min_evidence"`
	Unavailable bool          `json:"unavailable,omitempty"`
	Evidence    []EvidenceRef `json:"evidence,omitempty"`
}

// Criterion is the report entry for one criterion.
type Criterion struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Score       int      `json:"score"`
	Min         int      `json:"min"`
	Max         int      `json:"max"`
	Label       string   `json:"label"`
	Path        string   `json:"path,omitempty"`
	Confidence  float64  `json:"confidence"`
	Borderline  bool     `json:"borderline,omitempty"`
	Fallback    bool     `json:"fallback,omitempty"`
	Normalized  float64  `json:"normalized"`
	Weight      float64  `json:"weight"`
	Unavailable []string `json:"unavailable,omitempty"`
	Rationale   []Clause `json:"rationale"`
}

// Report mirrors the composite assessment of one evaluation.
type Report struct {
	RunID          string                    `json:"run_id"`
	Document       string                    `json:"document"`
	DocumentHash   string                    `json:"document_hash"`
	Rubric         string                    `json:"rubric"`
	RubricName     string                    `json:"rubric_name"`
	RubricHash     string                    `json:"rubric_hash"`
	CompositeScore float64                   `json:"composite_score"`
	OverallLabel   string                    `json:"overall_label"`
	Criteria       []Criterion               `json:"criteria"`
	Statistics     aggregate.Statistics      `json:"statistics"`
	Unavailable    []audit.ExtractionFailure `json:"unavailable,omitempty"`
	Audit          []audit.Decision          `json:"audit"`
}

// New builds the report of ev.
func New(ev *engine.Evaluation) *Report {
	byID := make(map[string]evidence.Evidence, len(ev.Evidence))
	for _, e := range ev.Evidence {
		byID[e.ID] = e
	}
	decisions := ev.Trail.Decisions()

	r := &Report{
		RunID:          ev.RunID,
		Document:       ev.Document,
		DocumentHash:   ev.DocumentHash,
		Rubric:         ev.RubricID,
		RubricName:     ev.RubricName,
		RubricHash:     ev.RubricHash,
		CompositeScore: ev.Assessment.Composite,
		OverallLabel:   ev.Assessment.Label,
		Statistics:     ev.Assessment.Statistics,
		Unavailable:    ev.Trail.Unavailable(),
		Audit:          decisions,
	}
	for _, c := range ev.Assessment.Criteria {
		cr := Criterion{
			ID:         c.CriterionID,
			Name:       c.Name,
			Score:      c.Score,
			Min:        c.Min,
			Max:        c.Max,
			Label:      c.Label,
			Path:       c.Path,
			Confidence: c.Confidence,
			Borderline: c.Borderline,
			Fallback:   c.Fallback,
			Normalized: c.Normalized,
			Weight:     c.Weight,
		}
		for _, d := range decisions {
			if d.CriterionID == c.CriterionID {
				cr.Unavailable = d.Unavailable
			}
		}
		for _, cl := range c.Rationale {
			rc := Clause{
				Descriptor:  cl.Descriptor,
				Required:    cl.Required,
				Satisfied:   cl.Satisfied,
				Effective:   cl.Effective,
				MinEvidence: cl.MinEvidence,
				Unavailable: cl.Unavailable,
			}
			for _, id := range cl.EvidenceIDs {
				e, ok := byID[id]
				if !ok {
					continue
				}
				rc.Evidence = append(rc.Evidence, EvidenceRef{
					ID:       e.ID,
					Span:     e.Span,
					Strength: e.Strength.String(),
					Source:   e.Source,
					Snippet:  e.Snippet,
				})
			}
			cr.Rationale = append(cr.Rationale, rc)
		}
		r.Criteria = append(r.Criteria, cr)
	}
	return r
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// Justification summarizes why a criterion got its score in one line.
func (c Criterion) Justification() string {
	var parts []string
	head := c.Label
	if c.Path != "" {
		head += " via " + c.Path
	}
	if c.Fallback {
		head += " (no band requirements met)"
	}
	parts = append(parts, head)
	for _, cl := range c.Rationale {
		state := "unmet"
		switch {
		case cl.Satisfied:
			state = "met"
		case cl.Unavailable:
			state = "unavailable"
		}
		kind := ""
		if !cl.Required {
			kind = "optional "
		}
		part := fmt.Sprintf("%s%s %s (%d)", kind, cl.Descriptor, state, cl.Effective)
		if len(cl.Evidence) > 0 {
			part += fmt.Sprintf(": %q", cl.Evidence[0].Snippet)
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, "; ")
}
