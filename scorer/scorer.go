/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package scorer awards a score band for one criterion from its evidence.
//
// Bands are tested from the highest score down. A band is satisfied when
// every required descriptor of at least one of its paths is met, and the
// first satisfied band is awarded. A descriptor is met when the effective
// evidence count for its signal category reaches the descriptor's minimum:
// strong items count once, moderate items count half (rounded down after
// summing) and weak items never count. When no band is satisfied the lowest
// value of the criterion's scale is awarded with confidence 0.
package scorer

import (
	"fmt"
	"slices"
	"strings"

	"chainguard.dev/rubriceval/audit"
	"chainguard.dev/rubriceval/evidence"
	"chainguard.dev/rubriceval/rubric"
)

// Clause is one descriptor of the rationale with the evidence tested
// against it.
type Clause struct {
	Descriptor  string   `json:"descriptor"`
	Signal      string   `json:"signal"`
	MinEvidence int      `json:"min_evidence"`
	Required    bool     `json:"required"`
	Satisfied   bool     `json:"satisfied"`
	Effective   int      `json:"effective"`
	EvidenceIDs []string `json:"evidence_ids,omitempty"`
	// Unavailable marks a category whose extractor failed for the run.
	Unavailable bool `json:"unavailable,omitempty"`
}

// Result is the score awarded to one criterion.
type Result struct {
	CriterionID string   `json:"criterion"`
	Score       int      `json:"score"`
	Label       string   `json:"label"`
	Path        string   `json:"path,omitempty"`
	Confidence  float64  `json:"confidence"`
	Borderline  bool     `json:"borderline,omitempty"`
	Fallback    bool     `json:"fallback,omitempty"`
	Rationale   []Clause `json:"rationale"`
}

// EvidenceIDs returns the distinct evidence ids cited by the rationale, in
// citation order.
func (r Result) EvidenceIDs() []string {
	var out []string
	for _, c := range r.Rationale {
		for _, id := range c.EvidenceIDs {
			if !slices.Contains(out, id) {
				out = append(out, id)
			}
		}
	}
	return out
}

// Scorer scores criteria. It holds no state between calls.
type Scorer struct {
	trail *audit.Trail
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithTrail appends one decision per Score call to t.
func WithTrail(t *audit.Trail) Option {
	return func(s *Scorer) { s.trail = t }
}

// New creates a Scorer.
func New(opts ...Option) *Scorer {
	s := &Scorer{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EffectiveCount returns the number of items that count toward a descriptor.
func EffectiveCount(strong, moderate int) int {
	return strong + moderate/2
}

// Score awards a band for c from the evidence in set.
func (s *Scorer) Score(c *rubric.Criterion, set evidence.Set) Result {
	t := tally{set: set}
	bands := c.Bands()

	var (
		res      Result
		examined []audit.BandCheck
		awarded  bool
	)
	for i := len(bands) - 1; i >= 0 && !awarded; i-- {
		b := bands[i]
		check := audit.BandCheck{Score: b.Score, Label: b.Label}
		if !b.HasRequirements() {
			check.NoRequirements = true
			examined = append(examined, check)
			continue
		}

		best := -1
		var bestClauses []Clause
		var bestConfidence float64
		for pi, p := range b.Paths {
			if len(p.Required) == 0 {
				continue
			}
			clauses, ok := t.clauses(p.Required, true)
			if !ok {
				for _, cl := range clauses {
					if !cl.Satisfied {
						check.Unmet = append(check.Unmet, pathPrefix(p, pi, len(b.Paths))+cl.Descriptor)
					}
				}
				continue
			}
			conf := confidence(clauses)
			if best < 0 || conf > bestConfidence {
				best, bestClauses, bestConfidence = pi, clauses, conf
			}
		}
		if best < 0 {
			examined = append(examined, check)
			continue
		}

		check.Satisfied = true
		check.Unmet = nil
		check.Path = pathName(b.Paths[best], best, len(b.Paths))
		examined = append(examined, check)

		optional, _ := t.clauses(b.Optional, false)
		res = Result{
			CriterionID: c.ID(),
			Score:       b.Score,
			Label:       b.Label,
			Path:        check.Path,
			Confidence:  bestConfidence,
			Borderline:  borderline(bestClauses),
			Rationale:   append(bestClauses, optional...),
		}
		awarded = true
	}

	if !awarded {
		res = s.fallback(c, bands, t)
	}
	s.record(res, examined, set.Unavailable)
	return res
}

// fallback awards the floor. The rationale lists the requirements of the
// lowest band that has any, so the report shows what was missing.
func (s *Scorer) fallback(c *rubric.Criterion, bands []rubric.Band, t tally) Result {
	floor := bands[0]
	res := Result{
		CriterionID: c.ID(),
		Score:       c.Min(),
		Label:       floor.Label,
		Fallback:    true,
	}
	for _, b := range bands {
		if !b.HasRequirements() {
			continue
		}
		for _, p := range b.Paths {
			clauses, _ := t.clauses(p.Required, true)
			res.Rationale = append(res.Rationale, clauses...)
		}
		break
	}
	optional, _ := t.clauses(floor.Optional, false)
	res.Rationale = append(res.Rationale, optional...)
	return res
}

func (s *Scorer) record(res Result, examined []audit.BandCheck, unavailable []string) {
	if s.trail == nil {
		return
	}
	var notes []string
	if res.Fallback {
		notes = append(notes, fmt.Sprintf("no band requirements met; awarded scale floor %d", res.Score))
	}
	if len(unavailable) > 0 {
		notes = append(notes, fmt.Sprintf("extractor unavailable for %s; scored with reduced evidence", strings.Join(unavailable, ", ")))
	}
	s.trail.Record(audit.Decision{
		CriterionID: res.CriterionID,
		Score:       res.Score,
		Label:       res.Label,
		Path:        res.Path,
		Confidence:  res.Confidence,
		Borderline:  res.Borderline,
		Fallback:    res.Fallback,
		Examined:    examined,
		EvidenceIDs: res.EvidenceIDs(),
		Unavailable: unavailable,
		Note:        strings.Join(notes, "; "),
	})
}

// tally evaluates descriptors against one criterion's evidence.
type tally struct {
	set evidence.Set
}

// clauses evaluates ds and reports whether all of them are met.
func (t tally) clauses(ds []rubric.Descriptor, required bool) ([]Clause, bool) {
	all := true
	out := make([]Clause, 0, len(ds))
	for _, d := range ds {
		strong, moderate, _ := t.set.Count(d.Signal)
		eff := EffectiveCount(strong, moderate)
		cl := Clause{
			Descriptor:  d.String(),
			Signal:      d.Signal,
			MinEvidence: d.MinEvidence,
			Required:    required,
			Satisfied:   eff >= d.MinEvidence,
			Effective:   eff,
			EvidenceIDs: t.set.IDs(d.Signal),
			Unavailable: slices.Contains(t.set.Unavailable, d.Signal),
		}
		all = all && cl.Satisfied
		out = append(out, cl)
	}
	return out, all
}

// confidence is the smallest satisfaction ratio, each capped at 1.
func confidence(clauses []Clause) float64 {
	c := 1.0
	for _, cl := range clauses {
		if cl.MinEvidence <= 0 {
			continue
		}
		c = min(c, min(float64(cl.Effective)/float64(cl.MinEvidence), 1.0))
	}
	return c
}

// borderline reports whether some clause is met exactly at its minimum.
func borderline(clauses []Clause) bool {
	for _, cl := range clauses {
		if cl.Satisfied && cl.Effective == cl.MinEvidence {
			return true
		}
	}
	return false
}

// pathName names the i-th of n paths. A lone unnamed path has no name.
func pathName(p rubric.Path, i, n int) string {
	switch {
	case p.Name != "":
		return p.Name
	case n <= 1:
		return ""
	default:
		return fmt.Sprintf("path %d", i+1)
	}
}

func pathPrefix(p rubric.Path, i, n int) string {
	if name := pathName(p, i, n); name != "" {
		return name + ": "
	}
	return ""
}
