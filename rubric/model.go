/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package rubric

import (
	"fmt"
	"regexp"
	"slices"
)

// Rubric is a validated, immutable rubric.
type Rubric struct {
	id       string
	name     string
	hash     string
	signals  []Signal
	bySignal map[string]int
	criteria []*Criterion
	byID     map[string]int
	// usage maps a signal id to the criteria referencing it, in rubric order.
	usage    map[string][]string
	warnings []Warning
}

// ID returns the rubric identifier.
func (r *Rubric) ID() string { return r.id }

// Name returns the rubric title.
func (r *Rubric) Name() string { return r.name }

// Hash returns the hex SHA-256 of the definition bytes the rubric was parsed from.
func (r *Rubric) Hash() string { return r.hash }

// Criteria returns the criteria in rubric order.
func (r *Rubric) Criteria() []*Criterion {
	return slices.Clone(r.criteria)
}

// Criterion looks up a criterion by id.
func (r *Rubric) Criterion(id string) (*Criterion, bool) {
	i, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return r.criteria[i], true
}

// Position returns the index of the criterion in rubric order, or -1.
func (r *Rubric) Position(id string) int {
	if i, ok := r.byID[id]; ok {
		return i
	}
	return -1
}

// Signals returns the signal catalog in definition order.
func (r *Rubric) Signals() []Signal {
	out := make([]Signal, len(r.signals))
	for i, s := range r.signals {
		out[i] = s.clone()
	}
	return out
}

// Signal looks up a signal category by id.
func (r *Rubric) Signal(id string) (Signal, bool) {
	i, ok := r.bySignal[id]
	if !ok {
		return Signal{}, false
	}
	return r.signals[i].clone(), true
}

// ReferencedSignals returns the ids of signals that at least one descriptor
// references, in catalog order.
func (r *Rubric) ReferencedSignals() []string {
	out := make([]string, 0, len(r.usage))
	for _, s := range r.signals {
		if _, ok := r.usage[s.ID]; ok {
			out = append(out, s.ID)
		}
	}
	return out
}

// CriteriaFor returns the ids of the criteria whose descriptors reference the
// given signal, in rubric order.
func (r *Rubric) CriteriaFor(signal string) []string {
	return slices.Clone(r.usage[signal])
}

// Warnings returns the non-fatal authoring problems found at load time.
func (r *Rubric) Warnings() []Warning {
	return slices.Clone(r.warnings)
}

// Signal is one entry of the signal catalog.
type Signal struct {
	ID          string
	Description string
	Lexical     []LexicalRule
	Numeric     *NumericDefinition
	Semantic    *SemanticDefinition
}

// LexicalRule is a compiled lexical phrase.
type LexicalRule struct {
	Term     string
	Strength Strength
	Pattern  *regexp.Regexp
}

func (s Signal) clone() Signal {
	out := s
	out.Lexical = slices.Clone(s.Lexical)
	if s.Numeric != nil {
		n := *s.Numeric
		n.Units = slices.Clone(n.Units)
		n.Context = slices.Clone(n.Context)
		out.Numeric = &n
	}
	if s.Semantic != nil {
		q := *s.Semantic
		out.Semantic = &q
	}
	return out
}

// Criterion is one scored dimension of the rubric.
type Criterion struct {
	id    string
	name  string
	goal  string
	scale []int
	bands []Band
}

// ID returns the criterion identifier.
func (c *Criterion) ID() string { return c.id }

// Name returns the criterion title.
func (c *Criterion) Name() string { return c.name }

// Goal returns the goal statement.
func (c *Criterion) Goal() string { return c.goal }

// Scale returns the ordered scale values.
func (c *Criterion) Scale() []int { return slices.Clone(c.scale) }

// Min returns the lowest scale value, the criterion's floor.
func (c *Criterion) Min() int { return c.scale[0] }

// Max returns the highest scale value.
func (c *Criterion) Max() int { return c.scale[len(c.scale)-1] }

// Bands returns the bands ordered by ascending score.
func (c *Criterion) Bands() []Band {
	out := make([]Band, len(c.bands))
	for i, b := range c.bands {
		out[i] = b.clone()
	}
	return out
}

// Band returns the band for a score value.
func (c *Criterion) Band(score int) (Band, bool) {
	for _, b := range c.bands {
		if b.Score == score {
			return b.clone(), true
		}
	}
	return Band{}, false
}

// Signals returns the distinct signal ids referenced by the criterion's
// descriptors, in first-reference order.
func (c *Criterion) Signals() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(ds []Descriptor) {
		for _, d := range ds {
			if _, ok := seen[d.Signal]; ok {
				continue
			}
			seen[d.Signal] = struct{}{}
			out = append(out, d.Signal)
		}
	}
	for _, b := range c.bands {
		for _, p := range b.Paths {
			add(p.Required)
		}
		add(b.Optional)
	}
	return out
}

// Band is one discrete score level.
type Band struct {
	Score       int
	Label       string
	Description string
	// Paths are alternative required descriptor sets joined by OR. A band
	// authored with a plain required list has a single unnamed path. Floor
	// bands may have no paths at all.
	Paths    []Path
	Optional []Descriptor
}

// Path is one alternative set of required descriptors.
type Path struct {
	Name     string
	Required []Descriptor
}

// HasRequirements reports whether any path of the band has requirements.
func (b Band) HasRequirements() bool {
	for _, p := range b.Paths {
		if len(p.Required) > 0 {
			return true
		}
	}
	return false
}

func (b Band) clone() Band {
	out := b
	out.Optional = slices.Clone(b.Optional)
	out.Paths = make([]Path, len(b.Paths))
	for i, p := range b.Paths {
		out.Paths[i] = Path{Name: p.Name, Required: slices.Clone(p.Required)}
	}
	return out
}

// String renders the descriptor as "signal>=n".
func (d Descriptor) String() string {
	return fmt.Sprintf("%s>=%d", d.Signal, d.MinEvidence)
}
