/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package rubric

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parse decodes a YAML or JSON rubric definition and validates it.
// Every problem found is reported in a single *ValidationError.
func Parse(data []byte) (*Rubric, error) {
	var def Definition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("definition is empty")
		}
		return nil, &ValidationError{Problems: []error{fmt.Errorf("decoding definition: %w", err)}}
	}
	return FromDefinition(def, Hash(data))
}

// Hash returns the content hash used to key parsed rubrics.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FromDefinition validates an already decoded definition. The hash is
// recorded verbatim and should identify the bytes def was decoded from.
func FromDefinition(def Definition, hash string) (*Rubric, error) {
	b := &builder{def: def}
	r := b.build(hash)
	if len(b.problems) > 0 {
		return nil, &ValidationError{Rubric: def.ID, Problems: b.problems}
	}
	return r, nil
}

type builder struct {
	def      Definition
	problems []error
}

func (b *builder) problem(format string, args ...any) {
	b.problems = append(b.problems, fmt.Errorf(format, args...))
}

func (b *builder) build(hash string) *Rubric {
	r := &Rubric{
		id:       strings.TrimSpace(b.def.ID),
		name:     b.def.Name,
		hash:     hash,
		bySignal: make(map[string]int, len(b.def.Signals)),
		byID:     make(map[string]int, len(b.def.Criteria)),
		usage:    make(map[string][]string),
	}
	if r.id == "" {
		b.problem("rubric id is empty")
	}

	for _, sd := range b.def.Signals {
		sig, ok := b.signal(sd)
		if !ok {
			continue
		}
		if _, dup := r.bySignal[sig.ID]; dup {
			b.problem("signal %q is declared more than once", sig.ID)
			continue
		}
		r.bySignal[sig.ID] = len(r.signals)
		r.signals = append(r.signals, sig)
	}

	if len(b.def.Criteria) == 0 {
		b.problem("rubric declares no criteria")
	}
	for _, cd := range b.def.Criteria {
		c := b.criterion(cd, r.bySignal)
		if c == nil {
			continue
		}
		if _, dup := r.byID[c.id]; dup {
			b.problem("criterion %q is declared more than once", c.id)
			continue
		}
		r.byID[c.id] = len(r.criteria)
		r.criteria = append(r.criteria, c)
		for _, s := range c.Signals() {
			r.usage[s] = append(r.usage[s], c.id)
		}
		r.warnings = append(r.warnings, monotonicity(c)...)
	}
	return r
}

func (b *builder) signal(sd SignalDefinition) (Signal, bool) {
	id := strings.TrimSpace(sd.ID)
	if id == "" {
		b.problem("signal with empty id")
		return Signal{}, false
	}
	sig := Signal{ID: id, Description: sd.Description}
	if sd.Lexical == nil && sd.Numeric == nil && sd.Semantic == nil {
		b.problem("signal %q declares no matcher (lexical, numeric or semantic)", id)
	}
	if sd.Lexical != nil {
		levels := []struct {
			strength Strength
			phrases  []string
		}{
			{Strong, sd.Lexical.Strong},
			{Moderate, sd.Lexical.Moderate},
			{Weak, sd.Lexical.Weak},
		}
		for _, lvl := range levels {
			for _, phrase := range lvl.phrases {
				re, err := compilePhrase(phrase)
				if err != nil {
					b.problem("signal %q: %s phrase %q: %w", id, lvl.strength, phrase, err)
					continue
				}
				sig.Lexical = append(sig.Lexical, LexicalRule{Term: phrase, Strength: lvl.strength, Pattern: re})
			}
		}
		if len(sd.Lexical.Strong)+len(sd.Lexical.Moderate)+len(sd.Lexical.Weak) == 0 {
			b.problem("signal %q: lexical matcher has no phrases", id)
		}
	}
	if sd.Numeric != nil {
		n := *sd.Numeric
		if len(n.Units) == 0 {
			b.problem("signal %q: numeric matcher has no units", id)
		}
		for _, u := range n.Units {
			if strings.TrimSpace(u) == "" {
				b.problem("signal %q: numeric matcher has an empty unit", id)
			}
		}
		n.Units = slices.Clone(n.Units)
		n.Context = slices.Clone(n.Context)
		sig.Numeric = &n
	}
	if sd.Semantic != nil {
		if strings.TrimSpace(sd.Semantic.Query) == "" {
			b.problem("signal %q: semantic matcher has an empty query", id)
		}
		q := *sd.Semantic
		sig.Semantic = &q
	}
	return sig, true
}

func (b *builder) criterion(cd CriterionDefinition, signals map[string]int) *Criterion {
	id := strings.TrimSpace(cd.ID)
	if id == "" {
		b.problem("criterion with empty id")
		return nil
	}
	c := &Criterion{id: id, name: cd.Name, goal: cd.Goal, scale: slices.Clone(cd.Scale)}

	switch {
	case len(cd.Scale) == 0:
		b.problem("criterion %q: scale is empty", id)
		return nil
	case len(cd.Scale) == 1:
		b.problem("criterion %q: scale needs at least two values, got %v", id, cd.Scale)
		return nil
	}
	for i := 1; i < len(cd.Scale); i++ {
		if cd.Scale[i] <= cd.Scale[i-1] {
			b.problem("criterion %q: scale %v is not strictly increasing", id, cd.Scale)
			return nil
		}
	}

	bands := make(map[int]Band, len(cd.Bands))
	for _, bd := range cd.Bands {
		if !slices.Contains(cd.Scale, bd.Score) {
			b.problem("criterion %q: band %d is not on scale %v", id, bd.Score, cd.Scale)
			continue
		}
		if _, dup := bands[bd.Score]; dup {
			b.problem("criterion %q: band %d is declared more than once", id, bd.Score)
			continue
		}
		bands[bd.Score] = b.band(id, bd, bd.Score == c.Min(), signals)
	}

	for v := c.Min(); v <= c.Max(); v++ {
		band, ok := bands[v]
		if !ok {
			b.problems = append(b.problems, &MissingBandError{CriterionID: id, Score: v})
			continue
		}
		c.bands = append(c.bands, band)
	}
	return c
}

func (b *builder) band(criterion string, bd BandDefinition, floor bool, signals map[string]int) Band {
	band := Band{Score: bd.Score, Label: bd.Label, Description: bd.Description}
	if strings.TrimSpace(bd.Label) == "" {
		b.problem("criterion %q: band %d has an empty label", criterion, bd.Score)
	}

	switch {
	case len(bd.Required) > 0 && len(bd.Paths) > 0:
		b.problem("criterion %q: band %d declares both required and paths", criterion, bd.Score)
	case len(bd.Required) > 0:
		band.Paths = []Path{{Required: b.descriptors(criterion, bd.Score, bd.Required, signals)}}
	case len(bd.Paths) > 0:
		names := make(map[string]struct{}, len(bd.Paths))
		for _, pd := range bd.Paths {
			name := strings.TrimSpace(pd.Name)
			if name == "" {
				b.problem("criterion %q: band %d has a path with an empty name", criterion, bd.Score)
			} else if _, dup := names[name]; dup {
				b.problem("criterion %q: band %d declares path %q more than once", criterion, bd.Score, name)
			}
			names[name] = struct{}{}
			if len(pd.Required) == 0 {
				b.problem("criterion %q: band %d path %q has no required descriptors", criterion, bd.Score, name)
			}
			band.Paths = append(band.Paths, Path{Name: name, Required: b.descriptors(criterion, bd.Score, pd.Required, signals)})
		}
	}
	if !floor && !band.HasRequirements() {
		b.problem("criterion %q: band %d has no required descriptors and would always be satisfied", criterion, bd.Score)
	}
	band.Optional = b.descriptors(criterion, bd.Score, bd.Optional, signals)
	return band
}

func (b *builder) descriptors(criterion string, score int, ds []Descriptor, signals map[string]int) []Descriptor {
	out := make([]Descriptor, 0, len(ds))
	for _, d := range ds {
		d.Signal = strings.TrimSpace(d.Signal)
		if _, ok := signals[d.Signal]; !ok || d.Signal == "" {
			b.problems = append(b.problems, &UnknownSignalError{CriterionID: criterion, Score: score, Signal: d.Signal})
		}
		if d.MinEvidence < 1 {
			b.problem("criterion %q: band %d descriptor %s: min_evidence must be at least 1", criterion, score, d)
		}
		out = append(out, d)
	}
	return out
}

// monotonicity flags adjacent bands where a path of the higher band does not
// contain the requirements of any path of the lower band.
func monotonicity(c *Criterion) []Warning {
	var out []Warning
	for i := 1; i < len(c.bands); i++ {
		lower, higher := c.bands[i-1], c.bands[i]
		if !lower.HasRequirements() {
			continue
		}
		for _, hp := range higher.Paths {
			if slices.ContainsFunc(lower.Paths, func(lp Path) bool { return covers(hp, lp) }) {
				continue
			}
			name := hp.Name
			if name == "" {
				name = "required"
			}
			out = append(out, Warning{
				CriterionID: c.id,
				Lower:       lower.Score,
				Higher:      higher.Score,
				Message:     fmt.Sprintf("%s set does not include the requirements of any path of band %d", name, lower.Score),
			})
		}
	}
	return out
}

// covers reports whether every descriptor of inner has a counterpart in outer
// with the same signal and at least the same minimum.
func covers(outer, inner Path) bool {
	for _, d := range inner.Required {
		if !slices.ContainsFunc(outer.Required, func(o Descriptor) bool {
			return o.Signal == d.Signal && o.MinEvidence >= d.MinEvidence
		}) {
			return false
		}
	}
	return true
}

// compilePhrase turns a lexical phrase into a case-insensitive pattern that
// tolerates arbitrary whitespace between words.
func compilePhrase(phrase string) (*regexp.Regexp, error) {
	if expr, ok := strings.CutPrefix(phrase, "re:"); ok {
		if strings.TrimSpace(expr) == "" {
			return nil, errors.New("empty regular expression")
		}
		return regexp.Compile("(?i)" + expr)
	}
	words := strings.Fields(phrase)
	if len(words) == 0 {
		return nil, errors.New("empty phrase")
	}
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	expr := strings.Join(quoted, `\s+`)
	if isWordByte(words[0][0]) {
		expr = `\b` + expr
	}
	last := words[len(words)-1]
	if isWordByte(last[len(last)-1]) {
		expr += `\b`
	}
	return regexp.Compile("(?i)" + expr)
}

func isWordByte(c byte) bool {
	return c == '_' || ('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}
