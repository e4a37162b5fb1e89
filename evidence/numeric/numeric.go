/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package numeric detects quantified figures: a number followed by one of the
// units declared for a signal ("45,000 sq ft", "$120 million", "85%
// utilization"). A figure inside a table, or in a sentence that mentions one
// of the signal's context terms, is strong evidence; otherwise moderate.
package numeric

import (
	"cmp"
	"context"
	"errors"
	"regexp"
	"slices"
	"strings"
	"sync"

	"chainguard.dev/rubriceval/document"
	"chainguard.dev/rubriceval/evidence"
	"chainguard.dev/rubriceval/rubric"
)

// Name identifies the matcher in evidence and audit records.
const Name = "numeric"

// number accepts thousands separators, decimals and a leading currency sign.
const number = `(?:\$\s?)?(?:\d{1,3}(?:,\d{3})+|\d+)(?:\.\d+)?`

// Matcher detects number-and-unit figures. Compiled patterns are cached per
// unit list, so a Matcher is cheap to share across runs.
type Matcher struct {
	mu       sync.Mutex
	patterns map[string]*regexp.Regexp
}

var _ evidence.Matcher = (*Matcher)(nil)

// New returns a numeric matcher.
func New() *Matcher {
	return &Matcher{patterns: make(map[string]*regexp.Regexp)}
}

// Name implements evidence.Matcher
func (*Matcher) Name() string { return Name }

// Match implements evidence.Matcher
func (m *Matcher) Match(ctx context.Context, doc *document.Document, sig rubric.Signal) ([]evidence.Evidence, error) {
	if sig.Numeric == nil {
		return nil, nil
	}
	re, err := m.pattern(sig.Numeric.Units)
	if err != nil {
		return nil, evidence.Permanent(err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	terms := make([]string, 0, len(sig.Numeric.Context))
	for _, c := range sig.Numeric.Context {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			terms = append(terms, c)
		}
	}

	var out []evidence.Evidence
	text := doc.Text()
	for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
		// Group 1 is the number, group 2 the unit.
		span := document.Span{Start: loc[2], End: loc[5]}
		strength := rubric.Moderate
		if doc.InTable(span) || mentions(strings.ToLower(doc.Slice(doc.Sentence(span))), terms) {
			strength = rubric.Strong
		}
		out = append(out, evidence.New(doc, sig.ID, span, strength, Name, text[loc[4]:loc[5]]))
	}
	return out, nil
}

func mentions(sentence string, terms []string) bool {
	return slices.ContainsFunc(terms, func(t string) bool { return strings.Contains(sentence, t) })
}

func (m *Matcher) pattern(units []string) (*regexp.Regexp, error) {
	key := strings.Join(units, "\x00")
	m.mu.Lock()
	defer m.mu.Unlock()
	if re, ok := m.patterns[key]; ok {
		return re, nil
	}
	re, err := compile(units)
	if err != nil {
		return nil, err
	}
	m.patterns[key] = re
	return re, nil
}

// compile builds the figure pattern. Units are tried longest first so that
// "kWh" wins over "kW" and "gross square feet" over "square feet".
func compile(units []string) (*regexp.Regexp, error) {
	sorted := slices.Clone(units)
	slices.SortStableFunc(sorted, func(a, b string) int { return cmp.Compare(len(b), len(a)) })

	alts := make([]string, 0, len(sorted))
	for _, u := range sorted {
		words := strings.Fields(u)
		if len(words) == 0 {
			continue
		}
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		alt := strings.Join(words, `\s+`)
		if last := u[len(u)-1]; isWord(last) {
			alt += `\b`
		}
		alts = append(alts, alt)
	}
	if len(alts) == 0 {
		return nil, errors.New("no usable units")
	}
	expr := `(?i)(?:^|[^\w.,$])(` + number + `)\s*(` + strings.Join(alts, "|") + `)`
	return regexp.Compile(expr)
}

func isWord(c byte) bool {
	return c == '_' || ('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}
