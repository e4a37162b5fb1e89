/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package evidence

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"chainguard.dev/rubriceval/document"
	"chainguard.dev/rubriceval/rubric"
)

// maxSnippet bounds the snippet length in bytes.
const maxSnippet = 240

// Evidence is one located, typed signal found in the document text.
type Evidence struct {
	// ID is derived from the category and span: "<category>@<start>-<end>".
	ID       string          `json:"id"`
	Span     document.Span   `json:"span"`
	Category string          `json:"category"`
	Criteria []string        `json:"criteria,omitempty"`
	Strength rubric.Strength `json:"strength"`
	Snippet  string          `json:"snippet"`
	// Source names the matcher that produced the item.
	Source string `json:"source"`
	// Term is the phrase, unit or quote that matched.
	Term string `json:"term,omitempty"`
}

// MakeID returns the identifier of evidence for category at span.
func MakeID(category string, span document.Span) string {
	return fmt.Sprintf("%s@%s", category, span)
}

// New builds an evidence item with its id and a snippet taken from the
// enclosing sentence.
func New(doc *document.Document, category string, span document.Span, strength rubric.Strength, source, term string) Evidence {
	return Evidence{
		ID:       MakeID(category, span),
		Span:     span,
		Category: category,
		Strength: strength,
		Snippet:  snippet(doc, span),
		Source:   source,
		Term:     term,
	}
}

func snippet(doc *document.Document, span document.Span) string {
	s := strings.Join(strings.Fields(doc.Slice(doc.Sentence(span))), " ")
	if len(s) <= maxSnippet {
		return s
	}
	cut := maxSnippet
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// Compare orders evidence by span start, then category id, then span end.
func Compare(a, b Evidence) int {
	return cmp.Or(
		cmp.Compare(a.Span.Start, b.Span.Start),
		cmp.Compare(a.Category, b.Category),
		cmp.Compare(a.Span.End, b.Span.End),
	)
}

// preferred orders candidates for the same category: stronger first, then
// longer, then earlier.
func preferred(a, b Evidence) int {
	return cmp.Or(
		-cmp.Compare(a.Strength, b.Strength),
		-cmp.Compare(a.Span.Len(), b.Span.Len()),
		cmp.Compare(a.Span.Start, b.Span.Start),
		cmp.Compare(a.Span.End, b.Span.End),
		cmp.Compare(a.Source, b.Source),
	)
}

// Dedupe drops items whose span overlaps a preferred item of the same
// category and returns the survivors in canonical order. The input is not
// modified.
func Dedupe(items []Evidence) []Evidence {
	byCategory := make(map[string][]Evidence)
	for _, e := range items {
		byCategory[e.Category] = append(byCategory[e.Category], e)
	}

	out := make([]Evidence, 0, len(items))
	for _, group := range byCategory {
		slices.SortFunc(group, preferred)
		var kept []Evidence
		for _, e := range group {
			if slices.ContainsFunc(kept, func(k Evidence) bool { return k.Span.Overlaps(e.Span) }) {
				continue
			}
			kept = append(kept, e)
		}
		out = append(out, kept...)
	}
	slices.SortFunc(out, Compare)
	return out
}
