/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package lexical matches the phrases and patterns declared for a signal.
// The strength of a match is the strength list the phrase was declared in.
package lexical

import (
	"context"

	"chainguard.dev/rubriceval/document"
	"chainguard.dev/rubriceval/evidence"
	"chainguard.dev/rubriceval/rubric"
)

// Name identifies the matcher in evidence and audit records.
const Name = "lexical"

// Matcher is a stateless lexical matcher.
type Matcher struct{}

var _ evidence.Matcher = Matcher{}

// New returns a lexical matcher.
func New() Matcher { return Matcher{} }

// Name implements evidence.Matcher
func (Matcher) Name() string { return Name }

// Match implements evidence.Matcher
func (Matcher) Match(ctx context.Context, doc *document.Document, sig rubric.Signal) ([]evidence.Evidence, error) {
	var out []evidence.Evidence
	text := doc.Text()
	for _, rule := range sig.Lexical {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, loc := range rule.Pattern.FindAllStringIndex(text, -1) {
			if loc[0] == loc[1] {
				continue
			}
			span := document.Span{Start: loc[0], End: loc[1]}
			out = append(out, evidence.New(doc, sig.ID, span, rule.Strength, Name, rule.Term))
		}
	}
	return out, nil
}
