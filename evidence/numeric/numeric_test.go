/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package numeric

import (
	"context"
	"testing"

	"chainguard.dev/rubriceval/document"
	"chainguard.dev/rubriceval/rubric"
	"github.com/google/go-cmp/cmp"
)

func TestMatch(t *testing.T) {
	text := "Lincoln ES covers 45,000 sq ft of space. Adams has 12.5 SF per student\n" +
		"| Site | Area |\n| Grant MS | 80,500 gross square feet |\n" +
		"The plan estimates $120 million. Another 3 million is unassigned.\n" +
		"Release v2.5 million-fold. Measured use was 1,200 kWh and peak 40 kW."
	doc, err := document.New("d", text, nil)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		sig  rubric.Signal
		want []string
	}{{
		name: "area",
		sig: rubric.Signal{ID: "square_footage", Numeric: &rubric.NumericDefinition{
			Units:   []string{"square feet", "gross square feet", "sq ft", "SF"},
			Context: []string{"covers"},
		}},
		want: []string{
			"45,000 sq ft|strong",
			"12.5 SF|moderate",
			"80,500 gross square feet|strong",
		},
	}, {
		name: "cost",
		sig: rubric.Signal{ID: "cost_estimates", Numeric: &rubric.NumericDefinition{
			Units:   []string{"million"},
			Context: []string{"estimate"},
		}},
		want: []string{
			"$120 million|strong",
			"3 million|moderate",
		},
	}, {
		name: "energy units prefer the longer unit",
		sig: rubric.Signal{ID: "energy", Numeric: &rubric.NumericDefinition{
			Units: []string{"kW", "kWh"},
		}},
		want: []string{
			"1,200 kWh|moderate",
			"40 kW|moderate",
		},
	}, {
		name: "not configured",
		sig:  rubric.Signal{ID: "lexical_only"},
	}}

	m := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Match(context.Background(), doc, tt.sig)
			if err != nil {
				t.Fatalf("Match() = %v", err)
			}
			var hits []string
			for _, e := range got {
				hits = append(hits, doc.Slice(e.Span)+"|"+e.Strength.String())
				if e.Category != tt.sig.ID || e.Source != Name {
					t.Errorf("evidence %+v has wrong category or source", e)
				}
			}
			if diff := cmp.Diff(tt.want, hits); diff != "" {
				t.Errorf("Match() (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPatternCache(t *testing.T) {
	m := New()
	a, err := m.pattern([]string{"acres"})
	if err != nil {
		t.Fatal(err)
	}
	b, _ := m.pattern([]string{"acres"})
	if a != b {
		t.Error("pattern() recompiled an identical unit list")
	}
	if _, err := m.pattern([]string{" "}); err == nil {
		t.Error("pattern(blank) = nil error")
	}
}
