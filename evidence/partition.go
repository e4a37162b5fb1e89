/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package evidence

import (
	"slices"

	"chainguard.dev/rubriceval/rubric"
)

// Set is the evidence owned by one criterion scorer.
type Set struct {
	Criterion string
	// Items are the evidence for the criterion's signal categories, in
	// canonical order.
	Items []Evidence
	// Unavailable lists the criterion's categories whose extraction failed.
	Unavailable []string
}

// Count tallies the items for category by strength.
func (s Set) Count(category string) (strong, moderate, weak int) {
	for _, e := range s.Items {
		if e.Category != category {
			continue
		}
		switch e.Strength {
		case rubric.Strong:
			strong++
		case rubric.Moderate:
			moderate++
		case rubric.Weak:
			weak++
		}
	}
	return strong, moderate, weak
}

// IDs returns the ids of the items for category.
func (s Set) IDs(category string) []string {
	var out []string
	for _, e := range s.Items {
		if e.Category == category {
			out = append(out, e.ID)
		}
	}
	return out
}

// Partition splits res into one Set per criterion, in rubric order. Every
// Set owns its own copies so that scorers can run without sharing memory.
func Partition(r *rubric.Rubric, res *Result) []Set {
	failed := res.UnavailableCategories()
	criteria := r.Criteria()
	out := make([]Set, len(criteria))
	for i, c := range criteria {
		signals := c.Signals()
		set := Set{Criterion: c.ID()}
		for _, e := range res.Items {
			if slices.Contains(signals, e.Category) {
				e.Criteria = slices.Clone(e.Criteria)
				set.Items = append(set.Items, e)
			}
		}
		for _, f := range failed {
			if slices.Contains(signals, f) {
				set.Unavailable = append(set.Unavailable, f)
			}
		}
		out[i] = set
	}
	return out
}
