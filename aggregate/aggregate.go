/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package aggregate combines per-criterion scores into a composite
// assessment.
//
// Every awarded score is first mapped linearly onto [0,1] with its own
// criterion's scale bounds, so a criterion scored at its maximum contributes
// exactly 1 whether its scale starts at 0 or 1. The composite is the weighted
// mean of the normalized scores. When no weights are configured every
// criterion gets DefaultWeight. The overall label is the configured threshold
// with the greatest cutoff not above the composite.
package aggregate

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"

	"chainguard.dev/rubriceval/rubric"
	"chainguard.dev/rubriceval/scorer"
	"github.com/montanaflynn/stats"
)

// DefaultWeight is the weight of every criterion when Options.Weights is
// empty, making the composite the arithmetic mean.
const DefaultWeight = 1.0

// Threshold is one rubric-wide cut point on the composite score.
type Threshold struct {
	Label  string  `yaml:"label" json:"label"`
	Cutoff float64 `yaml:"cutoff" json:"cutoff"`
}

// Options configures aggregation.
type Options struct {
	// Weights maps every criterion id to a non-negative weight. Empty means
	// DefaultWeight for all.
	Weights map[string]float64
	// Thresholds are required. The lowest cutoff must be 0.
	Thresholds []Threshold
}

// Validate checks the options against r and reports every problem.
func (o Options) Validate(r *rubric.Rubric) error {
	var errs []error
	if len(o.Thresholds) == 0 {
		errs = append(errs, errors.New("thresholds are required"))
	}
	labels := make(map[string]struct{}, len(o.Thresholds))
	cutoffs := make(map[float64]struct{}, len(o.Thresholds))
	lowest := math.Inf(1)
	for _, t := range o.Thresholds {
		if t.Label == "" {
			errs = append(errs, errors.New("threshold with an empty label"))
		}
		if _, dup := labels[t.Label]; dup {
			errs = append(errs, fmt.Errorf("threshold label %q declared more than once", t.Label))
		}
		labels[t.Label] = struct{}{}
		if math.IsNaN(t.Cutoff) || t.Cutoff < 0 || t.Cutoff > 1 {
			errs = append(errs, fmt.Errorf("threshold %q: cutoff %v outside [0, 1]", t.Label, t.Cutoff))
			continue
		}
		if _, dup := cutoffs[t.Cutoff]; dup {
			errs = append(errs, fmt.Errorf("threshold %q: cutoff %v declared more than once", t.Label, t.Cutoff))
		}
		cutoffs[t.Cutoff] = struct{}{}
		lowest = min(lowest, t.Cutoff)
	}
	if len(o.Thresholds) > 0 && lowest != 0 {
		errs = append(errs, errors.New("the lowest threshold cutoff must be 0 so every composite gets a label"))
	}

	if len(o.Weights) > 0 {
		var sum float64
		for _, c := range r.Criteria() {
			w, ok := o.Weights[c.ID()]
			if !ok {
				errs = append(errs, fmt.Errorf("no weight for criterion %q", c.ID()))
				continue
			}
			if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
				errs = append(errs, fmt.Errorf("criterion %q: weight %v must be a non-negative number", c.ID(), w))
				continue
			}
			sum += w
		}
		for id := range o.Weights {
			if _, ok := r.Criterion(id); !ok {
				errs = append(errs, fmt.Errorf("weight for unknown criterion %q", id))
			}
		}
		if sum <= 0 {
			errs = append(errs, errors.New("weights must have a positive sum"))
		}
	}
	return errors.Join(errs...)
}

// weight returns the weight of a criterion.
func (o Options) weight(id string) float64 {
	if len(o.Weights) == 0 {
		return DefaultWeight
	}
	return o.Weights[id]
}

// IncompleteAssessmentError reports a criterion with no score result.
type IncompleteAssessmentError struct {
	CriterionID string
}

// Error implements error
func (e *IncompleteAssessmentError) Error() string {
	return fmt.Sprintf("incomplete assessment: criterion %q has no score result", e.CriterionID)
}

// Contribution is one criterion's share of the composite.
type Contribution struct {
	scorer.Result
	Name       string  `json:"name"`
	Min        int     `json:"min"`
	Max        int     `json:"max"`
	Normalized float64 `json:"normalized"`
	Weight     float64 `json:"weight"`
	// Weighted is Weight*Normalized divided by the total weight.
	Weighted float64 `json:"weighted"`
}

// Statistics are derived from the normalized scores.
type Statistics struct {
	Mean       float64 `json:"mean"`
	Median     float64 `json:"median"`
	StdDev     float64 `json:"std_dev"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	Borderline int     `json:"borderline"`
	Fallback   int     `json:"fallback"`
}

// Assessment is the composite result of one evaluation.
type Assessment struct {
	RubricID   string         `json:"rubric"`
	Criteria   []Contribution `json:"criteria"`
	Composite  float64        `json:"composite"`
	Label      string         `json:"label"`
	Statistics Statistics     `json:"statistics"`
}

// Result returns the contribution of a criterion.
func (a *Assessment) Result(id string) (Contribution, bool) {
	for _, c := range a.Criteria {
		if c.CriterionID == id {
			return c, true
		}
	}
	return Contribution{}, false
}

// Normalize maps score onto [0,1] using the criterion's scale bounds.
func Normalize(c *rubric.Criterion, score int) float64 {
	lo, hi := c.Min(), c.Max()
	if hi == lo {
		return 1
	}
	return float64(score-lo) / float64(hi-lo)
}

// Label returns the label of the threshold with the greatest cutoff not
// above composite.
func Label(thresholds []Threshold, composite float64) string {
	sorted := slices.Clone(thresholds)
	slices.SortStableFunc(sorted, func(a, b Threshold) int { return cmp.Compare(a.Cutoff, b.Cutoff) })
	label := ""
	for _, t := range sorted {
		if t.Cutoff <= composite {
			label = t.Label
		}
	}
	return label
}

// Aggregate reduces one result per criterion of r to an Assessment. Results
// may arrive in any order; they are never modified.
func Aggregate(r *rubric.Rubric, results []scorer.Result, opts Options) (*Assessment, error) {
	if err := opts.Validate(r); err != nil {
		return nil, fmt.Errorf("invalid aggregation options: %w", err)
	}

	byID := make(map[string]scorer.Result, len(results))
	for _, res := range results {
		if _, ok := r.Criterion(res.CriterionID); !ok {
			return nil, fmt.Errorf("score result for unknown criterion %q", res.CriterionID)
		}
		if _, dup := byID[res.CriterionID]; dup {
			return nil, fmt.Errorf("criterion %q scored more than once", res.CriterionID)
		}
		byID[res.CriterionID] = res
	}

	criteria := r.Criteria()
	a := &Assessment{RubricID: r.ID(), Criteria: make([]Contribution, 0, len(criteria))}
	var (
		total, sum float64
		normalized = make([]float64, 0, len(criteria))
	)
	for _, c := range criteria {
		res, ok := byID[c.ID()]
		if !ok {
			return nil, &IncompleteAssessmentError{CriterionID: c.ID()}
		}
		if res.Score < c.Min() || res.Score > c.Max() {
			return nil, fmt.Errorf("criterion %q: score %d outside scale [%d, %d]", c.ID(), res.Score, c.Min(), c.Max())
		}
		res.Rationale = slices.Clone(res.Rationale)
		n := Normalize(c, res.Score)
		w := opts.weight(c.ID())
		a.Criteria = append(a.Criteria, Contribution{
			Result:     res,
			Name:       c.Name(),
			Min:        c.Min(),
			Max:        c.Max(),
			Normalized: n,
			Weight:     w,
		})
		normalized = append(normalized, n)
		total += w
		sum += w * n
		if res.Borderline {
			a.Statistics.Borderline++
		}
		if res.Fallback {
			a.Statistics.Fallback++
		}
	}

	if total <= 0 {
		return nil, errors.New("rubric has no weighted criteria")
	}
	for i := range a.Criteria {
		c := &a.Criteria[i]
		c.Weighted = c.Weight * c.Normalized / total
	}
	a.Composite = min(max(sum/total, 0), 1)
	a.Label = Label(opts.Thresholds, a.Composite)

	st, err := describe(normalized)
	if err != nil {
		return nil, err
	}
	st.Borderline, st.Fallback = a.Statistics.Borderline, a.Statistics.Fallback
	a.Statistics = st
	return a, nil
}

func describe(data stats.Float64Data) (Statistics, error) {
	if len(data) == 0 {
		return Statistics{}, nil
	}
	var (
		st  Statistics
		err error
	)
	if st.Mean, err = stats.Mean(data); err != nil {
		return st, fmt.Errorf("mean: %w", err)
	}
	if st.Median, err = stats.Median(data); err != nil {
		return st, fmt.Errorf("median: %w", err)
	}
	if st.StdDev, err = stats.StandardDeviationPopulation(data); err != nil {
		return st, fmt.Errorf("standard deviation: %w", err)
	}
	if st.Min, err = stats.Min(data); err != nil {
		return st, fmt.Errorf("min: %w", err)
	}
	if st.Max, err = stats.Max(data); err != nil {
		return st, fmt.Errorf("max: %w", err)
	}
	return st, nil
}
