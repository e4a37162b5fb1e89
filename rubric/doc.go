/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package rubric holds the immutable in-memory model of a scoring rubric.
//
// # Overview
//
// A rubric is a set of criteria. Each criterion declares an ordered integer
// scale (for example [1,2,3,4] or [0,1,2,3,4]) and exactly one band per scale
// value. A band lists the descriptors a document must satisfy to earn it:
//
//   - required descriptors, either as a single set or as alternative paths
//     joined by OR (a band may be reachable through "path A" or "path B")
//   - optional descriptors, which only refine rationale and never elevate a band
//
// Every descriptor names a signal category from the rubric's signal catalog
// and a minimum evidence count. Signals describe how evidence for the category
// is found (lexical phrases, quantified figures, or a semantic query).
//
// # Loading
//
// Definitions are YAML or JSON documents:
//
//	r, err := rubric.Parse(data)
//	if err != nil {
//		var verr *rubric.ValidationError
//		if errors.As(err, &verr) {
//			// malformed scale, missing band, unknown signal category ...
//		}
//		return err
//	}
//
// All validation happens in Parse. Band monotonicity (higher bands should not
// be easier to satisfy than lower ones) is only checked heuristically and is
// reported through Warnings, since rubrics legitimately mix AND/OR semantics
// between bands.
//
// # Thread Safety
//
// A *Rubric never changes after Parse returns and may be shared by any number
// of goroutines. Cache memoizes parsed rubrics by content hash so that several
// documents can be evaluated against one loaded instance.
package rubric
