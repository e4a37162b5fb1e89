/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package evidence extracts typed evidence items from document text.
//
// An Extractor runs each configured Matcher for every signal category the
// rubric references. Categories are processed in parallel; every matcher call
// is bounded by a per-call timeout and a retry budget (see Guard). A matcher
// that still fails makes its category unavailable (UnavailableError) without
// aborting the run: the scorer treats the missing evidence as absence, which
// maps toward the lowest band.
//
// The output is deterministic for a given document and rubric. Overlapping
// matches within one category are collapsed to the strongest, then longest,
// then earliest item, and the survivors are ordered by span start, then
// category id. Matchers backed by external services should be wrapped with
// Memoize so that repeated lookups within a run return identical results.
//
// Matchers live in subpackages: lexical (phrases and patterns), numeric
// (quantities with units) and semantic (an external model backend).
package evidence
