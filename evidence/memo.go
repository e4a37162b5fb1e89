/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package evidence

import (
	"context"
	"slices"
	"sync"

	"chainguard.dev/rubriceval/document"
	"chainguard.dev/rubriceval/rubric"
	"golang.org/x/sync/singleflight"
)

// RunScoped is implemented by matchers that keep state between calls. The
// engine calls ForRun once per evaluation and uses the returned matcher for
// that run only.
type RunScoped interface {
	Matcher
	ForRun() Matcher
}

// Memoize wraps a nondeterministic matcher so that within its lifetime each
// (document, category) pair is computed at most once. Concurrent callers for
// the same pair share one call. Errors are not cached, so a retry re-invokes
// the underlying matcher. Create one per evaluation run.
func Memoize(m Matcher) Matcher {
	return &memoized{Matcher: m, entries: make(map[string][]Evidence)}
}

type memoized struct {
	Matcher
	group   singleflight.Group
	mu      sync.Mutex
	entries map[string][]Evidence
}

func (m *memoized) Match(ctx context.Context, doc *document.Document, sig rubric.Signal) ([]Evidence, error) {
	key := doc.Hash() + "\x00" + sig.ID

	m.mu.Lock()
	items, ok := m.entries[key]
	m.mu.Unlock()
	if ok {
		return slices.Clone(items), nil
	}

	v, err, _ := m.group.Do(key, func() (any, error) {
		items, err := m.Matcher.Match(ctx, doc, sig)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.entries[key] = items
		m.mu.Unlock()
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]Evidence)), nil
}
