/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package evidence_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chainguard.dev/rubriceval/document"
	"chainguard.dev/rubriceval/evidence"
	"chainguard.dev/rubriceval/retry"
	"chainguard.dev/rubriceval/rubric"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const testRubric = `
id: test
signals:
  - id: systems_data
    lexical: {strong: ["hvac"]}
  - id: funding_sources
    semantic: {query: "funding"}
  - id: unused
    lexical: {strong: ["never"]}
criteria:
  - id: inventory
    scale: [1, 2]
    bands:
      - {score: 1, label: Low}
      - score: 2
        label: High
        required: [{signal_category: systems_data, min_evidence: 1}]
  - id: finance
    scale: [1, 2]
    bands:
      - {score: 1, label: Low}
      - score: 2
        label: High
        required: [{signal_category: funding_sources, min_evidence: 1}]
`

func mustRubric(t *testing.T) *rubric.Rubric {
	t.Helper()
	r, err := rubric.Parse([]byte(testRubric))
	require.NoError(t, err)
	return r
}

func mustDoc(t *testing.T, text string) *document.Document {
	t.Helper()
	d, err := document.New("doc", text, &document.Hints{})
	require.NoError(t, err)
	return d
}

// fakeMatcher returns canned evidence per signal, or an error.
type fakeMatcher struct {
	name  string
	items map[string][]evidence.Evidence
	errs  map[string]error
	calls atomic.Int32
}

func (f *fakeMatcher) Name() string { return f.name }

func (f *fakeMatcher) Match(_ context.Context, _ *document.Document, sig rubric.Signal) ([]evidence.Evidence, error) {
	f.calls.Add(1)
	if err := f.errs[sig.ID]; err != nil {
		return nil, err
	}
	return f.items[sig.ID], nil
}

func item(start, end int, s rubric.Strength) evidence.Evidence {
	return evidence.Evidence{Span: document.Span{Start: start, End: end}, Strength: s}
}

func testRetry() retry.Config {
	return retry.Config{MaxRetries: 2, AttemptTimeout: time.Second, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
}

func TestDedupe(t *testing.T) {
	mk := func(cat string, start, end int, s rubric.Strength) evidence.Evidence {
		e := item(start, end, s)
		e.Category = cat
		e.ID = evidence.MakeID(cat, e.Span)
		return e
	}
	in := []evidence.Evidence{
		mk("a", 10, 20, rubric.Moderate),
		// Overlaps the first and is stronger.
		mk("a", 12, 18, rubric.Strong),
		mk("a", 30, 40, rubric.Weak),
		// Same strength, longer.
		mk("a", 30, 45, rubric.Weak),
		// Other categories are independent.
		mk("b", 12, 18, rubric.Weak),
		mk("a", 50, 55, rubric.Strong),
		// Same strength and length, later.
		mk("a", 53, 58, rubric.Strong),
	}
	got := evidence.Dedupe(in)

	var ids []string
	for _, e := range got {
		ids = append(ids, e.ID)
	}
	want := []string{"a@12-18", "b@12-18", "a@30-45", "a@50-55"}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Errorf("Dedupe() (-want +got):\n%s", diff)
	}
	if len(in) != 7 || in[0].ID != "a@10-20" {
		t.Error("Dedupe() modified its input")
	}
}

func TestExtract(t *testing.T) {
	r := mustRubric(t)
	doc := mustDoc(t, "The HVAC systems and the roof. The bond measure funds HVAC work.")

	lex := &fakeMatcher{name: "lexical", items: map[string][]evidence.Evidence{
		"systems_data": {item(54, 58, rubric.Strong), item(4, 8, rubric.Strong), item(-1, 3, rubric.Strong)},
		"unused":       {item(0, 3, rubric.Strong)},
	}}
	sem := &fakeMatcher{name: "semantic", errs: map[string]error{
		"funding_sources": errors.New("503 backend overloaded"),
	}}

	res, err := evidence.NewExtractor([]evidence.Matcher{lex, sem}, evidence.WithRetry(testRetry())).
		Extract(context.Background(), doc, r)
	require.NoError(t, err)

	var ids []string
	for _, e := range res.Items {
		ids = append(ids, e.ID)
		if diff := cmp.Diff([]string{"inventory"}, e.Criteria); diff != "" {
			t.Errorf("%s criteria (-want +got):\n%s", e.ID, diff)
		}
		if e.Source != "lexical" {
			t.Errorf("%s source = %q, wanted = lexical", e.ID, e.Source)
		}
	}
	// Unreferenced signals are never extracted; malformed spans are dropped.
	if diff := cmp.Diff([]string{"systems_data@4-8", "systems_data@54-58"}, ids); diff != "" {
		t.Errorf("Items (-want +got):\n%s", diff)
	}

	require.Len(t, res.Unavailable, 1)
	u := res.Unavailable[0]
	if u.Category != "funding_sources" || u.Matcher != "semantic" {
		t.Errorf("Unavailable = %v", u)
	}
	if got := sem.calls.Load(); got != 3+1 {
		// systems_data (no error, 1 call) plus 3 attempts for funding_sources.
		t.Errorf("semantic calls = %d, wanted = 4", got)
	}
	if diff := cmp.Diff([]string{"funding_sources"}, res.UnavailableCategories()); diff != "" {
		t.Errorf("UnavailableCategories() (-want +got):\n%s", diff)
	}
}

func TestExtractPermanentErrorIsNotRetried(t *testing.T) {
	r := mustRubric(t)
	doc := mustDoc(t, "text")
	sem := &fakeMatcher{name: "semantic", errs: map[string]error{
		"funding_sources": evidence.Permanent(errors.New("401 invalid key")),
	}}
	res, err := evidence.NewExtractor([]evidence.Matcher{sem}, evidence.WithRetry(testRetry())).
		Extract(context.Background(), doc, r)
	require.NoError(t, err)
	require.Len(t, res.Unavailable, 1)
	if !evidence.IsPermanent(res.Unavailable[0]) {
		t.Error("IsPermanent() = false, wanted true")
	}
	if got := sem.calls.Load(); got != 2 {
		t.Errorf("calls = %d, wanted = 2 (one per referenced category)", got)
	}
}

func TestExtractDeterministic(t *testing.T) {
	r := mustRubric(t)
	doc := mustDoc(t, "HVAC HVAC HVAC HVAC")
	lex := &fakeMatcher{name: "lexical", items: map[string][]evidence.Evidence{
		"systems_data": {item(15, 19, rubric.Strong), item(0, 4, rubric.Strong), item(10, 14, rubric.Moderate), item(5, 9, rubric.Weak)},
	}}
	ex := evidence.NewExtractor([]evidence.Matcher{lex}, evidence.WithConcurrency(4))

	first, err := ex.Extract(context.Background(), doc, r)
	require.NoError(t, err)
	for range 10 {
		again, err := ex.Extract(context.Background(), doc, r)
		require.NoError(t, err)
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("Extract() not deterministic (-first +again):\n%s", diff)
		}
	}
}

type blockingMatcher struct{}

func (blockingMatcher) Name() string { return "blocking" }

func (blockingMatcher) Match(ctx context.Context, _ *document.Document, _ rubric.Signal) ([]evidence.Evidence, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestExtractCancellation(t *testing.T) {
	r := mustRubric(t)
	doc := mustDoc(t, "text")
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	res, err := evidence.NewExtractor([]evidence.Matcher{blockingMatcher{}}, evidence.WithRetry(testRetry())).
		Extract(ctx, doc, r)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Extract() = %v, wanted context.Canceled", err)
	}
	if res != nil {
		t.Errorf("Extract() result = %v, wanted nil", res)
	}
}

func TestMemoize(t *testing.T) {
	doc := mustDoc(t, "HVAC")
	sig := rubric.Signal{ID: "systems_data"}

	base := &fakeMatcher{name: "semantic", items: map[string][]evidence.Evidence{
		"systems_data": {item(0, 4, rubric.Strong)},
	}}
	m := evidence.Memoize(base)
	if m.Name() != "semantic" {
		t.Errorf("Name() = %q, wanted = semantic", m.Name())
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := m.Match(context.Background(), doc, sig)
			if err != nil || len(got) != 1 {
				t.Errorf("Match() = %v, %v", got, err)
			}
		}()
	}
	wg.Wait()
	if got := base.calls.Load(); got != 1 {
		t.Errorf("underlying calls = %d, wanted = 1", got)
	}

	// Errors are not cached.
	failing := &fakeMatcher{name: "semantic", errs: map[string]error{"systems_data": errors.New("boom")}}
	fm := evidence.Memoize(failing)
	for range 2 {
		if _, err := fm.Match(context.Background(), doc, sig); err == nil {
			t.Error("Match() = nil error, wanted boom")
		}
	}
	if got := failing.calls.Load(); got != 2 {
		t.Errorf("failing calls = %d, wanted = 2", got)
	}
}

func TestPartition(t *testing.T) {
	r := mustRubric(t)
	res := &evidence.Result{
		Items: []evidence.Evidence{
			{ID: "systems_data@0-4", Category: "systems_data", Strength: rubric.Strong, Criteria: []string{"inventory"}},
			{ID: "systems_data@5-9", Category: "systems_data", Strength: rubric.Moderate, Criteria: []string{"inventory"}},
		},
		Unavailable: []*evidence.UnavailableError{{Category: "funding_sources", Matcher: "semantic", Err: errors.New("x")}},
	}
	sets := evidence.Partition(r, res)
	require.Len(t, sets, 2)

	if sets[0].Criterion != "inventory" || len(sets[0].Items) != 2 || len(sets[0].Unavailable) != 0 {
		t.Errorf("inventory set = %+v", sets[0])
	}
	strong, moderate, weak := sets[0].Count("systems_data")
	if strong != 1 || moderate != 1 || weak != 0 {
		t.Errorf("Count() = %d, %d, %d, wanted = 1, 1, 0", strong, moderate, weak)
	}
	if diff := cmp.Diff([]string{"systems_data@0-4", "systems_data@5-9"}, sets[0].IDs("systems_data")); diff != "" {
		t.Errorf("IDs() (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(evidence.Set{Criterion: "finance", Unavailable: []string{"funding_sources"}}, sets[1]); diff != "" {
		t.Errorf("finance set (-want +got):\n%s", diff)
	}

	sets[0].Items[0].Criteria[0] = "mutated"
	if res.Items[0].Criteria[0] != "inventory" {
		t.Error("Partition() shares memory with its input")
	}
}
