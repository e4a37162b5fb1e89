/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package evidence

import (
	"cmp"
	"context"
	"fmt"
	"runtime"
	"slices"

	"chainguard.dev/rubriceval/document"
	"chainguard.dev/rubriceval/retry"
	"chainguard.dev/rubriceval/rubric"
	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Matcher finds evidence for one signal category. Implementations return nil
// for signals they are not configured for and must be safe for concurrent
// use.
type Matcher interface {
	Name() string
	Match(ctx context.Context, doc *document.Document, sig rubric.Signal) ([]Evidence, error)
}

// Result is the output of one extraction run.
type Result struct {
	// Items is de-duplicated and in canonical order (see Compare).
	Items []Evidence
	// Unavailable lists category failures ordered by category then matcher.
	Unavailable []*UnavailableError
}

// UnavailableCategories returns the distinct failed categories, sorted.
func (r *Result) UnavailableCategories() []string {
	var out []string
	for _, u := range r.Unavailable {
		if !slices.Contains(out, u.Category) {
			out = append(out, u.Category)
		}
	}
	slices.Sort(out)
	return out
}

// Extractor runs every matcher for every referenced signal category.
type Extractor struct {
	matchers    []Matcher
	retry       retry.Config
	concurrency int
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithRetry sets the per-call timeout and retry budget for matcher calls.
func WithRetry(cfg retry.Config) Option {
	return func(e *Extractor) { e.retry = cfg }
}

// WithConcurrency bounds the number of categories extracted at once.
func WithConcurrency(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// NewExtractor creates an extractor over the given matchers.
func NewExtractor(matchers []Matcher, opts ...Option) *Extractor {
	e := &Extractor{
		matchers:    slices.Clone(matchers),
		retry:       retry.DefaultConfig(),
		concurrency: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type categoryResult struct {
	items       []Evidence
	unavailable []*UnavailableError
}

// Extract scans doc for every signal category referenced by r. Matcher
// failures are recorded per category in Result.Unavailable. Only
// cancellation of ctx is returned as an error.
func (e *Extractor) Extract(ctx context.Context, doc *document.Document, r *rubric.Rubric) (*Result, error) {
	tr := otel.Tracer("chainguard.dev/rubriceval/evidence",
		oteltrace.WithInstrumentationVersion("1.0.0"))
	ctx, span := tr.Start(ctx, "evidence.extract", oteltrace.WithAttributes(
		attribute.String("rubric.id", r.ID()),
		attribute.String("document.name", doc.Name()),
	))
	defer span.End()

	categories := r.ReferencedSignals()
	slots := make([]categoryResult, len(categories))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(e.concurrency)
	for i, id := range categories {
		sig, _ := r.Signal(id)
		criteria := r.CriteriaFor(id)
		eg.Go(func() error {
			res, err := e.category(egCtx, tr, doc, sig, criteria)
			if err != nil {
				return err
			}
			slots[i] = res
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "extraction cancelled")
		return nil, err
	}

	var (
		items []Evidence
		out   = &Result{}
	)
	for _, s := range slots {
		items = append(items, s.items...)
		out.Unavailable = append(out.Unavailable, s.unavailable...)
	}
	out.Items = Dedupe(items)
	slices.SortFunc(out.Unavailable, func(a, b *UnavailableError) int {
		return cmp.Or(cmp.Compare(a.Category, b.Category), cmp.Compare(a.Matcher, b.Matcher))
	})

	span.SetAttributes(
		attribute.Int("evidence.count", len(out.Items)),
		attribute.Int("evidence.unavailable", len(out.Unavailable)),
	)
	return out, nil
}

func (e *Extractor) category(ctx context.Context, tr oteltrace.Tracer, doc *document.Document, sig rubric.Signal, criteria []string) (categoryResult, error) {
	ctx, span := tr.Start(ctx, "evidence.signal", oteltrace.WithAttributes(
		attribute.String("signal", sig.ID),
	))
	defer span.End()

	var res categoryResult
	for _, m := range e.matchers {
		items, err := Guard(m, e.retry).Match(ctx, doc, sig)
		if err != nil {
			if ctx.Err() != nil {
				return categoryResult{}, context.Cause(ctx)
			}
			u := &UnavailableError{Category: sig.ID, Matcher: m.Name(), Err: err}
			clog.FromContext(ctx).With("signal", sig.ID, "matcher", m.Name(), "error", err).
				Warn("Signal category unavailable, continuing with reduced evidence")
			span.RecordError(u)
			res.unavailable = append(res.unavailable, u)
			continue
		}
		for _, it := range items {
			if it.Span.Start < 0 || it.Span.End > doc.Len() || it.Span.Start >= it.Span.End || !it.Strength.Valid() {
				clog.FromContext(ctx).With("signal", sig.ID, "matcher", m.Name(), "span", it.Span.String()).
					Warn("Dropping malformed evidence")
				continue
			}
			it.Category = sig.ID
			it.ID = MakeID(sig.ID, it.Span)
			it.Criteria = slices.Clone(criteria)
			if it.Source == "" {
				it.Source = m.Name()
			}
			res.items = append(res.items, it)
		}
	}
	span.SetAttributes(attribute.Int("evidence.count", len(res.items)))
	return res, nil
}

// Guard bounds every call of m with the per-call timeout and retry budget
// of cfg.
func Guard(m Matcher, cfg retry.Config) Matcher {
	return &guarded{Matcher: m, cfg: cfg}
}

type guarded struct {
	Matcher
	cfg retry.Config
}

func (g *guarded) Match(ctx context.Context, doc *document.Document, sig rubric.Signal) ([]Evidence, error) {
	op := fmt.Sprintf("%s/%s", g.Name(), sig.ID)
	return retry.Do(ctx, g.cfg, op, Retryable, func(ctx context.Context) ([]Evidence, error) {
		return g.Matcher.Match(ctx, doc, sig)
	})
}
