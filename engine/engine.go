/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package engine evaluates documents against rubrics.
//
// An evaluation extracts evidence for every signal category the rubric
// references, partitions it by criterion, scores each criterion on its own
// worker, waits for all of them and aggregates the results. A category whose
// extractor fails is recorded and scored as absent evidence. Cancellation
// of the context aborts the run with a CancellationError; a cancelled run
// never returns an assessment.
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"time"

	"chainguard.dev/rubriceval/aggregate"
	"chainguard.dev/rubriceval/audit"
	"chainguard.dev/rubriceval/document"
	"chainguard.dev/rubriceval/evidence"
	"chainguard.dev/rubriceval/evidence/lexical"
	"chainguard.dev/rubriceval/evidence/numeric"
	"chainguard.dev/rubriceval/retry"
	"chainguard.dev/rubriceval/rubric"
	"chainguard.dev/rubriceval/scorer"
	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// runNamespace scopes name-based run ids.
var runNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://chainguard.dev/rubriceval/run"))

// Engine evaluates documents. It holds no per-run state and may be shared by
// concurrent evaluations.
type Engine struct {
	matchers    []evidence.Matcher
	semantic    evidence.Matcher
	concurrency int
	retry       retry.Config
	aggregate   aggregate.Options
	strict      bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithMatchers replaces the default lexical and numeric matchers.
func WithMatchers(ms ...evidence.Matcher) Option {
	return func(e *Engine) { e.matchers = slices.Clone(ms) }
}

// WithSemantic adds a nondeterministic matcher. It is memoized per run, and
// a RunScoped matcher gets fresh state for every run.
func WithSemantic(m evidence.Matcher) Option {
	return func(e *Engine) { e.semantic = m }
}

// WithConcurrency bounds the extraction and scoring workers.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithTimeout sets the per-call extractor timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.retry.AttemptTimeout = d }
}

// WithRetryBudget sets the number of retries per category after the first
// attempt.
func WithRetryBudget(n int) Option {
	return func(e *Engine) { e.retry.MaxRetries = n }
}

// WithBackoff overrides the retry backoff.
func WithBackoff(base, maxBackoff, jitter time.Duration) Option {
	return func(e *Engine) {
		e.retry.BaseBackoff, e.retry.MaxBackoff, e.retry.MaxJitter = base, maxBackoff, jitter
	}
}

// WithAggregateOptions sets weights and thresholds.
func WithAggregateOptions(o aggregate.Options) Option {
	return func(e *Engine) { e.aggregate = o }
}

// WithStrict fails the run when any signal category is unavailable.
func WithStrict(strict bool) Option {
	return func(e *Engine) { e.strict = strict }
}

// New creates an Engine.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		matchers:    []evidence.Matcher{lexical.New(), numeric.New()},
		concurrency: runtime.GOMAXPROCS(0),
		retry:       retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.retry.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry settings: %w", err)
	}
	if len(e.matchers) == 0 && e.semantic == nil {
		return nil, errors.New("no matchers configured")
	}
	return e, nil
}

// Evaluation is the complete outcome of one run.
type Evaluation struct {
	RunID        string
	RubricID     string
	RubricName   string
	RubricHash   string
	Document     string
	DocumentHash string
	Assessment   *aggregate.Assessment
	Trail        *audit.Trail
	Evidence     []evidence.Evidence
	Unavailable  []*evidence.UnavailableError
}

// RunID derives the run identifier from the rubric and document contents.
func RunID(r *rubric.Rubric, doc *document.Document) string {
	return uuid.NewSHA1(runNamespace, []byte(r.Hash()+"\x00"+doc.Hash())).String()
}

// Evaluate scores doc against r.
func (e *Engine) Evaluate(ctx context.Context, r *rubric.Rubric, doc *document.Document) (*Evaluation, error) {
	tr := otel.Tracer("chainguard.dev/rubriceval/engine",
		oteltrace.WithInstrumentationVersion("1.0.0"))

	runID := RunID(r, doc)
	ctx, span := tr.Start(ctx, "rubric.evaluate", oteltrace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.String("rubric.id", r.ID()),
		attribute.String("document.name", doc.Name()),
	))
	defer span.End()

	log := clog.FromContext(ctx).With("run", runID, "rubric", r.ID(), "document", doc.Name())
	ctx = clog.WithLogger(ctx, log)

	ev, err := e.evaluate(ctx, r, doc, runID)
	outcome := outcomeOf(err)
	evaluationCounter.WithLabelValues(outcome).Inc()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		log.With("outcome", outcome, "error", err).Warn("Evaluation failed")
		return nil, err
	}

	for _, c := range ev.Assessment.Criteria {
		normalizedGauge.WithLabelValues(r.ID(), c.CriterionID).Set(c.Normalized)
	}
	span.SetAttributes(
		attribute.Float64("assessment.composite", ev.Assessment.Composite),
		attribute.String("assessment.label", ev.Assessment.Label),
	)
	log.With("composite", ev.Assessment.Composite, "label", ev.Assessment.Label).Info("Evaluation complete")
	return ev, nil
}

func (e *Engine) evaluate(ctx context.Context, r *rubric.Rubric, doc *document.Document, runID string) (*Evaluation, error) {
	matchers := slices.Clone(e.matchers)
	if e.semantic != nil {
		sem := e.semantic
		if s, ok := sem.(evidence.RunScoped); ok {
			sem = s.ForRun()
		}
		matchers = append(matchers, evidence.Memoize(sem))
	}
	ext := evidence.NewExtractor(matchers,
		evidence.WithRetry(e.retry),
		evidence.WithConcurrency(e.concurrency))

	res, err := ext.Extract(ctx, doc, r)
	if err != nil {
		return nil, cancelled(ctx, "extraction", err)
	}

	trail := audit.New(r)
	for _, u := range res.Unavailable {
		unavailableCounter.WithLabelValues(u.Category).Inc()
		trail.RecordUnavailable(audit.ExtractionFailure{
			Category: u.Category,
			Matcher:  u.Matcher,
			Criteria: r.CriteriaFor(u.Category),
			Reason:   u.Err.Error(),
		})
	}
	if e.strict && len(res.Unavailable) > 0 {
		return nil, &ExtractionError{Unavailable: res.Unavailable}
	}

	sets := evidence.Partition(r, res)
	criteria := r.Criteria()
	results := make([]scorer.Result, len(criteria))
	sc := scorer.New(scorer.WithTrail(trail))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(e.concurrency)
	for i, c := range criteria {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return context.Cause(egCtx)
			}
			results[i] = sc.Score(c, sets[i])
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, cancelled(ctx, "scoring", err)
	}
	// A cancellation that lands after the last worker still voids the run.
	if ctx.Err() != nil {
		return nil, cancelled(ctx, "scoring", ctx.Err())
	}

	a, err := aggregate.Aggregate(r, results, e.aggregate)
	if err != nil {
		return nil, err
	}
	return &Evaluation{
		RunID:        runID,
		RubricID:     r.ID(),
		RubricName:   r.Name(),
		RubricHash:   r.Hash(),
		Document:     doc.Name(),
		DocumentHash: doc.Hash(),
		Assessment:   a,
		Trail:        trail,
		Evidence:     res.Items,
		Unavailable:  res.Unavailable,
	}, nil
}

func cancelled(ctx context.Context, stage string, err error) error {
	if cause := context.Cause(ctx); cause != nil {
		err = cause
	}
	return &CancellationError{Stage: stage, Cause: err}
}

func outcomeOf(err error) string {
	var (
		cancel     *CancellationError
		extraction *ExtractionError
		incomplete *aggregate.IncompleteAssessmentError
	)
	switch {
	case err == nil:
		return OutcomeComplete
	case errors.As(err, &cancel):
		return OutcomeCancelled
	case errors.As(err, &extraction):
		return OutcomeExtraction
	case errors.As(err, &incomplete):
		return OutcomeIncomplete
	default:
		return OutcomeError
	}
}
