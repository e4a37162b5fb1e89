/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package semantic finds evidence with an external language model. The
// document is split into chunks, each chunk is sent to a Backend together
// with the signal's query, and every quoted passage in the reply that can be
// located verbatim in the chunk becomes an evidence item.
//
// Model replies are not reproducible across calls, so the engine wraps the
// matcher with evidence.Memoize for the duration of a run. Successful chunk
// replies are also kept so that a retried category call only repeats the
// chunks that failed. That cache belongs to one run: the engine calls
// ForRun at the start of every evaluation.
package semantic

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"

	"chainguard.dev/rubriceval/document"
	"chainguard.dev/rubriceval/evidence"
	"chainguard.dev/rubriceval/rubric"
	"github.com/chainguard-dev/clog"
	"golang.org/x/sync/errgroup"
)

// Name identifies the matcher in evidence and audit records.
const Name = "semantic"

// Matcher queries a Backend chunk by chunk.
type Matcher struct {
	backend     Backend
	chunkTokens int
	parallel    int

	replies     *replyLog

	mu    sync.Mutex
	cache map[string][]found
}

// Reply is one raw backend reply as written to the reply sink.
type Reply struct {
	Document string `json:"document"`
	Signal   string `json:"signal"`
	Chunk    int    `json:"chunk"`
	Model    string `json:"model"`
	Reply    string `json:"reply"`
	// Error is set when the reply could not be parsed.
	Error string `json:"error,omitempty"`
}

// replyLog serializes JSON lines onto a shared writer.
type replyLog struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func (l *replyLog) write(r Reply) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enc.Encode(r)
}

type found struct {
	span     document.Span
	strength rubric.Strength
	quote    string
}

var _ evidence.RunScoped = (*Matcher)(nil)

// Option configures a Matcher.
type Option func(*Matcher)

// WithChunkTokens sets the approximate chunk size in tokens.
func WithChunkTokens(n int) Option {
	return func(m *Matcher) {
		if n > 0 {
			m.chunkTokens = n
		}
	}
}

// WithParallelism bounds the number of concurrent backend calls per signal.
func WithParallelism(n int) Option {
	return func(m *Matcher) {
		if n > 0 {
			m.parallel = n
		}
	}
}

// WithReplySink writes every raw backend reply to w as a JSON line, so
// that replies which failed to parse can be inspected later.
func WithReplySink(w io.Writer) Option {
	return func(m *Matcher) {
		if w != nil {
			m.replies = &replyLog{enc: json.NewEncoder(w)}
		}
	}
}

// New creates a semantic matcher over backend.
func New(backend Backend, opts ...Option) *Matcher {
	m := &Matcher{
		backend:     backend,
		chunkTokens: document.DefaultChunkTokens,
		parallel:    4,
		cache:       make(map[string][]found),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ForRun implements evidence.RunScoped. The returned matcher shares the
// backend and reply sink but starts with an empty chunk cache.
func (m *Matcher) ForRun() evidence.Matcher {
	return &Matcher{
		backend:     m.backend,
		chunkTokens: m.chunkTokens,
		parallel:    m.parallel,
		replies:     m.replies,
		cache:       make(map[string][]found),
	}
}

// Name implements evidence.Matcher
func (*Matcher) Name() string { return Name }

// Match implements evidence.Matcher
func (m *Matcher) Match(ctx context.Context, doc *document.Document, sig rubric.Signal) ([]evidence.Evidence, error) {
	if sig.Semantic == nil {
		return nil, nil
	}
	chunks := doc.Chunks(m.chunkTokens)
	slots := make([][]found, len(chunks))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(m.parallel)
	for i, c := range chunks {
		eg.Go(func() error {
			res, err := m.chunk(ctx, doc.Name(), c, sig)
			if err != nil {
				return err
			}
			slots[i] = res
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var out []evidence.Evidence
	for _, s := range slots {
		for _, f := range s {
			out = append(out, evidence.New(doc, sig.ID, f.span, f.strength, Name, f.quote))
		}
	}
	return out, nil
}

func (m *Matcher) chunk(ctx context.Context, docName string, c document.Chunk, sig rubric.Signal) ([]found, error) {
	key := cacheKey(c, sig)
	m.mu.Lock()
	cached, ok := m.cache[key]
	m.mu.Unlock()
	if ok {
		return cached, nil
	}

	user, err := m.userPrompt(docName, c.Index, c.Text, sig.ID, sig.Description, sig.Semantic.Query)
	if err != nil {
		return nil, evidence.Permanent(err)
	}
	reply, err := m.backend.Complete(ctx, systemPrompt, user)
	if err != nil {
		return nil, fmt.Errorf("chunk %d: %w", c.Index, err)
	}
	resp, err := ParseResponse(reply)

	log := clog.FromContext(ctx).With("signal", sig.ID, "chunk", c.Index, "model", m.backend.Model())
	if m.replies != nil {
		rec := Reply{Document: docName, Signal: sig.ID, Chunk: c.Index, Model: m.backend.Model(), Reply: reply}
		if err != nil {
			rec.Error = err.Error()
		}
		if werr := m.replies.write(rec); werr != nil {
			log.With("error", werr).Warn("Failed to record raw reply")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("chunk %d: %w", c.Index, err)
	}
	var out []found
	for _, match := range resp.Matches {
		strength, err := rubric.ParseStrength(match.Strength)
		if err != nil {
			log.With("strength", match.Strength).Warn("Dropping match with unknown strength")
			continue
		}
		idx, n, ok := locate(c.Text, match.Quote)
		if !ok {
			log.With("quote", match.Quote).Warn("Dropping quote not found in the excerpt")
			continue
		}
		out = append(out, found{
			span:     document.Span{Start: c.Span.Start + idx, End: c.Span.Start + idx + n},
			strength: strength,
			quote:    match.Quote,
		})
	}

	m.mu.Lock()
	m.cache[key] = out
	m.mu.Unlock()
	return out, nil
}

func cacheKey(c document.Chunk, sig rubric.Signal) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d\x00%s\x00%s\x00%s", c.Span.Start, sig.ID, sig.Semantic.Query, c.Text)
	return hex.EncodeToString(h.Sum(nil))
}

// locate finds quote in text, first exactly and then allowing any run of
// whitespace between words and ignoring case. It returns the byte offset and
// length of the first occurrence.
func locate(text, quote string) (int, int, bool) {
	quote = strings.TrimSpace(quote)
	if quote == "" {
		return 0, 0, false
	}
	if i := strings.Index(text, quote); i >= 0 {
		return i, len(quote), true
	}
	words := strings.Fields(quote)
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	re, err := regexp.Compile(`(?i)` + strings.Join(words, `\s+`))
	if err != nil {
		return 0, 0, false
	}
	loc := re.FindStringIndex(text)
	if loc == nil {
		return 0, 0, false
	}
	return loc[0], loc[1] - loc[0], true
}
