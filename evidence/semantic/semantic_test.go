/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package semantic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"chainguard.dev/rubriceval/document"
	"chainguard.dev/rubriceval/rubric"
	"github.com/google/go-cmp/cmp"
)

// scriptedBackend answers with a reply computed from the prompt.
type scriptedBackend struct {
	mu      sync.Mutex
	prompts []string
	reply   func(prompt string) (string, error)
	calls   atomic.Int32
}

func (s *scriptedBackend) Model() string { return "scripted" }

func (s *scriptedBackend) Complete(_ context.Context, system, prompt string) (string, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()
	if system != systemPrompt {
		return "", errors.New("unexpected system prompt")
	}
	return s.reply(prompt)
}

func reply(matches ...Match) string {
	b, _ := json.Marshal(Response{Matches: matches})
	return string(b)
}

var funding = rubric.Signal{
	ID:          "funding_sources",
	Description: "identified capital funding sources",
	Semantic:    &rubric.SemanticDefinition{Query: "passages naming funding sources"},
}

func TestMatch(t *testing.T) {
	text := "The district will seek a general obligation bond.\nState matching   funds may cover 40 percent."
	doc, err := document.New("Oakland", text, &document.Hints{})
	if err != nil {
		t.Fatal(err)
	}
	b := &scriptedBackend{reply: func(string) (string, error) {
		return "Here you go:\n```json\n" + reply(
			Match{Quote: "general obligation bond", Strength: "strong"},
			Match{Quote: "state matching funds", Strength: "moderate"},
			Match{Quote: "a parcel tax", Strength: "strong"},
			Match{Quote: "bond", Strength: "certain"},
		) + "\n```", nil
	}}

	got, err := New(b).Match(context.Background(), doc, funding)
	if err != nil {
		t.Fatalf("Match() = %v", err)
	}

	var hits []string
	for _, e := range got {
		hits = append(hits, doc.Slice(e.Span)+"|"+e.Strength.String())
	}
	// The invented quote and the unknown strength are dropped; whitespace
	// and case differences are tolerated when locating quotes.
	want := []string{
		"general obligation bond|strong",
		"State matching   funds|moderate",
	}
	if diff := cmp.Diff(want, hits); diff != "" {
		t.Errorf("Match() (-want +got):\n%s", diff)
	}

	prompt := b.prompts[0]
	for _, s := range []string{`<signal id="funding_sources">`, "passages naming funding sources", `"matches"`, "<![CDATA[The district will seek"} {
		if !strings.Contains(prompt, s) {
			t.Errorf("prompt does not contain %q:\n%s", s, prompt)
		}
	}
}

func TestMatchChunkOffsets(t *testing.T) {
	// Two chunks of 8 bytes each (2 tokens).
	text := "alpha be gamma de"
	doc, _ := document.New("d", text, &document.Hints{})
	b := &scriptedBackend{reply: func(p string) (string, error) {
		if strings.Contains(p, "gamma") {
			return reply(Match{Quote: "gamma", Strength: "weak"}), nil
		}
		return reply(Match{Quote: "alpha", Strength: "weak"}), nil
	}}

	got, err := New(b, WithChunkTokens(2)).Match(context.Background(), doc, funding)
	if err != nil {
		t.Fatalf("Match() = %v", err)
	}
	var spans []document.Span
	for _, e := range got {
		spans = append(spans, e.Span)
	}
	want := []document.Span{{Start: 0, End: 5}, {Start: 9, End: 14}}
	if diff := cmp.Diff(want, spans); diff != "" {
		t.Errorf("spans (-want +got):\n%s", diff)
	}
}

func TestMatchNotConfigured(t *testing.T) {
	doc, _ := document.New("d", "text", nil)
	b := &scriptedBackend{reply: func(string) (string, error) { return reply(), nil }}
	got, err := New(b).Match(context.Background(), doc, rubric.Signal{ID: "lexical_only"})
	if err != nil || got != nil {
		t.Errorf("Match() = %v, %v, wanted nil", got, err)
	}
	if b.calls.Load() != 0 {
		t.Error("backend called for a signal without a semantic query")
	}
}

func TestMatchRetryReusesFinishedChunks(t *testing.T) {
	text := "alpha be gamma de"
	doc, _ := document.New("d", text, &document.Hints{})
	var failed atomic.Bool
	b := &scriptedBackend{reply: func(p string) (string, error) {
		if strings.Contains(p, "gamma") && !failed.Swap(true) {
			return "", errors.New("503 overloaded")
		}
		return reply(), nil
	}}
	m := New(b, WithChunkTokens(2), WithParallelism(1))

	if _, err := m.Match(context.Background(), doc, funding); err == nil {
		t.Fatal("first Match() = nil, wanted error")
	}
	if _, err := m.Match(context.Background(), doc, funding); err != nil {
		t.Fatalf("second Match() = %v", err)
	}
	// Chunk 0 once, chunk 1 twice.
	if got := b.calls.Load(); got != 3 {
		t.Errorf("calls = %d, wanted = 3", got)
	}
}

func TestMatchMalformedReply(t *testing.T) {
	doc, _ := document.New("d", "text", nil)
	b := &scriptedBackend{reply: func(string) (string, error) { return "I could not find anything.", nil }}
	if _, err := New(b).Match(context.Background(), doc, funding); err == nil {
		t.Error("Match() = nil, wanted a decoding error")
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  string
	}{{
		name:  "bare",
		reply: `  {"matches": []}  `,
		want:  `{"matches": []}`,
	}, {
		name:  "fenced",
		reply: "Sure.\n```json\n{\"matches\": []}\n```\nDone.",
		want:  `{"matches": []}`,
	}, {
		name:  "unlabeled fence",
		reply: "```\n{\"matches\": []}\n```",
		want:  `{"matches": []}`,
	}, {
		name:  "prose around object",
		reply: `Result: {"matches": [{"quote": "a } brace", "strength": "weak"}]} hope this helps`,
		want:  `{"matches": [{"quote": "a } brace", "strength": "weak"}]}`,
	}, {
		name:  "last object wins",
		reply: `Example {"x": 1}. Answer: {"matches": []}`,
		want:  `{"matches": []}`,
	}, {
		name:  "empty fence",
		reply: "```json\n```",
		want:  "",
	}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractJSON(tt.reply); got != tt.want {
				t.Errorf("ExtractJSON() = %q, wanted = %q", got, tt.want)
			}
		})
	}

	if _, err := ParseResponse("```json\n```"); err == nil {
		t.Error("ParseResponse(empty) = nil error")
	}
}

func TestPromptUnbound(t *testing.T) {
	p := newPrompt("{{a}} and {{b}}").bind("a", "x")
	if _, err := p.build(); err == nil || !strings.Contains(err.Error(), "b") {
		t.Errorf("build() = %v, wanted unbound b", err)
	}
	got, err := p.bind("b", "{{a}}").build()
	if err != nil {
		t.Fatalf("build() = %v", err)
	}
	// Bound values are not expanded again.
	if got != "x and {{a}}" {
		t.Errorf("build() = %q, wanted = %q", got, "x and {{a}}")
	}
}

func TestForRunStartsEmpty(t *testing.T) {
	doc, _ := document.New("d", "alpha be gamma de", &document.Hints{})
	b := &scriptedBackend{reply: func(string) (string, error) { return reply(), nil }}
	m := New(b, WithChunkTokens(2))

	if _, err := m.ForRun().Match(context.Background(), doc, funding); err != nil {
		t.Fatalf("first run Match() = %v", err)
	}
	if _, err := m.ForRun().Match(context.Background(), doc, funding); err != nil {
		t.Fatalf("second run Match() = %v", err)
	}
	// Two chunks per run, nothing carried over.
	if got := b.calls.Load(); got != 4 {
		t.Errorf("calls = %d, wanted = 4", got)
	}
}

func TestReplySink(t *testing.T) {
	doc, _ := document.New("Oakland", "alpha be gamma de", &document.Hints{})
	b := &scriptedBackend{reply: func(p string) (string, error) {
		if strings.Contains(p, "gamma") {
			return "Sorry, nothing here.", nil
		}
		return reply(Match{Quote: "alpha", Strength: "strong"}), nil
	}}
	var buf bytes.Buffer
	m := New(b, WithChunkTokens(2), WithParallelism(1), WithReplySink(&buf))

	if _, err := m.ForRun().Match(context.Background(), doc, funding); err == nil {
		t.Fatal("Match() = nil, wanted the parse error of chunk 1")
	}

	var got []Reply
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		var r Reply
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("reply line %q: %v", sc.Text(), err)
		}
		got = append(got, r)
	}
	if len(got) != 2 {
		t.Fatalf("replies: got = %d, wanted = 2", len(got))
	}
	want := Reply{Document: "Oakland", Signal: "funding_sources", Chunk: 0, Model: "scripted", Reply: reply(Match{Quote: "alpha", Strength: "strong"})}
	if diff := cmp.Diff(want, got[0]); diff != "" {
		t.Errorf("first reply (-want +got):\n%s", diff)
	}
	if got[1].Chunk != 1 || got[1].Reply != "Sorry, nothing here." || got[1].Error == "" {
		t.Errorf("second reply: got = %+v, wanted chunk 1 with a parse error", got[1])
	}
}
