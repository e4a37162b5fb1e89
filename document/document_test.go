/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package document

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const plan = `# Facility Condition
The district completed a facility condition assessment in 2023.

## Systems
| Building | HVAC age | Roof age |
| Lincoln ES | 32 years | 18 years |

# Finance
A general obligation bond of $120 million is proposed.
`

func TestDetect(t *testing.T) {
	h := Detect(plan)

	var titles []string
	for _, s := range h.Sections {
		titles = append(titles, fmt.Sprintf("%d:%s", s.Level, s.Title))
	}
	if diff := cmp.Diff([]string{"1:Facility Condition", "2:Systems", "1:Finance"}, titles); diff != "" {
		t.Errorf("sections (-want +got):\n%s", diff)
	}
	if len(h.Tables) != 1 {
		t.Fatalf("tables = %v, wanted 1", h.Tables)
	}
	table := plan[h.Tables[0].Start:h.Tables[0].End]
	if !strings.HasPrefix(table, "| Building") || !strings.HasSuffix(table, "18 years |") {
		t.Errorf("table = %q", table)
	}

	last := h.Sections[len(h.Sections)-1]
	if last.End != len(plan) {
		t.Errorf("last section end = %d, wanted = %d", last.End, len(plan))
	}
	if h.Sections[0].End != h.Sections[1].Start {
		t.Errorf("section 0 end = %d, wanted = %d", h.Sections[0].End, h.Sections[1].Start)
	}
}

func TestDocumentQueries(t *testing.T) {
	d, err := New("Plan", plan, nil)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}

	age := strings.Index(plan, "32 years")
	if !d.InTable(Span{Start: age, End: age + len("32 years")}) {
		t.Error("InTable(32 years) = false, wanted true")
	}
	bond := strings.Index(plan, "$120 million")
	if d.InTable(Span{Start: bond, End: bond + 4}) {
		t.Error("InTable(bond) = true, wanted false")
	}

	s, ok := d.SectionAt(age)
	if !ok || s.Title != "Systems" {
		t.Errorf("SectionAt(age) = %v, %v, wanted Systems", s, ok)
	}

	sentence := d.Slice(d.Sentence(Span{Start: bond, End: bond + len("$120 million")}))
	if want := "A general obligation bond of $120 million is proposed."; sentence != want {
		t.Errorf("Sentence() = %q, wanted = %q", sentence, want)
	}
}

func TestSentenceKeepsAbbreviations(t *testing.T) {
	text := "Intro. The campus has 45,000 sq. ft. of space. Next sentence."
	d, err := New("t", text, &Hints{})
	if err != nil {
		t.Fatal(err)
	}
	pos := strings.Index(text, "45,000")
	got := d.Slice(d.Sentence(Span{Start: pos, End: pos + len("45,000 sq. ft.")}))
	if want := " The campus has 45,000 sq. ft. of space."; got != want {
		t.Errorf("Sentence() = %q, wanted = %q", got, want)
	}
}

func TestNewRejectsBadHints(t *testing.T) {
	_, err := New("t", "short", &Hints{Tables: []Span{{Start: 2, End: 50}}})
	if err == nil {
		t.Fatal("New() = nil, wanted error")
	}
}

func TestHashCoversHints(t *testing.T) {
	a, _ := New("a", "same text", &Hints{})
	b, _ := New("b", "same text", &Hints{})
	c, _ := New("c", "same text", &Hints{Tables: []Span{{Start: 0, End: 4}}})
	if a.Hash() != b.Hash() {
		t.Error("identical documents hash differently")
	}
	if a.Hash() == c.Hash() {
		t.Error("hints do not affect the hash")
	}
}

func TestChunks(t *testing.T) {
	words := make([]string, 100)
	for i := range words {
		words[i] = fmt.Sprintf("w%03d", i)
	}
	text := "  " + strings.Join(words, " ") + "\n"
	d, _ := New("t", text, &Hints{})

	// 5 tokens is 20 bytes: four 4-byte words plus separators.
	chunks := d.Chunks(5)
	if len(chunks) != 25 {
		t.Fatalf("len(Chunks()) = %d, wanted = 25", len(chunks))
	}
	var rebuilt []string
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d index = %d", i, c.Index)
		}
		if c.Span.Len() > 20 {
			t.Errorf("chunk %d is %d bytes, wanted <= 20", i, c.Span.Len())
		}
		if got := d.Slice(c.Span); got != c.Text {
			t.Errorf("chunk %d text = %q, span text = %q", i, c.Text, got)
		}
		rebuilt = append(rebuilt, strings.Fields(c.Text)...)
	}
	if diff := cmp.Diff(words, rebuilt); diff != "" {
		t.Errorf("chunk words (-want +got):\n%s", diff)
	}

	if got := d.Chunks(5); !cmp.Equal(chunks, got) {
		t.Error("Chunks() is not deterministic")
	}

	empty, _ := New("e", " \n\t", &Hints{})
	if got := empty.Chunks(10); len(got) != 0 {
		t.Errorf("Chunks(blank) = %v, wanted none", got)
	}
}

type mapReader map[string]string

func (m mapReader) Read(_ context.Context, uri string) ([]byte, error) {
	s, ok := m[uri]
	if !ok {
		return nil, fmt.Errorf("%s: not found", uri)
	}
	return []byte(s), nil
}

func TestLoad(t *testing.T) {
	r := mapReader{
		"plans/san_mateo-fmp.txt": "Table:\r\nrow\r\n",
		"plans/hints.yaml":        "tables:\n  - {start: 7, end: 10}\nsections:\n  - {title: All, start: 0, end: 11}\n",
		"plans/scan.pdf":          "%PDF-1.7 binary",
		"plans/bad-hints.yaml":    "tables: [{start: 0, end: 99}]\n",
	}
	ctx := context.Background()

	d, err := Load(ctx, "plans/san_mateo-fmp.txt", LoadOptions{HintsURI: "plans/hints.yaml", Reader: r})
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if got, want := d.Name(), "San Mateo Fmp"; got != want {
		t.Errorf("Name() = %q, wanted = %q", got, want)
	}
	if got, want := d.Text(), "Table:\nrow\n"; got != want {
		t.Errorf("Text() = %q, wanted = %q", got, want)
	}
	if got := d.Slice(d.Tables()[0]); got != "row" {
		t.Errorf("table = %q, wanted = %q", got, "row")
	}

	_, err = Load(ctx, "plans/scan.pdf", LoadOptions{Reader: r})
	var ue *UnreadableError
	if !errors.As(err, &ue) {
		t.Errorf("Load(pdf) = %v, wanted *UnreadableError", err)
	}

	if _, err := Load(ctx, "plans/san_mateo-fmp.txt", LoadOptions{HintsURI: "plans/bad-hints.yaml", Reader: r}); err == nil {
		t.Error("Load(bad hints) = nil, wanted error")
	}
	if _, err := Load(ctx, "plans/missing.txt", LoadOptions{Reader: r}); err == nil {
		t.Error("Load(missing) = nil, wanted error")
	}
}

func TestNameFromURI(t *testing.T) {
	tests := map[string]string{
		"oakland.txt":                 "Oakland",
		"gs://bucket/west_contra.txt": "West Contra",
		"s3://b/dir/LOS-ANGELES.md":   "Los Angeles",
		"noext":                       "Noext",
	}
	for uri, want := range tests {
		if got := NameFromURI(uri); got != want {
			t.Errorf("NameFromURI(%q) = %q, wanted = %q", uri, got, want)
		}
	}
}
