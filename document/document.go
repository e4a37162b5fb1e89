/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package document holds the plain-text input of an evaluation along with
// optional structural hints (section boundaries and table markers).
package document

import (
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
)

// Span is a half-open byte range [Start, End) into the document text.
type Span struct {
	Start int `yaml:"start" json:"start"`
	End   int `yaml:"end" json:"end"`
}

// Len returns the number of bytes covered.
func (s Span) Len() int { return s.End - s.Start }

// Contains reports whether pos falls inside the span.
func (s Span) Contains(pos int) bool { return s.Start <= pos && pos < s.End }

// Overlaps reports whether the two spans share at least one byte.
func (s Span) Overlaps(o Span) bool { return s.Start < o.End && o.Start < s.End }

// String implements fmt.Stringer
func (s Span) String() string { return fmt.Sprintf("%d-%d", s.Start, s.End) }

// Section is a titled region of the document.
type Section struct {
	Title string `yaml:"title" json:"title"`
	Level int    `yaml:"level,omitempty" json:"level,omitempty"`
	Span  `yaml:",inline" json:",inline"`
}

// Hints are the optional structural markers supplied with a document.
type Hints struct {
	Sections []Section `yaml:"sections,omitempty" json:"sections,omitempty"`
	Tables   []Span    `yaml:"tables,omitempty" json:"tables,omitempty"`
}

// Document is immutable once constructed and safe for concurrent reads.
type Document struct {
	name     string
	text     string
	hash     string
	sections []Section
	tables   []Span
}

// New creates a document. When hints is nil the structure is detected from
// the text itself (see Detect). Hints referencing bytes outside the text are
// rejected.
func New(name, text string, hints *Hints) (*Document, error) {
	if hints == nil {
		h := Detect(text)
		hints = &h
	}
	d := &Document{
		name:     name,
		text:     text,
		sections: slices.Clone(hints.Sections),
		tables:   slices.Clone(hints.Tables),
	}
	for _, s := range d.sections {
		if err := d.check(s.Span); err != nil {
			return nil, fmt.Errorf("section %q: %w", s.Title, err)
		}
	}
	for _, t := range d.tables {
		if err := d.check(t); err != nil {
			return nil, fmt.Errorf("table: %w", err)
		}
	}
	slices.SortStableFunc(d.sections, func(a, b Section) int { return cmp.Compare(a.Start, b.Start) })
	slices.SortFunc(d.tables, func(a, b Span) int { return cmp.Compare(a.Start, b.Start) })
	d.hash = d.computeHash()
	return d, nil
}

func (d *Document) check(s Span) error {
	if s.Start < 0 || s.End > len(d.text) || s.Start > s.End {
		return fmt.Errorf("span %s is outside the document (%d bytes)", s, len(d.text))
	}
	return nil
}

func (d *Document) computeHash() string {
	h := sha256.New()
	h.Write([]byte(d.text))
	for _, s := range d.sections {
		fmt.Fprintf(h, "\x00s%d:%d:%d:%s", s.Start, s.End, s.Level, s.Title)
	}
	for _, t := range d.tables {
		fmt.Fprintf(h, "\x00t%d:%d", t.Start, t.End)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Name returns the display name of the document.
func (d *Document) Name() string { return d.name }

// Text returns the full document text.
func (d *Document) Text() string { return d.text }

// Len returns the text length in bytes.
func (d *Document) Len() int { return len(d.text) }

// Hash identifies the text and its hints.
func (d *Document) Hash() string { return d.hash }

// Sections returns the section hints ordered by start offset.
func (d *Document) Sections() []Section { return slices.Clone(d.sections) }

// Tables returns the table hints ordered by start offset.
func (d *Document) Tables() []Span { return slices.Clone(d.tables) }

// Slice returns the text covered by s, clamped to the document.
func (d *Document) Slice(s Span) string {
	start, end := max(s.Start, 0), min(s.End, len(d.text))
	if start >= end {
		return ""
	}
	return d.text[start:end]
}

// InTable reports whether s lies within a table hint.
func (d *Document) InTable(s Span) bool {
	for _, t := range d.tables {
		if t.Start <= s.Start && s.End <= t.End {
			return true
		}
	}
	return false
}

// SectionAt returns the innermost section containing pos.
func (d *Document) SectionAt(pos int) (Section, bool) {
	var (
		found Section
		ok    bool
	)
	for _, s := range d.sections {
		if s.Start > pos {
			break
		}
		if s.Contains(pos) && (!ok || s.Level >= found.Level) {
			found, ok = s, true
		}
	}
	return found, ok
}

// Sentence widens s to the enclosing sentence: the text between the nearest
// line break or sentence-ending punctuation on either side.
func (d *Document) Sentence(s Span) Span {
	start := 0
	for i := s.Start - 1; i >= 0; i-- {
		if d.boundary(i) {
			start = i + 1
			break
		}
	}
	end := len(d.text)
	for i := s.End; i < len(d.text); i++ {
		if d.boundary(i) {
			end = i + 1
			break
		}
	}
	return Span{Start: start, End: end}
}

func (d *Document) boundary(i int) bool {
	switch d.text[i] {
	case '\n':
		return true
	case '.', '!', '?', ';':
		return i+1 == len(d.text) || isSpace(d.text[i+1])
	}
	return false
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// Detect infers hints from the text: markdown headings ("#", "##", ...) start
// sections, and runs of lines carrying column separators ("|" or tabs) are
// tables.
func Detect(text string) Hints {
	var (
		h          Hints
		tableStart = -1
		tableEnd   = -1
	)
	closeTable := func() {
		if tableStart >= 0 {
			h.Tables = append(h.Tables, Span{Start: tableStart, End: tableEnd})
		}
		tableStart = -1
	}

	for off := 0; off < len(text); {
		end := strings.IndexByte(text[off:], '\n')
		if end < 0 {
			end = len(text)
		} else {
			end += off
		}
		line := text[off:end]

		if level, title, ok := heading(line); ok {
			if n := len(h.Sections); n > 0 {
				h.Sections[n-1].End = off
			}
			h.Sections = append(h.Sections, Section{Title: title, Level: level, Span: Span{Start: off, End: len(text)}})
		}

		if tableRow(line) {
			if tableStart < 0 {
				tableStart = off
			}
			tableEnd = end
		} else {
			closeTable()
		}
		off = end + 1
	}
	closeTable()
	return h
}

func heading(line string) (int, string, bool) {
	trimmed := strings.TrimLeft(line, "#")
	level := len(line) - len(trimmed)
	if level == 0 || level > 6 || !strings.HasPrefix(trimmed, " ") {
		return 0, "", false
	}
	title := strings.TrimSpace(trimmed)
	if title == "" {
		return 0, "", false
	}
	return level, title, true
}

func tableRow(line string) bool {
	return strings.Count(line, "|") >= 2 || (strings.Contains(line, "\t") && strings.TrimSpace(line) != "")
}
