/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package document

// CharsPerToken approximates the number of text bytes per model token.
const CharsPerToken = 4

// DefaultChunkTokens is the chunk size used when none is configured.
const DefaultChunkTokens = 1200

// Chunk is a contiguous piece of the document handed to a model backend.
type Chunk struct {
	Index int
	Span  Span
	Text  string
}

// Chunks splits the text at whitespace into pieces of roughly targetTokens
// tokens. A word longer than the budget becomes a chunk of its own. The
// result is deterministic for a given document and target.
func (d *Document) Chunks(targetTokens int) []Chunk {
	if targetTokens <= 0 {
		targetTokens = DefaultChunkTokens
	}
	limit := targetTokens * CharsPerToken

	var (
		out        []Chunk
		start, end = -1, -1
	)
	flush := func() {
		if start < 0 {
			return
		}
		s := Span{Start: start, End: end}
		out = append(out, Chunk{Index: len(out), Span: s, Text: d.text[start:end]})
		start = -1
	}

	for i := 0; i < len(d.text); {
		for i < len(d.text) && isSpace(d.text[i]) {
			i++
		}
		if i == len(d.text) {
			break
		}
		ws := i
		for i < len(d.text) && !isSpace(d.text[i]) {
			i++
		}
		if start >= 0 && i-start > limit {
			flush()
		}
		if start < 0 {
			start = ws
		}
		end = i
	}
	flush()
	return out
}
