/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"unicode"
	"unicode/utf8"

	"chainguard.dev/rubriceval/source"
	"github.com/chainguard-dev/clog"
	"gopkg.in/yaml.v3"
)

// UnreadableError reports document bytes that are not plain text.
type UnreadableError struct {
	URI    string
	Reason string
}

// Error implements error
func (e *UnreadableError) Error() string {
	return fmt.Sprintf("document %s is unreadable: %s", e.URI, e.Reason)
}

// Reader fetches raw bytes for a URI.
type Reader interface {
	Read(ctx context.Context, uri string) ([]byte, error)
}

// LoadOptions controls Load.
type LoadOptions struct {
	// Name overrides the display name derived from the URI.
	Name string
	// HintsURI locates a YAML or JSON hints file. Empty means detect. Offsets
	// refer to the text after CRLF line endings are normalized to LF.
	HintsURI string
	// Reader defaults to the source package's reader.
	Reader Reader
}

type defaultReader struct{}

func (defaultReader) Read(ctx context.Context, uri string) ([]byte, error) {
	return source.Read(ctx, uri)
}

// Load reads a plain-text document and its optional hints.
func Load(ctx context.Context, uri string, opts LoadOptions) (*Document, error) {
	r := opts.Reader
	if r == nil {
		r = defaultReader{}
	}
	data, err := r.Read(ctx, uri)
	if err != nil {
		return nil, err
	}
	text, err := decodeText(uri, data)
	if err != nil {
		return nil, err
	}

	var hints *Hints
	if opts.HintsURI != "" {
		raw, err := r.Read(ctx, opts.HintsURI)
		if err != nil {
			return nil, fmt.Errorf("reading hints: %w", err)
		}
		if hints, err = ParseHints(raw); err != nil {
			return nil, err
		}
	}

	name := opts.Name
	if name == "" {
		name = NameFromURI(uri)
	}
	d, err := New(name, text, hints)
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", uri, err)
	}
	clog.FromContext(ctx).With("document", name, "bytes", d.Len(), "sections", len(d.sections), "tables", len(d.tables)).Info("loaded document")
	return d, nil
}

func decodeText(uri string, data []byte) (string, error) {
	switch {
	case bytes.HasPrefix(data, []byte("%PDF-")):
		return "", &UnreadableError{URI: uri, Reason: "PDF input must be converted to text first"}
	case bytes.HasPrefix(data, []byte("PK\x03\x04")):
		return "", &UnreadableError{URI: uri, Reason: "archive or office document must be converted to text first"}
	case !utf8.Valid(data):
		return "", &UnreadableError{URI: uri, Reason: "content is not valid UTF-8"}
	case bytes.IndexByte(data, 0) >= 0:
		return "", &UnreadableError{URI: uri, Reason: "content contains NUL bytes"}
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	return strings.ReplaceAll(string(data), "\r\n", "\n"), nil
}

// ParseHints decodes a YAML or JSON hints document.
func ParseHints(data []byte) (*Hints, error) {
	var h Hints
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&h); err != nil {
		if errors.Is(err, io.EOF) {
			return &h, nil
		}
		return nil, fmt.Errorf("decoding hints: %w", err)
	}
	return &h, nil
}

// NameFromURI derives a display name from the file stem: "san_mateo-fmp.txt"
// becomes "San Mateo Fmp".
func NameFromURI(uri string) string {
	base := path.Base(strings.ReplaceAll(uri, "\\", "/"))
	stem := strings.TrimSuffix(base, path.Ext(base))
	words := strings.FieldsFunc(stem, func(r rune) bool {
		return r == '_' || r == '-' || unicode.IsSpace(r)
	})
	for i, w := range words {
		r, n := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + strings.ToLower(w[n:])
	}
	return strings.Join(words, " ")
}
