/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package source reads rubric, document and configuration bytes from local
// files, Google Cloud Storage (gs://bucket/object) and Amazon S3
// (s3://bucket/key).
package source

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/chainguard-dev/clog"
)

// Opener opens the object a URI refers to.
type Opener interface {
	Open(ctx context.Context, ref Ref) (io.ReadCloser, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, ref Ref) (io.ReadCloser, error)

// Open implements Opener
func (f OpenerFunc) Open(ctx context.Context, ref Ref) (io.ReadCloser, error) {
	return f(ctx, ref)
}

// Ref is a parsed source URI.
type Ref struct {
	Scheme string
	// Bucket is empty for local files.
	Bucket string
	// Path is the object key, or the file path for local files.
	Path string
}

// String implements fmt.Stringer
func (r Ref) String() string {
	if r.Scheme == "file" {
		return r.Path
	}
	return r.Scheme + "://" + r.Bucket + "/" + r.Path
}

// ParseRef parses a URI. Anything without a scheme is a local path.
func ParseRef(uri string) (Ref, error) {
	if uri == "" {
		return Ref{}, fmt.Errorf("empty source uri")
	}
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return Ref{Scheme: "file", Path: uri}, nil
	}
	switch scheme {
	case "file":
		u, err := url.Parse(uri)
		if err != nil {
			return Ref{}, fmt.Errorf("parsing %q: %w", uri, err)
		}
		return Ref{Scheme: "file", Path: u.Path}, nil
	case "gs", "s3":
		bucket, key, _ := strings.Cut(rest, "/")
		if bucket == "" || key == "" {
			return Ref{}, fmt.Errorf("bad %s uri (need bucket/key): %q", scheme, uri)
		}
		return Ref{Scheme: scheme, Bucket: bucket, Path: key}, nil
	default:
		return Ref{}, fmt.Errorf("unsupported uri scheme %q in %q", scheme, uri)
	}
}

// Reader dispatches reads to an Opener per scheme.
type Reader struct {
	openers map[string]Opener
}

// Option configures a Reader.
type Option func(*Reader)

// WithOpener registers o for scheme, replacing any default.
func WithOpener(scheme string, o Opener) Option {
	return func(r *Reader) { r.openers[scheme] = o }
}

// New creates a Reader for file, gs and s3 URIs. Cloud clients are created
// on first use with application default credentials.
func New(opts ...Option) *Reader {
	r := &Reader{openers: map[string]Opener{
		"file": OpenerFunc(openFile),
		"gs":   &gcsOpener{},
		"s3":   &s3Opener{},
	}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Read returns the full contents of uri.
func (r *Reader) Read(ctx context.Context, uri string) ([]byte, error) {
	ref, err := ParseRef(uri)
	if err != nil {
		return nil, err
	}
	o, ok := r.openers[ref.Scheme]
	if !ok {
		return nil, fmt.Errorf("no reader registered for scheme %q", ref.Scheme)
	}
	rc, err := o.Open(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", ref, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", ref, err)
	}
	clog.FromContext(ctx).With("uri", ref.String(), "bytes", len(data)).Debug("read source")
	return data, nil
}

var defaultReader = sync.OnceValue(func() *Reader { return New() })

// Read reads uri with the default Reader.
func Read(ctx context.Context, uri string) ([]byte, error) {
	return defaultReader().Read(ctx, uri)
}

func openFile(_ context.Context, ref Ref) (io.ReadCloser, error) {
	return os.Open(ref.Path)
}

type gcsOpener struct {
	once   sync.Once
	client *storage.Client
	err    error
}

func (g *gcsOpener) Open(ctx context.Context, ref Ref) (io.ReadCloser, error) {
	g.once.Do(func() {
		g.client, g.err = storage.NewClient(context.WithoutCancel(ctx))
	})
	if g.err != nil {
		return nil, fmt.Errorf("creating storage client: %w", g.err)
	}
	return g.client.Bucket(ref.Bucket).Object(ref.Path).NewReader(ctx)
}

type s3Opener struct {
	once   sync.Once
	client *s3.Client
	err    error
}

func (o *s3Opener) Open(ctx context.Context, ref Ref) (io.ReadCloser, error) {
	o.once.Do(func() {
		cfg, err := config.LoadDefaultConfig(context.WithoutCancel(ctx))
		if err != nil {
			o.err = err
			return
		}
		o.client = s3.NewFromConfig(cfg)
	})
	if o.err != nil {
		return nil, fmt.Errorf("loading aws config: %w", o.err)
	}
	out, err := o.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(ref.Bucket),
		Key:    aws.String(ref.Path),
	})
	if err != nil {
		return nil, err
	}
	return out.Body, nil
}
