/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package source

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseRef(t *testing.T) {
	tests := []struct {
		name    string
		uri     string
		want    Ref
		wantErr bool
	}{{
		name: "relative path",
		uri:  "plans/oakland.txt",
		want: Ref{Scheme: "file", Path: "plans/oakland.txt"},
	}, {
		name: "file uri",
		uri:  "file:///tmp/plan.txt",
		want: Ref{Scheme: "file", Path: "/tmp/plan.txt"},
	}, {
		name: "gcs",
		uri:  "gs://bucket/dir/plan.txt",
		want: Ref{Scheme: "gs", Bucket: "bucket", Path: "dir/plan.txt"},
	}, {
		name: "s3",
		uri:  "s3://bucket/plan.txt",
		want: Ref{Scheme: "s3", Bucket: "bucket", Path: "plan.txt"},
	}, {
		name:    "missing key",
		uri:     "s3://bucket/",
		wantErr: true,
	}, {
		name:    "missing bucket",
		uri:     "gs:///plan.txt",
		wantErr: true,
	}, {
		name:    "unknown scheme",
		uri:     "ftp://host/plan.txt",
		wantErr: true,
	}, {
		name:    "empty",
		uri:     "",
		wantErr: true,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRef(tt.uri)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRef() error = %v, wantErr = %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseRef() (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.txt")
	if err := os.WriteFile(path, []byte("facility condition index"), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := New().Read(context.Background(), path)
	if err != nil {
		t.Fatalf("Read() = %v", err)
	}
	if string(got) != "facility condition index" {
		t.Errorf("Read() = %q, wanted = %q", got, "facility condition index")
	}

	if _, err := New().Read(context.Background(), filepath.Join(t.TempDir(), "missing.txt")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Read(missing) = %v, wanted os.ErrNotExist", err)
	}
}

func TestReadWithOpener(t *testing.T) {
	var got Ref
	r := New(WithOpener("s3", OpenerFunc(func(_ context.Context, ref Ref) (io.ReadCloser, error) {
		got = ref
		return io.NopCloser(strings.NewReader("remote")), nil
	})))

	data, err := r.Read(context.Background(), "s3://plans/2024/oakland.txt")
	if err != nil {
		t.Fatalf("Read() = %v", err)
	}
	if string(data) != "remote" {
		t.Errorf("Read() = %q, wanted = %q", data, "remote")
	}
	if want := (Ref{Scheme: "s3", Bucket: "plans", Path: "2024/oakland.txt"}); got != want {
		t.Errorf("opener ref = %v, wanted = %v", got, want)
	}
}
