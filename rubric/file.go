/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package rubric

import (
	"context"

	"chainguard.dev/rubriceval/source"
)

// LoadFile reads a definition from a file, gs:// or s3:// URI and parses it.
func LoadFile(ctx context.Context, uri string) (*Rubric, error) {
	data, err := source.Read(ctx, uri)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// LoadFile reads a definition from uri and returns the cached rubric for its
// contents.
func (c *Cache) LoadFile(ctx context.Context, uri string) (*Rubric, error) {
	data, err := source.Read(ctx, uri)
	if err != nil {
		return nil, err
	}
	return c.Load(data)
}
