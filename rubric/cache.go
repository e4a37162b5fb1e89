/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package rubric

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache memoizes parsed rubrics by content hash. Concurrent loads of the same
// bytes parse once. Validation failures are not cached.
type Cache struct {
	group   singleflight.Group
	mu      sync.Mutex
	entries map[string]*Rubric
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]*Rubric)}
}

// Load returns the cached rubric for data, parsing it on first use.
func (c *Cache) Load(data []byte) (*Rubric, error) {
	key := Hash(data)

	c.mu.Lock()
	r, ok := c.entries[key]
	c.mu.Unlock()
	if ok {
		return r, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		r, err := Parse(data)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = r
		c.mu.Unlock()
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Rubric), nil
}

// Len returns the number of cached rubrics.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
