// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package storage

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Cached wraps a Store with an LRU cache of session records, so repeated
// lookups from the web UI don't hit the backend. Records are immutable once
// saved, so the cache never needs invalidation.
type Cached struct {
	Store
	cache *lru.Cache[uuid.UUID, SessionRecord]
}

// NewCached wraps store with a cache holding up to size records.
func NewCached(store Store, size int) (*Cached, error) {
	cache, err := lru.New[uuid.UUID, SessionRecord](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create session cache: %w", err)
	}
	return &Cached{Store: store, cache: cache}, nil
}

// SaveSession writes through to the backend.
func (c *Cached) SaveSession(ctx context.Context, rec SessionRecord) error {
	if err := c.Store.SaveSession(ctx, rec); err != nil {
		return err
	}
	c.cache.Add(rec.ID, rec.clone())
	return nil
}

// GetSession serves from the cache when possible.
func (c *Cached) GetSession(ctx context.Context, id uuid.UUID) (*SessionRecord, error) {
	if rec, ok := c.cache.Get(id); ok {
		rec = rec.clone()
		return &rec, nil
	}
	rec, err := c.Store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.Add(id, rec.clone())
	return rec, nil
}

// clone copies r so the cached entries never alias a caller's slice.
func (r SessionRecord) clone() SessionRecord {
	r.Entries = slices.Clone(r.Entries)
	return r
}

// Len returns the number of cached records.
func (c *Cached) Len() int {
	return c.cache.Len()
}
