// Copyright (c) 2025-2026, the hoolamike-go contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package archivefmt

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
)

// Open dispatches to the codec matching kind. Unknown falls back to
// the generic mholt/archives-backed codec, which will itself error if
// the content turns out unreadable.
func Open(kind Kind, open Opener) Archive {
	switch kind {
	case KindBSA:
		return NewBSA(open)
	case KindBA2:
		return NewBA2(open)
	default:
		return NewGeneric(open)
	}
}

// ListCache memoizes Archive.List results keyed by a caller-supplied
// archive identity (internal/nestedarchive uses the archive's
// ArchiveHashPath key), so that resolving many
// nested paths out of the same archive only lists it once.
type ListCache struct {
	cache *lru.Cache[string, []Entry]
}

// NewListCache builds a cache holding at most size archive listings.
func NewListCache(size int) (*ListCache, error) {
	c, err := lru.New[string, []Entry](size)
	if err != nil {
		return nil, errors.Wrap(err, "constructing archive list cache")
	}
	return &ListCache{cache: c}, nil
}

// Get returns a's listing, computing and caching it under key on a
// miss.
func (c *ListCache) Get(key string, a Archive) ([]Entry, error) {
	if entries, ok := c.cache.Get(key); ok {
		return entries, nil
	}
	entries, err := a.List()
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, entries)
	return entries, nil
}

// Purge drops key if present, used when an archive's cache entry
// needs to be forced stale (e.g. a temp file was recreated at the
// same cache key after eviction and re-extraction).
func (c *ListCache) Purge(key string) {
	c.cache.Remove(key)
}
