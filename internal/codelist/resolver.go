// Package codelist declares the pluggable codelist-resolution collaborator
// the streaming parser calls whenever it encounters a Code value (§4.1,
// §6). Resolution is out of core scope; this package only declares the
// interface, a no-op implementation, and a caching decorator.
package codelist

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Resolver maps (baseURL, codeSpace, code) to a human-readable label. A
// no-op implementation is always an acceptable choice per spec.
type Resolver interface {
	Resolve(baseURL, codeSpace, code string) (label string, ok bool)
}

// NoopResolver never resolves anything; Code.Label stays empty and
// Code.CodeValue remains the canonical key.
type NoopResolver struct{}

func (NoopResolver) Resolve(string, string, string) (string, bool) { return "", false }

// CachingResolver wraps another Resolver with a bounded LRU keyed by
// (codeSpace, code) — base URLs are assumed stable across one document,
// so they are not part of the cache key, matching how the same
// code-space/code pair recurs across many features in a single source.
type CachingResolver struct {
	next  Resolver
	cache *lru.Cache[string, cacheEntry]
}

type cacheEntry struct {
	label string
	ok    bool
}

// NewCachingResolver wraps next with an LRU of the given size.
func NewCachingResolver(next Resolver, size int) (*CachingResolver, error) {
	c, err := lru.New[string, cacheEntry](size)
	if err != nil {
		return nil, fmt.Errorf("codelist: building cache: %w", err)
	}
	return &CachingResolver{next: next, cache: c}, nil
}

func (r *CachingResolver) Resolve(baseURL, codeSpace, code string) (string, bool) {
	key := codeSpace + "\x00" + code
	if e, hit := r.cache.Get(key); hit {
		return e.label, e.ok
	}
	label, ok := r.next.Resolve(baseURL, codeSpace, code)
	r.cache.Add(key, cacheEntry{label: label, ok: ok})
	return label, ok
}
