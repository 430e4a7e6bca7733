package embedding

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Default cache bounds. Entries past the TTL are never returned even if
// they have not yet been evicted by capacity pressure.
const (
	DefaultCacheSize = 1000
	DefaultCacheTTL  = time.Hour
)

// Cache memoizes embeddings for previously seen text, keyed by content
// fingerprint, with bounded-capacity LRU eviction and an absolute TTL.
// It is safe for concurrent use. Concurrent lookups for the same uncached
// text may each compute independently; the last writer wins on insert.
type Cache struct {
	// inner computes embeddings on cache miss.
	inner Client
	// lru is the internally synchronized LRU with per-entry expiry.
	lru *expirable.LRU[string, Result]
	// hits and misses are cumulative lookup counters.
	hits   atomic.Int64
	misses atomic.Int64
}

// NewCache wraps inner with an LRU of the given capacity and TTL.
// Non-positive size or ttl fall back to the package defaults.
func NewCache(inner Client, size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		inner: inner,
		lru:   expirable.NewLRU[string, Result](size, nil, ttl),
	}
}

// Embed returns the cached embedding for text when present and fresh,
// otherwise computes it via the wrapped client and inserts the result.
func (c *Cache) Embed(ctx context.Context, text string) (Result, error) {
	res, _, err := c.EmbedCached(ctx, text)
	return res, err
}

// EmbedCached is [Cache.Embed] plus a flag reporting whether the result
// was served from cache. The boundary layer uses it to annotate embed
// responses.
func (c *Cache) EmbedCached(ctx context.Context, text string) (Result, bool, error) {
	key := Fingerprint(text)

	if res, ok := c.lru.Get(key); ok {
		c.hits.Add(1)
		return res, true, nil
	}
	c.misses.Add(1)

	res, err := c.inner.Embed(ctx, text)
	if err != nil {
		return Result{}, false, err
	}
	c.lru.Add(key, res)
	return res, false, nil
}

// Stats reports cumulative cache hits and misses.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Len returns the number of live entries, for diagnostics.
func (c *Cache) Len() int { return c.lru.Len() }
