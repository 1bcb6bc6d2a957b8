// Package coalesce caches backend lookups keyed by request parameters and
// collapses concurrent identical lookups into one backend call.
package coalesce

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Fetch loads the value for a key. It runs detached from any single caller's
// context, bounded by the cache's fetch timeout.
type Fetch[V any] func(ctx context.Context) (V, error)

// Cache maps a key to the last successfully fetched value.
//
// Fresh values are returned without a fetch. Values older than the TTL are
// still returned immediately while one background refresh runs; a failed
// refresh keeps the stale value. Errors are never stored.
type Cache[V any] struct {
	mu      sync.Mutex
	entries map[string]*entry[V]
	gen     uint64 // bumped by Purge; stale in-flight loads don't store
	seq     uint64
	group   singleflight.Group

	ttl          time.Duration
	maxEntries   int
	fetchTimeout time.Duration
	now          func() time.Time
}

type entry[V any] struct {
	value    V
	storedAt time.Time
	seq      uint64
}

// New creates a cache. maxEntries <= 0 means unbounded.
func New[V any](ttl time.Duration, maxEntries int) *Cache[V] {
	return &Cache[V]{
		entries:      make(map[string]*entry[V]),
		ttl:          ttl,
		maxEntries:   maxEntries,
		fetchTimeout: 30 * time.Second,
		now:          time.Now,
	}
}

// Get returns the cached value for key or fetches it. Concurrent callers for
// the same key share one fetch. A caller whose ctx ends stops waiting, but
// the shared fetch completes and populates the cache for everyone else.
func (c *Cache[V]) Get(ctx context.Context, key string, fetch Fetch[V]) (V, error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	var stale bool
	if ok {
		stale = c.now().Sub(e.storedAt) >= c.ttl
	}
	gen := c.gen
	c.mu.Unlock()

	if ok {
		if stale {
			c.refresh(gen, key, fetch)
		}
		return e.value, nil
	}

	ch := c.group.DoChan(flightKey(gen, key), func() (any, error) {
		return c.load(gen, key, fetch)
	})
	select {
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			var zero V
			return zero, res.Err
		}
		return res.Val.(V), nil
	}
}

// Peek returns the cached value without fetching, fresh or stale.
func (c *Cache[V]) Peek(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Invalidate drops one key.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Purge drops everything, including results of loads still in flight.
// Callers arriving after Purge never share a load started before it.
func (c *Cache[V]) Purge() {
	c.mu.Lock()
	c.entries = make(map[string]*entry[V])
	c.gen++
	c.mu.Unlock()
}

func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// refresh starts a background reload unless one is already in flight.
func (c *Cache[V]) refresh(gen uint64, key string, fetch Fetch[V]) {
	c.group.DoChan(flightKey(gen, key), func() (any, error) {
		return c.load(gen, key, fetch)
	})
}

// flightKey scopes in-flight loads to a purge generation.
func flightKey(gen uint64, key string) string {
	return strconv.FormatUint(gen, 10) + "\x00" + key
}

// load fetches key and stores the result unless the cache was purged
// after gen was read.
func (c *Cache[V]) load(gen uint64, key string, fetch Fetch[V]) (any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.fetchTimeout)
	defer cancel()
	v, err := fetch(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if gen == c.gen {
		c.seq++
		c.entries[key] = &entry[V]{value: v, storedAt: c.now(), seq: c.seq}
		c.evict()
	}
	c.mu.Unlock()
	return v, nil
}

// evict drops the oldest stored entries until the bound holds. Caller holds mu.
func (c *Cache[V]) evict() {
	for c.maxEntries > 0 && len(c.entries) > c.maxEntries {
		var oldestKey string
		var oldest uint64
		found := false
		for k, e := range c.entries {
			if !found || e.seq < oldest {
				oldestKey, oldest, found = k, e.seq, true
			}
		}
		delete(c.entries, oldestKey)
	}
}

// SimilarKey is the cache key for an article's similar-articles lookup.
func SimilarKey(articleID string) string {
	return articleID
}

// OrientationKey is the cache key for a set of source URLs. The same set
// maps to the same key regardless of order or duplicates.
func OrientationKey(urls []string) string {
	sorted := slices.Clone(urls)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	return strings.Join(sorted, "\n")
}
