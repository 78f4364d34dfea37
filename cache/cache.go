// Package cache implements the pipeline's fingerprint-keyed result cache: an
// LRU-bounded, TTL-expiring store of previously computed step outputs, with
// single-flight collapsing of concurrent misses for the same fingerprint.
// The shape is grounded on the retrieval corpus's GraphCache (container/list
// LRU, golang.org/x/sync/singleflight for build deduplication, atomic hit/miss
// counters) simplified down to the engine's narrower contract: a fingerprint
// maps to an opaque value, not a reference-counted resource.
package cache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// entry is the value stored behind each LRU list element.
type entry struct {
	key       string
	value     any
	expiresAt time.Time // zero means no expiry
}

// Stats is a point-in-time snapshot of a ResultCache's counters.
type Stats struct {
	Hits   int64
	Misses int64
	Size   int
}

// ResultCache is a fingerprint-keyed cache of completed step outputs. TTL of
// zero or negative disables expiry; MaxSize of zero or negative disables the
// LRU size bound. Safe for concurrent use; single-flight semantics are
// provided by GetOrCompute, not by Get/Put alone (spec §4.4: "the second
// [caller] awaits the first's result" only applies to the compute path).
type ResultCache struct {
	ttl     time.Duration
	maxSize int

	mu       sync.Mutex
	entries  map[string]*list.Element
	lru      *list.List
	inflight map[string]bool
	flight   singleflight.Group

	hits   int64
	misses int64
}

// New creates a ResultCache with the given TTL and maximum entry count.
func New(ttl time.Duration, maxSize int) *ResultCache {
	return &ResultCache{
		ttl:      ttl,
		maxSize:  maxSize,
		entries:  make(map[string]*list.Element),
		lru:      list.New(),
		inflight: make(map[string]bool),
	}
}

// Get returns a live, non-expired value for fingerprint, promoting it to
// most-recently-used on a hit. The second return is false on a miss or an
// expired entry; an expired entry is evicted and counted as a miss.
func (c *ResultCache) Get(fingerprint string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[fingerprint]
	if !ok {
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}

	ent := elem.Value.(*entry)
	if c.isExpiredLocked(ent) {
		c.removeLocked(elem, ent)
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}

	c.lru.MoveToFront(elem)
	atomic.AddInt64(&c.hits, 1)
	return ent.value, true
}

// Put inserts or overwrites the value for fingerprint, evicting the least
// recently used entry if the cache is now over MaxSize.
func (c *ResultCache) Put(fingerprint string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putLocked(fingerprint, value)
}

func (c *ResultCache) putLocked(fingerprint string, value any) {
	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = time.Now().Add(c.ttl)
	}

	if elem, ok := c.entries[fingerprint]; ok {
		ent := elem.Value.(*entry)
		ent.value = value
		ent.expiresAt = expiresAt
		c.lru.MoveToFront(elem)
		return
	}

	ent := &entry{key: fingerprint, value: value, expiresAt: expiresAt}
	elem := c.lru.PushFront(ent)
	c.entries[fingerprint] = elem

	if c.maxSize > 0 {
		for len(c.entries) > c.maxSize {
			oldest := c.lru.Back()
			if oldest == nil {
				break
			}
			c.removeLocked(oldest, oldest.Value.(*entry))
		}
	}
}

// GetOrCompute returns the cached value for fingerprint if present and live;
// otherwise it invokes compute exactly once across all concurrent callers
// sharing that fingerprint (single-flight, delegated to
// golang.org/x/sync/singleflight for the actual dedup) and caches the
// result. Whichever caller is first to find neither a cached value nor an
// in-flight computation becomes the "leader" and is charged a miss; callers
// that arrive while a computation is already in flight are charged a hit,
// since they receive a value they did not themselves have to produce. A
// compute error is returned to every waiting caller but is never cached.
func (c *ResultCache) GetOrCompute(ctx context.Context, fingerprint string, compute func(ctx context.Context) (any, error)) (any, error) {
	c.mu.Lock()
	if elem, ok := c.entries[fingerprint]; ok {
		ent := elem.Value.(*entry)
		if !c.isExpiredLocked(ent) {
			c.lru.MoveToFront(elem)
			c.mu.Unlock()
			atomic.AddInt64(&c.hits, 1)
			return ent.value, nil
		}
		c.removeLocked(elem, ent)
	}

	leader := !c.inflight[fingerprint]
	if leader {
		c.inflight[fingerprint] = true
		atomic.AddInt64(&c.misses, 1)
	} else {
		atomic.AddInt64(&c.hits, 1)
	}
	c.mu.Unlock()

	if leader {
		defer func() {
			c.mu.Lock()
			delete(c.inflight, fingerprint)
			c.mu.Unlock()
		}()
	}

	v, err, _ := c.flight.Do(fingerprint, func() (any, error) {
		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.Put(fingerprint, v)
		return v, nil
	})
	return v, err
}

// Invalidate removes a specific entry, reporting whether it was present.
func (c *ResultCache) Invalidate(fingerprint string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[fingerprint]
	if !ok {
		return false
	}
	c.removeLocked(elem, elem.Value.(*entry))
	return true
}

// Clear drops every entry and resets the hit/miss counters.
func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element)
	c.lru.Init()
	atomic.StoreInt64(&c.hits, 0)
	atomic.StoreInt64(&c.misses, 0)
}

// Stats returns the current hit/miss/size counters.
func (c *ResultCache) Stats() Stats {
	c.mu.Lock()
	size := len(c.entries)
	c.mu.Unlock()

	return Stats{
		Hits:   atomic.LoadInt64(&c.hits),
		Misses: atomic.LoadInt64(&c.misses),
		Size:   size,
	}
}

// isExpiredLocked must be called with mu held.
func (c *ResultCache) isExpiredLocked(ent *entry) bool {
	return !ent.expiresAt.IsZero() && time.Now().After(ent.expiresAt)
}

// removeLocked must be called with mu held.
func (c *ResultCache) removeLocked(elem *list.Element, ent *entry) {
	delete(c.entries, ent.key)
	c.lru.Remove(elem)
}
