// Package cache provides the in-memory link cache sitting in front of the
// durable store. It is a disposable projection: losing it costs latency,
// never correctness.
package cache

import (
	"SnapLink-Backend/internal/domain"
	"SnapLink-Backend/internal/metrics"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

// LinkCache maps key -> *Link with a capacity bound (LRU eviction) and a
// per-entry TTL that caps how stale a click_count/expires_at snapshot can
// get. All methods are safe for concurrent use; the LRU synchronizes
// internally, callers never lock around it.
type LinkCache struct {
	lru *expirable.LRU[string, *domain.Link]
	log *zap.Logger
}

// New creates a LinkCache with the given capacity and entry TTL.
func New(capacity int, ttl time.Duration, log *zap.Logger) *LinkCache {
	// Fires for capacity evictions, TTL expiry and explicit Removes alike.
	onEvict := func(key string, _ *domain.Link) {
		metrics.CacheRemovals.Inc()
	}

	c := &LinkCache{
		lru: expirable.NewLRU[string, *domain.Link](capacity, onEvict, ttl),
		log: log,
	}

	log.Info("link cache initialized",
		zap.Int("capacity", capacity),
		zap.Duration("ttl", ttl))

	return c
}

// Get returns a cached link. An entry past its TTL is a miss (handled by
// the LRU); an entry whose link has business-expired inside the TTL window
// is also a miss and is removed, because a cached copy must never outlive
// the link's own validity.
func (c *LinkCache) Get(key string) (*domain.Link, bool) {
	link, ok := c.lru.Get(key)
	if !ok {
		metrics.CacheMisses.Inc()
		return nil, false
	}

	if link.IsExpired() {
		c.lru.Remove(key)
		metrics.CacheMisses.Inc()
		c.log.Debug("evicted business-expired cache entry", zap.String("key", key))
		return nil, false
	}

	metrics.CacheHits.Inc()
	return link, true
}

// Put inserts or overwrites an entry, evicting the least-recently-used one
// when at capacity.
func (c *LinkCache) Put(key string, link *domain.Link) {
	c.lru.Add(key, link)
}

// Invalidate removes an entry immediately. Used on delete and whenever a
// stale snapshot must not be served.
func (c *LinkCache) Invalidate(key string) {
	c.lru.Remove(key)
}

// Len returns the number of live entries.
func (c *LinkCache) Len() int {
	return c.lru.Len()
}
