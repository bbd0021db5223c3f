// Package pageurlcache implements the PageUrlCache (spec.md §3): a bounded,
// idle-TTL soft cache keyed by canonical URL, layered on top of the hard
// Visited Set to allow TTL-based re-allowance of single-page re-indexing
// after the entry expires.
package pageurlcache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache is the bounded LRU+TTL URL presence cache.
type Cache struct {
	lru *lru.LRU[string, struct{}]
}

// New builds a Cache with the given max size and idle TTL (defaults: 600 /
// 10 minutes per spec.md §6).
func New(maxEntries int, idleTTL time.Duration) *Cache {
	if maxEntries <= 0 {
		maxEntries = 600
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &Cache{lru: lru.NewLRU[string, struct{}](maxEntries, nil, idleTTL)}
}

// Contains reports whether url is already cached.
func (c *Cache) Contains(url string) bool {
	_, ok := c.lru.Get(url)
	return ok
}

// Mark records url as seen.
func (c *Cache) Mark(url string) {
	c.lru.Add(url, struct{}{})
}

// Clear empties the cache. Called by the Coordinator on run completion.
func (c *Cache) Clear() {
	c.lru.Purge()
}
