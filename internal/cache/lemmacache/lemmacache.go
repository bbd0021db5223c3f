// Package lemmacache implements the Lemma Cache contract (C4): a bounded LRU
// keyed by (site, lemma text) that coalesces Page Store lookups and hands out
// mutable handles callers accumulate frequency into before a batched flush.
//
// Grounded on github.com/hashicorp/golang-lru/v2's expirable sub-package —
// the only bounded+idle-TTL cache library present anywhere in the retrieved
// pack (see DESIGN.md's per-component grounding table).
package lemmacache

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// Handle is a mutable in-memory Lemma record. Callers hold strong references
// to handles they have mutated until the enclosing batch is flushed; eviction
// from the underlying LRU never invalidates a handle already held by a
// caller, only the cache's own lookup index (spec.md §4.4, §9 cache-consistency
// hazard).
type Handle struct {
	mu        sync.Mutex
	SiteID    string
	Text      string
	LemmaID   string // empty until persisted
	Frequency int
}

// AddFrequency atomically increments the handle's frequency.
func (h *Handle) AddFrequency(delta int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Frequency += delta
}

// Snapshot returns the handle's current state under lock.
func (h *Handle) Snapshot() (lemmaID string, frequency int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.LemmaID, h.Frequency
}

// SetLemmaID records the persisted row ID once known.
func (h *Handle) SetLemmaID(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.LemmaID = id
}

// LookupFunc consults the Page Store for an existing Lemma row, returning
// ok=false when none exists.
type LookupFunc func(ctx context.Context, siteID, text string) (lemmaID string, frequency int, ok bool, err error)

type key struct {
	site string
	text string
}

// Cache is the bounded LRU+TTL lemma handle cache.
type Cache struct {
	lru    *lru.LRU[key, *Handle]
	lookup LookupFunc
}

// New builds a Cache with the given max size and idle TTL (defaults: 10000 /
// 10 minutes per spec.md §6).
func New(maxEntries int, idleTTL time.Duration, lookup LookupFunc) *Cache {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &Cache{
		lru:    lru.NewLRU[key, *Handle](maxEntries, nil, idleTTL),
		lookup: lookup,
	}
}

// GetOrCreate implements the C4 contract: on a cache miss it consults the
// Page Store via lookup; if no row exists it fabricates a new handle with
// frequency=0 so the caller's own AddFrequency call is the sole source of
// that lemma's count (spec.md §4.4, §8 scenario 5) — starting at 1 here
// would double-count the first page to touch a brand-new lemma.
func (c *Cache) GetOrCreate(ctx context.Context, siteID, text string) (*Handle, error) {
	k := key{site: siteID, text: text}
	if h, ok := c.lru.Get(k); ok {
		return h, nil
	}

	var h *Handle
	if c.lookup != nil {
		lemmaID, frequency, found, err := c.lookup(ctx, siteID, text)
		if err != nil {
			return nil, fmt.Errorf("lemma cache lookup: %w", err)
		}
		if found {
			h = &Handle{SiteID: siteID, Text: text, LemmaID: lemmaID, Frequency: frequency}
		}
	}
	if h == nil {
		h = &Handle{SiteID: siteID, Text: text, Frequency: 0}
	}
	c.lru.Add(k, h)
	return h, nil
}

// Clear empties the cache. Called by the Coordinator (C9) on run completion;
// never called mid-page, since handles already checked out by a caller
// remain valid independent of the LRU's own index.
func (c *Cache) Clear() {
	c.lru.Purge()
}

// Len reports the current number of cached handles, mainly for tests/metrics.
func (c *Cache) Len() int {
	return c.lru.Len()
}
