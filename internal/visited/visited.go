// Package visited implements the Visited Set contract (C5): a set of URLs
// already enqueued or completed, gated by a single atomic claim primitive.
// internal/crawl builds a fresh Set for each site crawl. Grounded on the teacher's
// internal/crawler/politeness.go concurrentVisitTracker, which uses the same
// sync.Map.LoadOrStore compare-and-set shape.
package visited

import "sync"

// Set is a concurrent deduplication set.
type Set struct {
	seen sync.Map
}

// New builds an empty Set.
func New() *Set {
	return &Set{}
}

// Claim atomically inserts url and reports true iff it was not already
// present. This is the single serialization point deciding whether a URL
// becomes a crawl task (spec.md Data Model invariant 5).
func (s *Set) Claim(url string) bool {
	_, loaded := s.seen.LoadOrStore(url, struct{}{})
	return !loaded
}

// Len reports the number of claimed URLs, mainly for tests/metrics.
func (s *Set) Len() int {
	n := 0
	s.seen.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}
