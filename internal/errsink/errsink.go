// Package errsink implements the Errors Sink (spec.md §4.9/§7): an
// append-only concurrent log of (timestamp, kind, message, context) entries
// observed during a run.
//
// Grounded on the teacher's internal/crawler/politeness.go mutex-guarded map
// pattern rather than the teacher's much heavier batching internal/progress
// Hub — spec.md only asks for an in-memory append-only list, so the Hub's
// channel/timer batching machinery has no home here (see DESIGN.md's
// "Deleted teacher modules").
package errsink

import (
	"sync"
	"time"

	"github.com/anvil-search/indexer/internal/clock/system"
	"github.com/anvil-search/indexer/internal/metrics"
)

// Clock returns the current time; injected so tests can control Entry
// timestamps, mirroring the teacher's crawler.Clock seam.
type Clock interface {
	Now() time.Time
}

// Kind enumerates the error kinds spec.md §7 names.
type Kind string

// Error kinds.
const (
	KindMalformedURL          Kind = "MALFORMED_URL"
	KindIOError               Kind = "IO_ERROR"
	KindParseError            Kind = "PARSE_ERROR"
	KindDBError               Kind = "DB_ERROR"
	KindPoolTerminationForced Kind = "POOL_TERMINATION_FORCED"
	KindAlreadyRunning        Kind = "ALREADY_RUNNING"
	KindNotRunning            Kind = "NOT_RUNNING"
	KindOutOfScope            Kind = "OUT_OF_SCOPE"
	KindCancelled             Kind = "CANCELLED"
	KindAnalyzerInitError     Kind = "ANALYZER_INIT_ERROR"
)

// Entry is one recorded error observation.
type Entry struct {
	Timestamp time.Time
	Kind      Kind
	Message   string
	URL       string
	Operation string
}

// Sink is an append-only concurrent error log.
type Sink struct {
	mu      sync.Mutex
	entries []Entry
	clock   Clock
}

// New builds an empty Sink using the real system clock.
func New() *Sink {
	return &Sink{clock: system.New()}
}

// NewWithClock builds an empty Sink backed by the given Clock, for tests
// that need deterministic Entry timestamps.
func NewWithClock(clock Clock) *Sink {
	return &Sink{clock: clock}
}

// Record appends an entry with context (url, operation) per spec.md §7 and
// bumps the matching Prometheus counter, labeled by the url's host.
func (s *Sink) Record(kind Kind, message, url, operation string) {
	s.mu.Lock()
	s.entries = append(s.entries, Entry{
		Timestamp: s.clock.Now().UTC(),
		Kind:      kind,
		Message:   message,
		URL:       url,
		Operation: operation,
	})
	s.mu.Unlock()
	metrics.ObserveError(url, string(kind))
}

// Entries returns a snapshot copy of every recorded entry.
func (s *Sink) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Clear empties the sink. Called at the start of a new run (spec.md §4.9
// start_indexing clears the error sink).
func (s *Sink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
}
