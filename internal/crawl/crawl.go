// Package crawl implements the Crawl Scheduler (C7): bounded-parallel
// traversal of a site's internal link graph, and the Site Indexer (C8): the
// one-site lifecycle wrapped around it.
//
// Grounded on the teacher's internal/dispatcher + internal/worker pair, but
// restructured per DESIGN NOTES §9: rather than the source's nested
// fork-join pools with no outstanding-task accounting, each site crawl owns
// one flat semaphore-bounded goroutine pool and a sync.WaitGroup tracking
// outstanding page tasks; a site is done when the WaitGroup drains.
package crawl

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/anvil-search/indexer/internal/cache/pageurlcache"
	"github.com/anvil-search/indexer/internal/errsink"
	"github.com/anvil-search/indexer/internal/fetch"
	"github.com/anvil-search/indexer/internal/htmlutil"
	"github.com/anvil-search/indexer/internal/lemma"
	"github.com/anvil-search/indexer/internal/lemmaindex"
	"github.com/anvil-search/indexer/internal/metrics"
	"github.com/anvil-search/indexer/internal/normalize"
	"github.com/anvil-search/indexer/internal/store"
	"github.com/anvil-search/indexer/internal/visited"
)

// Config controls the Scheduler's bounded worker pool.
type Config struct {
	// Parallelism bounds simultaneous page tasks per site
	// (indexing-settings.fork-join-pool.parallelism, default 8).
	Parallelism int
}

// Scheduler is the Crawl Scheduler (C7).
type Scheduler struct {
	fetcher     *fetch.Fetcher
	analyzer    *lemma.Analyzer
	pageURLs    *pageurlcache.Cache
	writer      *lemmaindex.Writer
	store       store.Store
	sink        *errsink.Sink
	logger      *zap.Logger
	parallelism int
}

// New builds a Scheduler. pageURLs is shared process-wide across sites per
// spec.md §3 (the PageUrlCache is a single run-local cache, not per-site).
func New(
	cfg Config,
	fetcher *fetch.Fetcher,
	analyzer *lemma.Analyzer,
	pageURLs *pageurlcache.Cache,
	writer *lemmaindex.Writer,
	st store.Store,
	sink *errsink.Sink,
	logger *zap.Logger,
) *Scheduler {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 8
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		fetcher:     fetcher,
		analyzer:    analyzer,
		pageURLs:    pageURLs,
		writer:      writer,
		store:       st,
		sink:        sink,
		logger:      logger,
		parallelism: cfg.Parallelism,
	}
}

// task carries one unit of crawl work: a URL to process, plus a fetch
// result for the seed (already fetched by Crawl before the pool starts).
type task struct {
	url string
	pre *fetch.Result
}

// Crawl runs the C7 state machine for one site from its seed URL: fetch the
// seed, claim it, then fan out internal links through a bounded pool until
// drained or stopRequested is observed. Returns an error only when the seed
// itself could not be normalized or fetched (a site-level failure); per-page failures are
// recorded in the Errors Sink and do not fail the run.
func (s *Scheduler) Crawl(ctx context.Context, site store.Site, seedURL string, stopRequested *atomic.Bool) error {
	normalizedSeed, err := normalize.URL(seedURL)
	if err != nil {
		s.sink.Record(errsink.KindMalformedURL, err.Error(), seedURL, "crawl_seed")
		return fmt.Errorf("normalize seed: %w", err)
	}
	seedHost, err := normalize.Host(normalizedSeed)
	if err != nil {
		s.sink.Record(errsink.KindMalformedURL, err.Error(), seedURL, "crawl_seed")
		return fmt.Errorf("seed host: %w", err)
	}

	seedResult, err := s.fetcher.Fetch(ctx, normalizedSeed)
	if err != nil {
		s.sink.Record(errsink.KindIOError, err.Error(), normalizedSeed, "fetch_seed")
		metrics.ObserveFetch(site.URL, "error")
		return fmt.Errorf("fetch seed: %w", err)
	}
	metrics.ObserveFetch(site.URL, "ok")

	seen := visited.New()
	seen.Claim(normalizedSeed)

	sem := make(chan struct{}, s.parallelism)
	var wg sync.WaitGroup

	s.submit(ctx, site, seedHost, task{url: normalizedSeed, pre: &seedResult}, sem, &wg, seen, stopRequested)
	wg.Wait()
	return nil
}

func (s *Scheduler) submit(
	ctx context.Context,
	site store.Site,
	seedHost string,
	t task,
	sem chan struct{},
	wg *sync.WaitGroup,
	seen *visited.Set,
	stopRequested *atomic.Bool,
) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		sem <- struct{}{}
		defer func() { <-sem }()
		s.processPage(ctx, site, seedHost, t, sem, wg, seen, stopRequested)
	}()
}

// processPage implements the "Process page" algorithm of spec.md §4.7.
func (s *Scheduler) processPage(
	ctx context.Context,
	site store.Site,
	seedHost string,
	t task,
	sem chan struct{},
	wg *sync.WaitGroup,
	seen *visited.Set,
	stopRequested *atomic.Bool,
) {
	if stopRequested.Load() {
		return
	}

	normalizedURL, err := normalize.URL(t.url)
	if err != nil {
		s.sink.Record(errsink.KindMalformedURL, err.Error(), t.url, "process_page")
		return
	}

	if s.pageURLs.Contains(normalizedURL) {
		return
	}
	s.pageURLs.Mark(normalizedURL)

	if s.fetcher.IsSkippableExtension(normalizedURL) {
		return
	}

	result := t.pre
	if result == nil {
		if stopRequested.Load() {
			return
		}
		fetched, err := s.fetcher.Fetch(ctx, normalizedURL)
		if err != nil {
			s.sink.Record(errsink.KindIOError, err.Error(), normalizedURL, "fetch_page")
			metrics.ObserveFetch(site.URL, "error")
			return
		}
		metrics.ObserveFetch(site.URL, "ok")
		result = &fetched
	}
	if stopRequested.Load() {
		return
	}

	page, err := s.createOrReusePage(ctx, site, normalizedURL, *result)
	if err != nil {
		s.sink.Record(errsink.KindDBError, err.Error(), normalizedURL, "save_page")
		return
	}

	lemmaCounts, err := s.analyzer.Analyze(string(result.Document))
	if err != nil {
		s.sink.Record(errsink.KindParseError, err.Error(), normalizedURL, "analyze")
		return
	}
	saved, err := s.writer.SaveLemmasAndIndices(ctx, site, page, lemmaCounts)
	if err != nil {
		s.sink.Record(errsink.KindDBError, err.Error(), normalizedURL, "save_lemmas_and_indices")
		return
	}
	metrics.ObserveIndexed(site.URL)
	metrics.ObserveLemmasSaved(site.URL, saved)

	if stopRequested.Load() {
		return
	}

	for _, link := range htmlutil.Links(result.Document, normalizedURL) {
		if stopRequested.Load() {
			return
		}
		normalizedLink, err := normalize.URL(link)
		if err != nil {
			continue
		}
		if s.fetcher.IsSkippableExtension(normalizedLink) {
			continue
		}
		if !seen.Claim(normalizedLink) {
			continue
		}
		linkHost, err := normalize.Host(normalizedLink)
		if err != nil {
			continue
		}
		if !normalize.IsInternal(linkHost, seedHost) {
			continue
		}
		s.submit(ctx, site, seedHost, task{url: normalizedLink}, sem, wg, seen, stopRequested)
	}
}

// createOrReusePage implements spec.md §4.7's page-creation tie-break: a
// unique-constraint race on (site, path) is non-fatal, since SavePage
// reloads the winning row rather than erroring.
func (s *Scheduler) createOrReusePage(ctx context.Context, site store.Site, normalizedURL string, result fetch.Result) (store.Page, error) {
	path, err := normalize.Path(normalizedURL)
	if err != nil {
		return store.Page{}, fmt.Errorf("path from %q: %w", normalizedURL, err)
	}

	existing, found, err := s.store.FindPage(ctx, site.ID, path)
	if err != nil {
		return store.Page{}, fmt.Errorf("find page: %w", err)
	}
	if found {
		return existing, nil
	}

	saved, err := s.store.SavePage(ctx, store.Page{
		SiteID:  site.ID,
		Path:    path,
		Code:    result.StatusCode,
		Content: string(result.Document),
	})
	if err != nil {
		return store.Page{}, fmt.Errorf("save page: %w", err)
	}
	return saved, nil
}
