// Package reindex implements the Single-page Re-indexer (C10): re-fetch and
// re-analyze one URL, correcting the affected Lemma frequencies for the
// page's previous content before writing its new lemma/index rows.
//
// It depends on internal/lemmaindex rather than internal/crawl, which is
// the dependency-inversion fix DESIGN NOTES §9 calls for: the original
// source had the re-indexer call back into the crawler for
// save_lemmas_and_indices, forming a cycle between the two.
package reindex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anvil-search/indexer/internal/cache/lemmacache"
	"github.com/anvil-search/indexer/internal/errsink"
	"github.com/anvil-search/indexer/internal/fetch"
	"github.com/anvil-search/indexer/internal/lemma"
	"github.com/anvil-search/indexer/internal/lemmaindex"
	"github.com/anvil-search/indexer/internal/normalize"
	"github.com/anvil-search/indexer/internal/store"
)

// ErrOutOfScope's message is recorded in the Errors Sink when the URL's host
// does not match any configured site. IndexPage reports that case as
// (false, nil); it does not return this error.
var ErrOutOfScope = errors.New("url is outside configured sites")

// Reindexer implements spec.md §4.10's index_page operation.
//
// Unlike the Crawl Scheduler (C7), which is handed one Lemma Cache that
// lives for a whole run, a Reindexer builds a fresh, empty Lemma Cache for
// every IndexPage call instead of reusing one across calls. Two successive
// IndexPage calls touching the same lemma both go through
// decrementPreviousFrequencies, which writes the Page Store directly and
// bypasses any cache in front of it; a cache shared across those two calls
// would still be holding the first call's now-stale handle by the time the
// second call's SaveLemmasAndIndices went looking for it, and would add the
// second page's count on top of a frequency the first call had already
// superseded in the store.
type Reindexer struct {
	fetcher      *fetch.Fetcher
	analyzer     *lemma.Analyzer
	store        store.Store
	sink         *errsink.Sink
	batchSize    int
	cacheMax     int
	cacheIdleTTL time.Duration
}

// New builds a Reindexer. cacheMax and cacheIdleTTL size the short-lived
// Lemma Cache built fresh for each IndexPage call (spec.md §6 cache
// defaults apply when either is <= 0, via lemmacache.New).
func New(fetcher *fetch.Fetcher, analyzer *lemma.Analyzer, st store.Store, sink *errsink.Sink, batchSize, cacheMax int, cacheIdleTTL time.Duration) *Reindexer {
	return &Reindexer{
		fetcher:      fetcher,
		analyzer:     analyzer,
		store:        st,
		sink:         sink,
		batchSize:    batchSize,
		cacheMax:     cacheMax,
		cacheIdleTTL: cacheIdleTTL,
	}
}

func (r *Reindexer) lemmaLookup(ctx context.Context, siteID, text string) (string, int, bool, error) {
	l, ok, err := r.store.FindLemma(ctx, siteID, text)
	if err != nil {
		return "", 0, false, err
	}
	return l.ID, l.Frequency, ok, nil
}

// IndexPage implements spec.md §4.10: locate the owning site by host,
// fetch, diff against any previously-stored index rows for the page,
// upsert the page's content, then re-extract and re-save lemmas/indices.
func (r *Reindexer) IndexPage(ctx context.Context, rawURL string) (bool, error) {
	normalized, err := normalize.URL(rawURL)
	if err != nil {
		r.sink.Record(errsink.KindMalformedURL, err.Error(), rawURL, "index_page")
		return false, err
	}

	host, err := normalize.Host(normalized)
	if err != nil {
		r.sink.Record(errsink.KindMalformedURL, err.Error(), rawURL, "index_page")
		return false, err
	}

	site, err := r.store.FindSiteByHost(ctx, host)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			r.sink.Record(errsink.KindOutOfScope, ErrOutOfScope.Error(), normalized, "index_page")
			return false, nil
		}
		r.sink.Record(errsink.KindDBError, err.Error(), normalized, "index_page")
		return false, fmt.Errorf("find site by host: %w", err)
	}

	result, err := r.fetcher.Fetch(ctx, normalized)
	if err != nil {
		r.sink.Record(errsink.KindIOError, err.Error(), normalized, "index_page")
		return false, err
	}

	path, err := normalize.Path(normalized)
	if err != nil {
		r.sink.Record(errsink.KindMalformedURL, err.Error(), normalized, "index_page")
		return false, err
	}

	existing, found, err := r.store.FindPage(ctx, site.ID, path)
	if err != nil {
		r.sink.Record(errsink.KindDBError, err.Error(), normalized, "index_page")
		return false, fmt.Errorf("find page: %w", err)
	}

	var page store.Page
	if found {
		if err := r.decrementPreviousFrequencies(ctx, existing.ID, site.ID); err != nil {
			r.sink.Record(errsink.KindDBError, err.Error(), normalized, "index_page")
			return false, err
		}
		if err := r.store.UpdatePageContent(ctx, existing.ID, result.StatusCode, string(result.Document)); err != nil {
			r.sink.Record(errsink.KindDBError, err.Error(), normalized, "index_page")
			return false, fmt.Errorf("update page content: %w", err)
		}
		existing.Code = result.StatusCode
		existing.Content = string(result.Document)
		page = existing
	} else {
		saved, err := r.store.SavePage(ctx, store.Page{
			SiteID:  site.ID,
			Path:    path,
			Code:    result.StatusCode,
			Content: string(result.Document),
		})
		if err != nil {
			r.sink.Record(errsink.KindDBError, err.Error(), normalized, "index_page")
			return false, fmt.Errorf("save page: %w", err)
		}
		page = saved
	}

	lemmaCounts, err := r.analyzer.Analyze(string(result.Document))
	if err != nil {
		r.sink.Record(errsink.KindParseError, err.Error(), normalized, "index_page")
		return false, err
	}
	// A fresh cache per call, not r's own long-lived field: see the
	// Reindexer doc comment above for why one must never survive past the
	// call that built it.
	cache := lemmacache.New(r.cacheMax, r.cacheIdleTTL, r.lemmaLookup)
	writer := lemmaindex.New(r.store, cache, r.batchSize)
	if _, err := writer.SaveLemmasAndIndices(ctx, site, page, lemmaCounts); err != nil {
		r.sink.Record(errsink.KindDBError, err.Error(), normalized, "index_page")
		return false, err
	}

	return true, nil
}

// decrementPreviousFrequencies deletes every existing index row for pageID
// and decrements each referenced lemma's frequency by that row's rank,
// clamped at zero by the store (spec.md §4.10 step 4).
func (r *Reindexer) decrementPreviousFrequencies(ctx context.Context, pageID, siteID string) error {
	deleted, err := r.store.DeleteIndicesForPage(ctx, pageID)
	if err != nil {
		return fmt.Errorf("delete indices for page: %w", err)
	}
	if len(deleted) == 0 {
		return nil
	}
	deltas := make(map[string]int, len(deleted))
	for _, idx := range deleted {
		deltas[idx.LemmaID] -= int(idx.Rank)
	}
	if err := r.store.AdjustLemmaFrequencies(ctx, deltas); err != nil {
		return fmt.Errorf("adjust lemma frequencies: %w", err)
	}
	return nil
}
