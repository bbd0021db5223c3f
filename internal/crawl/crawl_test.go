package crawl

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/anvil-search/indexer/internal/cache/lemmacache"
	"github.com/anvil-search/indexer/internal/cache/pageurlcache"
	"github.com/anvil-search/indexer/internal/errsink"
	"github.com/anvil-search/indexer/internal/fetch"
	"github.com/anvil-search/indexer/internal/lemma"
	"github.com/anvil-search/indexer/internal/lemmaindex"
	"github.com/anvil-search/indexer/internal/metrics"
	"github.com/anvil-search/indexer/internal/store"
)

func init() {
	metrics.Init()
}

type fakePageKey struct {
	siteID string
	path   string
}

type fakeStore struct {
	mu       sync.Mutex
	pages    map[fakePageKey]store.Page
	lemmas   map[string]store.Lemma
	indices  []store.Index
	statuses map[string]store.SiteStatus
	errors   map[string]*string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		pages:    make(map[fakePageKey]store.Page),
		lemmas:   make(map[string]store.Lemma),
		statuses: make(map[string]store.SiteStatus),
		errors:   make(map[string]*string),
	}
}

func (f *fakeStore) ResetAll(ctx context.Context) error { return nil }
func (f *fakeStore) CreateSite(ctx context.Context, url, name string) (store.Site, error) {
	return store.Site{ID: uuid.NewString(), URL: url, Name: name, Status: store.SiteIndexing}, nil
}
func (f *fakeStore) FindSiteByURL(ctx context.Context, url string) (store.Site, error) {
	return store.Site{}, store.ErrNotFound
}
func (f *fakeStore) FindSiteByHost(ctx context.Context, host string) (store.Site, error) {
	return store.Site{}, store.ErrNotFound
}
func (f *fakeStore) UpdateSiteStatus(ctx context.Context, siteID string, status store.SiteStatus, lastError *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[siteID] = status
	f.errors[siteID] = lastError
	return nil
}
func (f *fakeStore) FindPage(ctx context.Context, siteID, path string) (store.Page, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pages[fakePageKey{siteID, path}]
	return p, ok, nil
}
func (f *fakeStore) SavePage(ctx context.Context, page store.Page) (store.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := fakePageKey{page.SiteID, page.Path}
	if existing, ok := f.pages[k]; ok {
		return existing, nil
	}
	if page.ID == "" {
		page.ID = uuid.NewString()
	}
	f.pages[k] = page
	return page, nil
}
func (f *fakeStore) UpdatePageContent(ctx context.Context, pageID string, code int, content string) error {
	return nil
}
func (f *fakeStore) FindLemma(ctx context.Context, siteID, text string) (store.Lemma, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.lemmas[siteID+"|"+text]
	return l, ok, nil
}
func (f *fakeStore) SaveLemmasBatch(ctx context.Context, lemmas []store.Lemma) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range lemmas {
		if lemmas[i].ID == "" {
			lemmas[i].ID = uuid.NewString()
		}
		f.lemmas[lemmas[i].SiteID+"|"+lemmas[i].Text] = lemmas[i]
	}
	return nil
}
func (f *fakeStore) SaveIndicesBatch(ctx context.Context, indices []store.Index) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indices = append(f.indices, indices...)
	return nil
}
func (f *fakeStore) DeleteIndicesForPage(ctx context.Context, pageID string) ([]store.Index, error) {
	return nil, nil
}
func (f *fakeStore) AdjustLemmaFrequencies(ctx context.Context, deltas map[string]int) error {
	return nil
}

func (f *fakeStore) pageCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pages)
}

func (f *fakeStore) hasPath(siteID, path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.pages[fakePageKey{siteID, path}]
	return ok
}

func newScheduler(t *testing.T, fs *fakeStore) *Scheduler {
	t.Helper()
	analyzer, err := lemma.New()
	require.NoError(t, err)

	cache := lemmacache.New(0, 0, func(ctx context.Context, siteID, text string) (string, int, bool, error) {
		l, ok, err := fs.FindLemma(ctx, siteID, text)
		return l.ID, l.Frequency, ok, err
	})
	writer := lemmaindex.New(fs, cache, 0)
	fetcher := fetch.New(fetch.Config{})
	sink := errsink.New()

	return New(Config{Parallelism: 4}, fetcher, analyzer, pageurlcache.New(0, 0), writer, fs, sink, nil)
}

func TestCrawlDedupesCanonicalizedLinksAndFiltersCrossSiteAndBinary(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<a href="/a">link one</a>
			<a href="/a/">link one again</a>
			<a href="http://other.test/x">cross site</a>
			<a href="/doc.pdf">binary</a>
		</body></html>`)
	})
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>cat cat cat dog</body></html>`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	fs := newFakeStore()
	sched := newScheduler(t, fs)

	site := store.Site{ID: uuid.NewString(), URL: server.URL + "/"}
	var stop atomic.Bool

	err := sched.Crawl(context.Background(), site, site.URL, &stop)
	require.NoError(t, err)

	require.Equal(t, 2, fs.pageCount())
	require.True(t, fs.hasPath(site.ID, "/"))
	require.True(t, fs.hasPath(site.ID, "/a"))
	require.False(t, fs.hasPath(site.ID, "/doc.pdf"))
}

func TestCrawlRecordsIOErrorOnUnreachableSeed(t *testing.T) {
	t.Parallel()

	fs := newFakeStore()
	sched := newScheduler(t, fs)

	site := store.Site{ID: uuid.NewString(), URL: "http://127.0.0.1:1/"}
	var stop atomic.Bool

	err := sched.Crawl(context.Background(), site, site.URL, &stop)
	require.Error(t, err)
	require.Zero(t, fs.pageCount())
}

func TestCrawlStopsSubmittingNewTasksWhenStopRequested(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><a href="/a">x</a></body></html>`)
	})
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>cat</body></html>`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	fs := newFakeStore()
	sched := newScheduler(t, fs)

	site := store.Site{ID: uuid.NewString(), URL: server.URL + "/"}
	var stop atomic.Bool
	stop.Store(true)

	err := sched.Crawl(context.Background(), site, site.URL, &stop)
	require.NoError(t, err)
	require.Zero(t, fs.pageCount())
}

func TestIndexSiteMarksIndexedOnSuccess(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>cat</body></html>`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	fs := newFakeStore()
	sched := newScheduler(t, fs)

	site := store.Site{ID: uuid.NewString(), URL: server.URL + "/"}
	var stop atomic.Bool

	err := sched.IndexSite(context.Background(), site, &stop)
	require.NoError(t, err)
	require.Equal(t, store.SiteIndexed, fs.statuses[site.ID])
	require.Nil(t, fs.errors[site.ID])
}

func TestIndexSiteMarksFailedWithInterruptMessageWhenStopRequested(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>cat</body></html>`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	fs := newFakeStore()
	sched := newScheduler(t, fs)

	site := store.Site{ID: uuid.NewString(), URL: server.URL + "/"}
	var stop atomic.Bool
	stop.Store(true)

	err := sched.IndexSite(context.Background(), site, &stop)
	require.NoError(t, err)
	require.Equal(t, store.SiteFailed, fs.statuses[site.ID])
	require.NotNil(t, fs.errors[site.ID])
	require.Equal(t, IndexingInterruptedMessage, *fs.errors[site.ID])
}

func TestIndexSiteMarksFailedOnSeedFetchError(t *testing.T) {
	t.Parallel()

	fs := newFakeStore()
	sched := newScheduler(t, fs)

	site := store.Site{ID: uuid.NewString(), URL: "http://127.0.0.1:1/"}
	var stop atomic.Bool

	err := sched.IndexSite(context.Background(), site, &stop)
	require.Error(t, err)
	require.Equal(t, store.SiteFailed, fs.statuses[site.ID])
}
