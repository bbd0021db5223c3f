package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/anvil-search/indexer/internal/cache/lemmacache"
	"github.com/anvil-search/indexer/internal/cache/pageurlcache"
	"github.com/anvil-search/indexer/internal/coordinator"
	"github.com/anvil-search/indexer/internal/crawl"
	"github.com/anvil-search/indexer/internal/errsink"
	"github.com/anvil-search/indexer/internal/fetch"
	"github.com/anvil-search/indexer/internal/lemma"
	"github.com/anvil-search/indexer/internal/lemmaindex"
	"github.com/anvil-search/indexer/internal/metrics"
	"github.com/anvil-search/indexer/internal/reindex"
	"github.com/anvil-search/indexer/internal/store"
)

func init() {
	metrics.Init()
}

type noopStore struct{}

func (noopStore) ResetAll(ctx context.Context) error { return nil }
func (noopStore) CreateSite(ctx context.Context, url, name string) (store.Site, error) {
	return store.Site{}, nil
}
func (noopStore) FindSiteByURL(ctx context.Context, url string) (store.Site, error) {
	return store.Site{}, store.ErrNotFound
}
func (noopStore) FindSiteByHost(ctx context.Context, host string) (store.Site, error) {
	return store.Site{}, store.ErrNotFound
}
func (noopStore) UpdateSiteStatus(ctx context.Context, siteID string, status store.SiteStatus, lastError *string) error {
	return nil
}
func (noopStore) FindPage(ctx context.Context, siteID, path string) (store.Page, bool, error) {
	return store.Page{}, false, nil
}
func (noopStore) SavePage(ctx context.Context, page store.Page) (store.Page, error) {
	return page, nil
}
func (noopStore) UpdatePageContent(ctx context.Context, pageID string, code int, content string) error {
	return nil
}
func (noopStore) FindLemma(ctx context.Context, siteID, text string) (store.Lemma, bool, error) {
	return store.Lemma{}, false, nil
}
func (noopStore) SaveLemmasBatch(ctx context.Context, lemmas []store.Lemma) error { return nil }
func (noopStore) SaveIndicesBatch(ctx context.Context, indices []store.Index) error { return nil }
func (noopStore) DeleteIndicesForPage(ctx context.Context, pageID string) ([]store.Index, error) {
	return nil, nil
}
func (noopStore) AdjustLemmaFrequencies(ctx context.Context, deltas map[string]int) error {
	return nil
}

func buildTestServer(t *testing.T) *Server {
	t.Helper()
	st := noopStore{}
	analyzer, err := lemma.New()
	require.NoError(t, err)
	fetcher := fetch.New(fetch.Config{})
	sink := errsink.New()

	reindexer := reindex.New(fetcher, analyzer, st, sink, 0, 0, 0)

	newScheduler := func(lemmaCache *lemmacache.Cache, pageURLs *pageurlcache.Cache) *crawl.Scheduler {
		writer := lemmaindex.New(st, lemmaCache, 0)
		return crawl.New(crawl.Config{}, fetcher, analyzer, pageURLs, writer, st, sink, nil)
	}

	coord := coordinator.New(st, reindexer, sink, nil, coordinator.Config{}, newScheduler)
	return NewServer(coord, nil, AuthConfig{}, nil)
}

func TestStopIndexingReturnsNotRunningError(t *testing.T) {
	t.Parallel()

	s := buildTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/stopIndexing", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.False(t, body.Result)
	require.NotEmpty(t, body.Error)
}

func TestStartIndexingAccepts(t *testing.T) {
	t.Parallel()

	s := buildTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/startIndexing", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.True(t, body.Result)
}

func TestIndexPageRejectsMissingURL(t *testing.T) {
	t.Parallel()

	s := buildTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/indexPage", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.False(t, body.Result)
	require.Equal(t, "Invalid URL", body.Error)
}

func TestIndexPageRejectsOutOfScopeURL(t *testing.T) {
	t.Parallel()

	s := buildTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/indexPage?url=http://unknown.test/x", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.False(t, body.Result)
	require.Equal(t, "URL is outside configured sites", body.Error)
}

func TestHealthzOK(t *testing.T) {
	t.Parallel()

	s := buildTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}
