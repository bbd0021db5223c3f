package lemmaindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/anvil-search/indexer/internal/cache/lemmacache"
	"github.com/anvil-search/indexer/internal/store"
)

type fakeStore struct {
	lemmas  []store.Lemma
	indices []store.Index
}

func (f *fakeStore) ResetAll(ctx context.Context) error { return nil }
func (f *fakeStore) CreateSite(ctx context.Context, url, name string) (store.Site, error) {
	return store.Site{}, nil
}
func (f *fakeStore) FindSiteByURL(ctx context.Context, url string) (store.Site, error) {
	return store.Site{}, nil
}
func (f *fakeStore) FindSiteByHost(ctx context.Context, host string) (store.Site, error) {
	return store.Site{}, nil
}
func (f *fakeStore) UpdateSiteStatus(ctx context.Context, siteID string, status store.SiteStatus, lastError *string) error {
	return nil
}
func (f *fakeStore) FindPage(ctx context.Context, siteID, path string) (store.Page, bool, error) {
	return store.Page{}, false, nil
}
func (f *fakeStore) SavePage(ctx context.Context, page store.Page) (store.Page, error) {
	return page, nil
}
func (f *fakeStore) UpdatePageContent(ctx context.Context, pageID string, code int, content string) error {
	return nil
}
func (f *fakeStore) FindLemma(ctx context.Context, siteID, text string) (store.Lemma, bool, error) {
	return store.Lemma{}, false, nil
}
func (f *fakeStore) SaveLemmasBatch(ctx context.Context, lemmas []store.Lemma) error {
	for i := range lemmas {
		if lemmas[i].ID == "" {
			lemmas[i].ID = "generated-" + lemmas[i].Text
		}
	}
	f.lemmas = append(f.lemmas, lemmas...)
	return nil
}
func (f *fakeStore) SaveIndicesBatch(ctx context.Context, indices []store.Index) error {
	f.indices = append(f.indices, indices...)
	return nil
}
func (f *fakeStore) DeleteIndicesForPage(ctx context.Context, pageID string) ([]store.Index, error) {
	return nil, nil
}
func (f *fakeStore) AdjustLemmaFrequencies(ctx context.Context, deltas map[string]int) error {
	return nil
}

func TestSaveLemmasAndIndicesAccumulatesAndFlushes(t *testing.T) {
	t.Parallel()

	fs := &fakeStore{}
	cache := lemmacache.New(0, 0, nil)
	w := New(fs, cache, 0)

	site := store.Site{ID: "site-1"}
	page := store.Page{ID: "page-1", SiteID: "site-1"}

	n, err := w.SaveLemmasAndIndices(context.Background(), site, page, map[string]int{
		"crawl": 3,
		"index": 1,
	})
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Len(t, fs.lemmas, 2)
	require.Len(t, fs.indices, 2)

	for _, idx := range fs.indices {
		require.Equal(t, "page-1", idx.PageID)
		require.NotEmpty(t, idx.LemmaID)
	}
}

func TestSaveLemmasAndIndicesEmptyIsNoop(t *testing.T) {
	t.Parallel()

	fs := &fakeStore{}
	cache := lemmacache.New(0, 0, nil)
	w := New(fs, cache, 0)

	n, err := w.SaveLemmasAndIndices(context.Background(), store.Site{ID: "s"}, store.Page{ID: "p"}, nil)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Empty(t, fs.lemmas)
}

func TestSaveLemmasAndIndicesAccumulatesFrequencyOnRepeatedCalls(t *testing.T) {
	t.Parallel()

	fs := &fakeStore{}
	cache := lemmacache.New(0, 0, nil)
	w := New(fs, cache, 0)

	site := store.Site{ID: "site-1"}
	page1 := store.Page{ID: "page-1", SiteID: "site-1"}
	page2 := store.Page{ID: "page-2", SiteID: "site-1"}

	_, err := w.SaveLemmasAndIndices(context.Background(), site, page1, map[string]int{"cat": 3})
	require.NoError(t, err)
	_, err = w.SaveLemmasAndIndices(context.Background(), site, page2, map[string]int{"cat": 5})
	require.NoError(t, err)

	// spec.md §8 scenario 5: two pages with "cat"×3 and "cat"×5 must total
	// frequency=8, not 9 — the lemma cache fabricates new handles at
	// frequency=0, so nothing but these two AddFrequency calls contributes.
	last := fs.lemmas[len(fs.lemmas)-1]
	require.Equal(t, "cat", last.Text)
	require.Equal(t, 8, last.Frequency)
}
