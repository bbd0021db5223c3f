// Package postgres implements the Page Store (C6) on Postgres via pgx/pgxpool.
//
// Grounded on the teacher's internal/storage/postgres/retrieval_store.go and
// progress_store.go: parameterized queries throughout, fmt.Errorf("...: %w",
// err) wrapping at every call site, pgx.ErrNoRows mapped to the package
// sentinel store.ErrNotFound, and ON CONFLICT upserts for idempotent writes.
// Row IDs come from the teacher's internal/id/uuid.Generator (UUIDv7, sorts
// roughly in creation order) rather than a bare uuid.NewString() call.
package postgres

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	idgen "github.com/anvil-search/indexer/internal/id/uuid"
	"github.com/anvil-search/indexer/internal/normalize"
	"github.com/anvil-search/indexer/internal/store"
)

// pgxIface is the subset of *pgxpool.Pool's method set the Store uses. It
// exists so tests can substitute a pgxmock.PgxPoolIface in place of a real
// pool, the same seam the teacher's RetrievalStore uses (execCloser) for its
// own pgxmock-backed tests.
type pgxIface interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Close()
}

// Store implements store.Store against a pgxpool.Pool.
type Store struct {
	pool pgxIface
	ids  *idgen.Generator
}

// New builds a connection pool for dsn and returns a Store over it. An
// invalid DSN fails here; connections are opened lazily on first use, so an
// unreachable server is not detected by New.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool, ids: idgen.New()}, nil
}

// NewWithPool constructs a Store from an existing pool, primarily for tests
// against pgxmock.
func NewWithPool(pool pgxIface) *Store {
	return &Store{pool: pool, ids: idgen.New()}
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// ResetAll truncates indexx, lemma, page, site in that order, inside one
// transaction, per spec.md §4.6 and DESIGN.md's reset-policy decision.
func (s *Store) ResetAll(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin reset_all tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op once committed

	for _, table := range []string{"indexx", "lemma", "page", "site"} {
		if _, err := tx.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("truncate %s: %w", table, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit reset_all: %w", err)
	}
	return nil
}

// CreateSite inserts a new site row with status INDEXING.
func (s *Store) CreateSite(ctx context.Context, url, name string) (store.Site, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return store.Site{}, fmt.Errorf("generate site id: %w", err)
	}
	site := store.Site{
		ID:         id,
		URL:        url,
		Name:       name,
		Status:     store.SiteIndexing,
		StatusTime: time.Now().UTC(),
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO site (id, url, name, status, status_time, last_error)
		VALUES ($1, $2, $3, $4, $5, NULL)`,
		site.ID, site.URL, site.Name, site.Status, site.StatusTime,
	)
	if err != nil {
		return store.Site{}, fmt.Errorf("create site: %w", err)
	}
	return site, nil
}

// FindSiteByURL looks up a site by its exact seed URL.
func (s *Store) FindSiteByURL(ctx context.Context, url string) (store.Site, error) {
	return s.scanSite(ctx, `
		SELECT id, url, name, status, status_time, last_error
		FROM site WHERE url = $1`, url)
}

// FindSiteByHost looks up the site whose seed URL's host matches host
// exactly or as a parent domain, mirroring the Java original's host-based
// site lookup (IndexPageCommand.indexPage) but using this project's
// normalize.IsInternal rule rather than a raw substring match: the site
// table has no indexed host column to match exactly in SQL, so candidates
// are loaded and the host comparison happens in Go, the same rule
// internal/crawl applies when deciding whether a discovered link is
// internal (DESIGN.md Open Question #2). A raw `url ILIKE '%host%'` scan
// would make a configured site "example.test" match an incoming host
// "notexample.test", the exact false positive that rule rejects.
func (s *Store) FindSiteByHost(ctx context.Context, host string) (store.Site, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, url, name, status, status_time, last_error FROM site`)
	if err != nil {
		return store.Site{}, fmt.Errorf("list sites for host lookup: %w", err)
	}
	defer rows.Close()

	var best store.Site
	var bestHostLen int
	for rows.Next() {
		var site store.Site
		if err := rows.Scan(&site.ID, &site.URL, &site.Name, &site.Status, &site.StatusTime, &site.LastError); err != nil {
			return store.Site{}, fmt.Errorf("scan site for host lookup: %w", err)
		}
		siteHost, err := siteURLHost(site.URL)
		if err != nil {
			continue
		}
		if !normalize.IsInternal(host, siteHost) {
			continue
		}
		// Prefer the most specific (longest) matching seed host, same
		// tie-break intent as the rejected ORDER BY length(url) scan.
		if best.ID == "" || len(siteHost) > bestHostLen {
			best = site
			bestHostLen = len(siteHost)
		}
	}
	if err := rows.Err(); err != nil {
		return store.Site{}, fmt.Errorf("iterate sites for host lookup: %w", err)
	}
	if best.ID == "" {
		return store.Site{}, store.ErrNotFound
	}
	return best, nil
}

func siteURLHost(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse site url: %w", err)
	}
	return u.Hostname(), nil
}

func (s *Store) scanSite(ctx context.Context, query string, args ...any) (store.Site, error) {
	var site store.Site
	row := s.pool.QueryRow(ctx, query, args...)
	err := row.Scan(&site.ID, &site.URL, &site.Name, &site.Status, &site.StatusTime, &site.LastError)
	if err != nil {
		if err == pgx.ErrNoRows {
			return store.Site{}, store.ErrNotFound
		}
		return store.Site{}, fmt.Errorf("scan site: %w", err)
	}
	return site, nil
}

// UpdateSiteStatus sets the site's status, status_time, and last_error.
func (s *Store) UpdateSiteStatus(ctx context.Context, siteID string, status store.SiteStatus, lastError *string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE site SET status = $1, status_time = $2, last_error = $3
		WHERE id = $4`,
		status, time.Now().UTC(), lastError, siteID,
	)
	if err != nil {
		return fmt.Errorf("update site status: %w", err)
	}
	return nil
}

// FindPage looks up a page by (siteID, path).
func (s *Store) FindPage(ctx context.Context, siteID, path string) (store.Page, bool, error) {
	var page store.Page
	row := s.pool.QueryRow(ctx, `
		SELECT id, site_id, path, code, content
		FROM page WHERE site_id = $1 AND path = $2`, siteID, path)
	err := row.Scan(&page.ID, &page.SiteID, &page.Path, &page.Code, &page.Content)
	if err != nil {
		if err == pgx.ErrNoRows {
			return store.Page{}, false, nil
		}
		return store.Page{}, false, fmt.Errorf("find page: %w", err)
	}
	return page, true, nil
}

// SavePage inserts a page, or on a unique-constraint collision on
// (site_id, path) reloads and returns the existing row instead — the
// tie-break spec.md §4.7 requires when two workers race to create the same
// page.
func (s *Store) SavePage(ctx context.Context, page store.Page) (store.Page, error) {
	if page.ID == "" {
		id, err := s.ids.NewID()
		if err != nil {
			return store.Page{}, fmt.Errorf("generate page id: %w", err)
		}
		page.ID = id
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO page (id, site_id, path, code, content)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (site_id, path) DO NOTHING`,
		page.ID, page.SiteID, page.Path, page.Code, page.Content,
	)
	if err != nil {
		return store.Page{}, fmt.Errorf("save page: %w", err)
	}
	existing, found, err := s.FindPage(ctx, page.SiteID, page.Path)
	if err != nil {
		return store.Page{}, fmt.Errorf("reload page after save: %w", err)
	}
	if !found {
		return store.Page{}, fmt.Errorf("save page: row missing immediately after insert")
	}
	return existing, nil
}

// UpdatePageContent overwrites an existing page's code and content, used by
// the single-page re-indexer (C10) which — unlike the full crawl — MUST
// overwrite content on re-index.
func (s *Store) UpdatePageContent(ctx context.Context, pageID string, code int, content string) error {
	_, err := s.pool.Exec(ctx, `UPDATE page SET code = $1, content = $2 WHERE id = $3`, code, content, pageID)
	if err != nil {
		return fmt.Errorf("update page content: %w", err)
	}
	return nil
}

// FindLemma looks up a lemma by (siteID, text).
func (s *Store) FindLemma(ctx context.Context, siteID, text string) (store.Lemma, bool, error) {
	var lemma store.Lemma
	row := s.pool.QueryRow(ctx, `
		SELECT id, site_id, lemma, frequency
		FROM lemma WHERE site_id = $1 AND lemma = $2`, siteID, text)
	err := row.Scan(&lemma.ID, &lemma.SiteID, &lemma.Text, &lemma.Frequency)
	if err != nil {
		if err == pgx.ErrNoRows {
			return store.Lemma{}, false, nil
		}
		return store.Lemma{}, false, fmt.Errorf("find lemma: %w", err)
	}
	return lemma, true, nil
}

// SaveLemmasBatch upserts lemmas by (site_id, lemma), setting frequency to
// the caller's already-aggregated value.
func (s *Store) SaveLemmasBatch(ctx context.Context, lemmas []store.Lemma) error {
	if len(lemmas) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i := range lemmas {
		l := &lemmas[i]
		if l.ID == "" {
			id, err := s.ids.NewID()
			if err != nil {
				return fmt.Errorf("generate lemma id: %w", err)
			}
			l.ID = id
		}
		batch.Queue(`
			INSERT INTO lemma (id, site_id, lemma, frequency)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (site_id, lemma) DO UPDATE SET frequency = EXCLUDED.frequency`,
			l.ID, l.SiteID, l.Text, l.Frequency,
		)
	}
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close() //nolint:errcheck // best-effort close after drain
	for range lemmas {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("save lemmas batch: %w", err)
		}
	}
	return nil
}

// SaveIndicesBatch inserts index rows, upserting rank on a (page, lemma)
// collision to preserve the at-most-one-Index-per-pair invariant (spec.md
// Data Model invariant 2).
func (s *Store) SaveIndicesBatch(ctx context.Context, indices []store.Index) error {
	if len(indices) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i := range indices {
		idx := &indices[i]
		if idx.ID == "" {
			id, err := s.ids.NewID()
			if err != nil {
				return fmt.Errorf("generate index id: %w", err)
			}
			idx.ID = id
		}
		batch.Queue(`
			INSERT INTO indexx (id, page_id, lemma_id, rankk)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (page_id, lemma_id) DO UPDATE SET rankk = EXCLUDED.rankk`,
			idx.ID, idx.PageID, idx.LemmaID, idx.Rank,
		)
	}
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close() //nolint:errcheck // best-effort close after drain
	for range indices {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("save indices batch: %w", err)
		}
	}
	return nil
}

// DeleteIndicesForPage deletes every index row for pageID and returns the
// deleted rows so the caller (C10) can decrement the referenced lemmas'
// frequencies by each row's rank.
func (s *Store) DeleteIndicesForPage(ctx context.Context, pageID string) ([]store.Index, error) {
	rows, err := s.pool.Query(ctx, `
		DELETE FROM indexx WHERE page_id = $1
		RETURNING id, page_id, lemma_id, rankk`, pageID)
	if err != nil {
		return nil, fmt.Errorf("delete indices for page: %w", err)
	}
	defer rows.Close()

	var deleted []store.Index
	for rows.Next() {
		var idx store.Index
		if err := rows.Scan(&idx.ID, &idx.PageID, &idx.LemmaID, &idx.Rank); err != nil {
			return nil, fmt.Errorf("scan deleted index: %w", err)
		}
		deleted = append(deleted, idx)
	}
	return deleted, nil
}

// AdjustLemmaFrequencies applies signed deltas to lemma.frequency by lemma
// ID, clamping the result at zero (spec.md §4.10 step 4).
func (s *Store) AdjustLemmaFrequencies(ctx context.Context, deltas map[string]int) error {
	for lemmaID, delta := range deltas {
		_, err := s.pool.Exec(ctx, `
			UPDATE lemma SET frequency = GREATEST(0, frequency + $1) WHERE id = $2`,
			delta, lemmaID,
		)
		if err != nil {
			return fmt.Errorf("adjust lemma frequency %s: %w", lemmaID, err)
		}
	}
	return nil
}
