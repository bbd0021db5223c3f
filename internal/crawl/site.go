package crawl

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/anvil-search/indexer/internal/metrics"
	"github.com/anvil-search/indexer/internal/store"
)

// IndexingInterruptedMessage is the last_error recorded when a site is
// marked FAILED because the run was cancelled mid-crawl (spec.md §4.8).
const IndexingInterruptedMessage = "Indexing interrupted by user"

// IndexSite is the Site Indexer (C8): it sets the site's status to
// INDEXING, delegates to the Crawl Scheduler, then finalizes the site's
// status to INDEXED, FAILED (cancelled), or FAILED (error) — reset_all is
// the Coordinator's job, run once per run, not here (spec.md §4.8).
func (s *Scheduler) IndexSite(ctx context.Context, site store.Site, stopRequested *atomic.Bool) error {
	start := time.Now()
	if err := s.store.UpdateSiteStatus(ctx, site.ID, store.SiteIndexing, nil); err != nil {
		return err
	}

	crawlErr := s.Crawl(ctx, site, site.URL, stopRequested)
	metrics.ObserveSiteIndexingDuration(site.URL, time.Since(start))

	switch {
	case crawlErr != nil:
		msg := crawlErr.Error()
		if err := s.store.UpdateSiteStatus(ctx, site.ID, store.SiteFailed, &msg); err != nil {
			return err
		}
		s.logger.Warn("site indexing failed", zap.String("site", site.URL), zap.Error(crawlErr))
		return crawlErr
	case stopRequested.Load():
		msg := IndexingInterruptedMessage
		if err := s.store.UpdateSiteStatus(ctx, site.ID, store.SiteFailed, &msg); err != nil {
			return err
		}
		s.logger.Info("site indexing cancelled", zap.String("site", site.URL))
		return nil
	default:
		if err := s.store.UpdateSiteStatus(ctx, site.ID, store.SiteIndexed, nil); err != nil {
			return err
		}
		s.logger.Info("site indexing completed", zap.String("site", site.URL))
		return nil
	}
}
