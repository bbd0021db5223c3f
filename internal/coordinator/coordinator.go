// Package coordinator implements the Indexing Coordinator (C9): the single
// process-wide owner of the running flag, the stop-requested flag, and the
// Errors Sink, and the only component that dispatches Site Indexer runs.
//
// Grounded on the teacher's internal/app wiring style (one long-lived
// object holding its dependencies as fields) plus the guidance of DESIGN
// NOTES §9 "global mutable state": running/stopRequested/the sink are
// encapsulated as fields here rather than package-level globals.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/anvil-search/indexer/internal/cache/lemmacache"
	"github.com/anvil-search/indexer/internal/cache/pageurlcache"
	"github.com/anvil-search/indexer/internal/crawl"
	"github.com/anvil-search/indexer/internal/errsink"
	"github.com/anvil-search/indexer/internal/reindex"
	"github.com/anvil-search/indexer/internal/store"
)

// ErrAlreadyRunning is returned by Start when a run is already in progress.
var ErrAlreadyRunning = errors.New("indexing is already running")

// ErrNotRunning is returned by Stop when no run is in progress.
var ErrNotRunning = errors.New("indexing is not running")

// SiteSeed names one configured site to index.
type SiteSeed struct {
	URL  string
	Name string
}

// Config controls the per-run worker pool and cache sizing.
type Config struct {
	LemmaCacheMax       int
	LemmaCacheIdleTTL   int // seconds; kept as int at this layer, converted by the caller
	PageURLCacheMax     int
	PageURLCacheIdleTTL int

	// PoolTerminationTimeout bounds how long run awaits the per-site worker
	// pool before forcibly cancelling remaining work (spec.md §4.9/§5).
	// Zero disables the bound and waits forever, matching the source's
	// Long.MAX_VALUE awaitTermination.
	PoolTerminationTimeout time.Duration
}

// Coordinator is the Indexing Coordinator (C9).
type Coordinator struct {
	store     store.Store
	reindexer *reindex.Reindexer
	sink      *errsink.Sink
	logger    *zap.Logger
	cfg       Config

	newScheduler func(lemmaCache *lemmacache.Cache, pageURLs *pageurlcache.Cache) *crawl.Scheduler

	running       atomic.Bool
	stopRequested atomic.Bool
}

// New builds a Coordinator. newScheduler constructs a fresh Crawl Scheduler
// bound to per-run caches; the Coordinator owns the caches' lifetime
// (cleared at the end of every run per spec.md §4.9) and never reuses them
// across runs.
func New(
	st store.Store,
	reindexer *reindex.Reindexer,
	sink *errsink.Sink,
	logger *zap.Logger,
	cfg Config,
	newScheduler func(lemmaCache *lemmacache.Cache, pageURLs *pageurlcache.Cache) *crawl.Scheduler,
) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		store:        st,
		reindexer:    reindexer,
		sink:         sink,
		logger:       logger,
		cfg:          cfg,
		newScheduler: newScheduler,
	}
}

// Start implements start_indexing: reject if already running, else launch a
// background run that resets persistence once, then indexes every site in
// parallel and awaits them all. Start itself returns without waiting.
func (c *Coordinator) Start(ctx context.Context, sites []SiteSeed) error {
	if !c.running.CompareAndSwap(false, true) {
		c.sink.Record(errsink.KindAlreadyRunning, ErrAlreadyRunning.Error(), "", "start_indexing")
		return ErrAlreadyRunning
	}

	c.stopRequested.Store(false)
	c.sink.Clear()

	// The run outlives the HTTP request that triggered it, so it must not
	// inherit the request's cancellation — only stopRequested governs it.
	go c.run(context.WithoutCancel(ctx), sites)
	return nil
}

func (c *Coordinator) run(ctx context.Context, sites []SiteSeed) {
	defer c.running.Store(false)

	if err := c.store.ResetAll(ctx); err != nil {
		c.sink.Record(errsink.KindDBError, err.Error(), "", "reset_all")
		return
	}

	lemmaCache := lemmacache.New(c.cfg.LemmaCacheMax, time.Duration(c.cfg.LemmaCacheIdleTTL)*time.Second, c.lemmaLookup)
	pageURLs := pageurlcache.New(c.cfg.PageURLCacheMax, time.Duration(c.cfg.PageURLCacheIdleTTL)*time.Second)
	scheduler := c.newScheduler(lemmaCache, pageURLs)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for _, seed := range sites {
		seed := seed
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.indexOneSite(runCtx, scheduler, seed)
		}()
	}

	c.awaitPoolTermination(&wg, cancel)

	lemmaCache.Clear()
	pageURLs.Clear()
}

// awaitPoolTermination waits for wg with no deadline unless
// cfg.PoolTerminationTimeout is set, matching the source's
// ForkJoinPool.awaitTermination(Long.MAX_VALUE, ...). If the timeout
// elapses before every site task finishes, it calls cancel (aborting any
// in-flight fetch bound to the run's context; stopRequested is untouched) and
// records POOL_TERMINATION_FORCED, mirroring the source's shutdownNow
// fallback in its finally block.
func (c *Coordinator) awaitPoolTermination(wg *sync.WaitGroup, cancel context.CancelFunc) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	if c.cfg.PoolTerminationTimeout <= 0 {
		<-done
		return
	}

	select {
	case <-done:
	case <-time.After(c.cfg.PoolTerminationTimeout):
		c.logger.Warn("worker pool did not terminate within the configured timeout; forcing cancellation",
			zap.Duration("timeout", c.cfg.PoolTerminationTimeout))
		cancel()
		c.sink.Record(errsink.KindPoolTerminationForced,
			fmt.Sprintf("worker pool did not terminate within %s", c.cfg.PoolTerminationTimeout),
			"", "await_termination")
		<-done
	}
}

func (c *Coordinator) indexOneSite(ctx context.Context, scheduler *crawl.Scheduler, seed SiteSeed) {
	site, err := c.store.FindSiteByURL(ctx, seed.URL)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.sink.Record(errsink.KindDBError, err.Error(), seed.URL, "find_site_by_url")
			return
		}
		site, err = c.store.CreateSite(ctx, seed.URL, seed.Name)
		if err != nil {
			c.sink.Record(errsink.KindDBError, err.Error(), seed.URL, "create_site")
			return
		}
	}

	if err := scheduler.IndexSite(ctx, site, &c.stopRequested); err != nil {
		c.logger.Warn("site indexing failed", zap.String("site", seed.URL), zap.Error(err))
	}
}

func (c *Coordinator) lemmaLookup(ctx context.Context, siteID, text string) (string, int, bool, error) {
	l, ok, err := c.store.FindLemma(ctx, siteID, text)
	if err != nil {
		return "", 0, false, err
	}
	return l.ID, l.Frequency, ok, nil
}

// Stop implements stop_indexing: reject if no run is in progress, else flip
// the cooperative stop flag and return immediately.
func (c *Coordinator) Stop() error {
	if !c.running.Load() {
		c.sink.Record(errsink.KindNotRunning, ErrNotRunning.Error(), "", "stop_indexing")
		return ErrNotRunning
	}
	c.stopRequested.Store(true)
	return nil
}

// IndexPage delegates to the Single-page Re-indexer (C10); it may run
// concurrently with or independently of a full indexing run.
func (c *Coordinator) IndexPage(ctx context.Context, url string) (bool, error) {
	ok, err := c.reindexer.IndexPage(ctx, url)
	if err != nil {
		return false, fmt.Errorf("index page: %w", err)
	}
	return ok, nil
}

// Running reports whether a full indexing run is currently in progress.
func (c *Coordinator) Running() bool {
	return c.running.Load()
}

// Errors returns a snapshot of the Errors Sink.
func (c *Coordinator) Errors() []errsink.Entry {
	return c.sink.Entries()
}
