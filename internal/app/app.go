// Package app initializes and holds the long-lived services that back the
// indexer, acting as a dependency injection container.
//
// Grounded on the teacher's internal/app/app.go: a single App struct built
// once at startup from Viper-backed config and handed to the CLI commands,
// trimmed to the providers this service actually needs (Postgres Page Store,
// HTTP fetcher, lemma analyzer) since the teacher's GCS/Postgres/Pub-Sub
// provider-switch has no home here — there is exactly one storage backend
// and no outbound queue (see DESIGN.md's dropped-dependency ledger).
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/anvil-search/indexer/internal/api"
	"github.com/anvil-search/indexer/internal/cache/lemmacache"
	"github.com/anvil-search/indexer/internal/cache/pageurlcache"
	"github.com/anvil-search/indexer/internal/config"
	"github.com/anvil-search/indexer/internal/coordinator"
	"github.com/anvil-search/indexer/internal/crawl"
	"github.com/anvil-search/indexer/internal/errsink"
	"github.com/anvil-search/indexer/internal/fetch"
	"github.com/anvil-search/indexer/internal/lemma"
	"github.com/anvil-search/indexer/internal/lemmaindex"
	"github.com/anvil-search/indexer/internal/logging"
	"github.com/anvil-search/indexer/internal/metrics"
	"github.com/anvil-search/indexer/internal/reindex"
	"github.com/anvil-search/indexer/internal/store/postgres"
)

// App holds every shared, long-lived service. It is built once at startup
// and passed to the CLI commands that need it.
type App struct {
	logger      *zap.Logger
	store       *postgres.Store
	coordinator *coordinator.Coordinator
	server      *api.Server
	cfg         config.Config
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Coordinator returns the Indexing Coordinator (C9).
func (a *App) Coordinator() *coordinator.Coordinator {
	return a.coordinator
}

// Server returns the HTTP control surface.
func (a *App) Server() *api.Server {
	return a.server
}

// ServerPort returns the configured HTTP listen port.
func (a *App) ServerPort() int {
	return a.cfg.Server.Port
}

// Sites returns the configured seed sites in coordinator.SiteSeed form.
func (a *App) Sites() []coordinator.SiteSeed {
	seeds := make([]coordinator.SiteSeed, len(a.cfg.Sites))
	for i, s := range a.cfg.Sites {
		seeds[i] = coordinator.SiteSeed{URL: s.URL, Name: s.Name}
	}
	return seeds
}

// New builds an App from cfg. It is the central point of service wiring and
// fails fast if any critical dependency cannot be constructed.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	metrics.Init()

	pgStore, err := postgres.New(ctx, cfg.DB.DSN)
	if err != nil {
		return nil, fmt.Errorf("init page store: %w", err)
	}

	robots := fetch.NewRobotsEnforcer(cfg.Indexing.RespectRobots, cfg.Indexing.UserAgent, logger)
	fetcher := fetch.New(fetch.Config{
		UserAgent: cfg.Indexing.UserAgent,
		Robots:    robots,
	})

	analyzer, err := lemma.New()
	if err != nil {
		return nil, fmt.Errorf("init lemma analyzer: %w", err)
	}

	sink := errsink.New()

	// The Reindexer builds its own Lemma Cache fresh per IndexPage call
	// rather than reusing cfg.Cache's sizing across calls as a single
	// long-lived instance (see reindex.New's doc comment): it still uses
	// the same configured size/TTL knobs, just not a shared cache handle.
	reindexer := reindex.New(
		fetcher, analyzer, pgStore, sink,
		cfg.Indexing.BatchSize,
		cfg.Cache.LemmaCacheMax,
		time.Duration(cfg.Cache.LemmaCacheIdleTTLSeconds)*time.Second,
	)

	newScheduler := func(lemmaCache *lemmacache.Cache, pageURLs *pageurlcache.Cache) *crawl.Scheduler {
		writer := lemmaindex.New(pgStore, lemmaCache, cfg.Indexing.BatchSize)
		return crawl.New(
			crawl.Config{Parallelism: cfg.Indexing.Parallelism},
			fetcher, analyzer, pageURLs, writer, pgStore, sink, logger,
		)
	}

	coordCfg := coordinator.Config{
		LemmaCacheMax:          cfg.Cache.LemmaCacheMax,
		LemmaCacheIdleTTL:      cfg.Cache.LemmaCacheIdleTTLSeconds,
		PageURLCacheMax:        cfg.Cache.PageURLCacheMax,
		PageURLCacheIdleTTL:    cfg.Cache.PageURLCacheIdleTTLSeconds,
		PoolTerminationTimeout: time.Duration(cfg.Indexing.PoolTerminationTimeoutSeconds) * time.Second,
	}
	coord := coordinator.New(pgStore, reindexer, sink, logger, coordCfg, newScheduler)

	seeds := make([]coordinator.SiteSeed, len(cfg.Sites))
	for i, s := range cfg.Sites {
		seeds[i] = coordinator.SiteSeed{URL: s.URL, Name: s.Name}
	}

	srv := api.NewServer(coord, seeds, api.AuthConfig{Enabled: cfg.Auth.Enabled, APIKey: cfg.Auth.APIKey}, logger)

	return &App{
		logger:      logger,
		store:       pgStore,
		coordinator: coord,
		server:      srv,
		cfg:         cfg,
	}, nil
}

// Close releases every service the App owns.
func (a *App) Close() {
	a.store.Close()
	if err := a.logger.Sync(); err != nil {
		a.logger.Warn("error syncing logger on shutdown", zap.Error(err))
	}
}
