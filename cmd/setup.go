package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/usat-research/talentid-cli/internal/fetch"
	"github.com/usat-research/talentid-cli/internal/pipeline"
	"github.com/usat-research/talentid-cli/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "talentid.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initFetcher builds the escalation ladder: plain HTTP first, a headless
// browser rung when rendering is enabled, all behind the persistent page
// cache.
func initFetcher(st store.Store) fetch.Fetcher {
	timeout := time.Duration(cfg.Fetch.TimeoutSecs) * time.Second

	strategies := []fetch.Strategy{fetch.NewDirectStrategy(timeout)}
	if cfg.Fetch.RenderEnabled {
		strategies = append(strategies,
			fetch.NewRenderStrategy(time.Duration(cfg.Fetch.RenderTimeoutSecs)*time.Second))
	}

	ladder := fetch.NewLadder(cfg.Fetch, strategies...)
	ttl := time.Duration(cfg.Fetch.CacheTTLMins) * time.Minute
	return fetch.NewCachedFetcher(ladder, store.PageCacheBackend{Store: st}, ttl)
}

// initPipeline wires store, fetcher, and pipeline for the batch commands.
// The caller owns the returned store's lifetime.
func initPipeline(ctx context.Context) (*pipeline.Pipeline, store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, nil, eris.Wrap(err, "migrate store")
	}
	return pipeline.New(cfg, st, initFetcher(st)), st, nil
}
