package store

import (
	"context"
	"time"

	"github.com/usat-research/talentid-cli/internal/fetch"
)

// PageCacheBackend adapts a Store to the fetcher's cache interface so
// fetched pages survive process restarts.
type PageCacheBackend struct {
	Store Store
}

var _ fetch.CacheBackend = PageCacheBackend{}

func (b PageCacheBackend) Get(ctx context.Context, key string) (*fetch.Result, bool, error) {
	page, err := b.Store.GetCachedPage(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if page == nil {
		return nil, false, nil
	}
	return &fetch.Result{
		URL:        page.URL,
		Body:       page.Body,
		Title:      page.Title,
		StatusCode: page.StatusCode,
		Strategy:   page.Strategy,
		FetchedAt:  page.FetchedAt,
	}, true, nil
}

func (b PageCacheBackend) Put(ctx context.Context, key string, res *fetch.Result, expiresAt time.Time) error {
	return b.Store.SetCachedPage(ctx, CachedPage{
		URL:        key,
		Body:       res.Body,
		Title:      res.Title,
		StatusCode: res.StatusCode,
		Strategy:   res.Strategy,
		FetchedAt:  res.FetchedAt,
		ExpiresAt:  expiresAt,
	})
}
