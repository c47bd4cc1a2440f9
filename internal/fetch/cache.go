package fetch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CacheBackend stores fetched pages keyed by URL. The memory backend covers
// single runs; a store-backed implementation survives restarts.
type CacheBackend interface {
	Get(ctx context.Context, key string) (*Result, bool, error)
	Put(ctx context.Context, key string, res *Result, expiresAt time.Time) error
}

// CachedFetcher wraps a Fetcher with a TTL cache so reprocessing a batch
// never re-hits the source site inside the freshness window.
type CachedFetcher struct {
	inner   Fetcher
	backend CacheBackend
	ttl     time.Duration
}

func NewCachedFetcher(inner Fetcher, backend CacheBackend, ttl time.Duration) *CachedFetcher {
	return &CachedFetcher{inner: inner, backend: backend, ttl: ttl}
}

func (c *CachedFetcher) Fetch(ctx context.Context, url string) (*Result, error) {
	if cached, ok, err := c.backend.Get(ctx, url); err == nil && ok {
		hit := *cached
		hit.FromCache = true
		return &hit, nil
	} else if err != nil {
		zap.L().Warn("fetch: cache read failed", zap.String("url", url), zap.Error(err))
	}

	res, err := c.inner.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := c.backend.Put(ctx, url, res, time.Now().Add(c.ttl)); err != nil {
		zap.L().Warn("fetch: cache write failed", zap.String("url", url), zap.Error(err))
	}
	return res, nil
}

type memoryEntry struct {
	res       Result
	expiresAt time.Time
}

// MemoryCache is an in-process CacheBackend. Expired entries are dropped
// lazily on read.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *MemoryCache) Get(_ context.Context, key string) (*Result, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if m.now().After(e.expiresAt) {
		delete(m.entries, key)
		return nil, false, nil
	}
	res := e.res
	return &res, true, nil
}

func (m *MemoryCache) Put(_ context.Context, key string, res *Result, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{res: *res, expiresAt: expiresAt}
	return nil
}
