package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usat-research/talentid-cli/internal/config"
)

var substantivePage = "<html><head><title>Results</title></head><body>" +
	strings.Repeat("<div>row</div>", 100) + "</body></html>"

func testFetchConfig() config.FetchConfig {
	return config.FetchConfig{
		MinHostIntervalMs: 0,
		JitterFraction:    0,
		MaxRetries:        2,
		CooldownSecs:      0,
	}
}

func TestDirectFetchOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		assert.NotEmpty(t, r.Header.Get("Accept"))
		_, _ = w.Write([]byte(substantivePage))
	}))
	defer srv.Close()

	res, err := NewDirectStrategy(5*time.Second).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Results", res.Title)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, res.Body, "<div>row</div>")
}

func TestDirectFetchBlocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("cf-ray", "8a1b2c3d")
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewDirectStrategy(5*time.Second).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, IsBlocked(err))

	var be *BlockError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, BlockCloudflare, be.Type)
}

func TestDirectFetchShellPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><head></head><body><noscript>enable javascript</noscript></body></html>`))
	}))
	defer srv.Close()

	_, err := NewDirectStrategy(5*time.Second).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, IsBlocked(err), "script-only shell must read as a block")
}

func TestLadderRetriesPastBlock(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		if hits <= 2 {
			w.Header().Set("server", "cloudflare")
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(substantivePage))
	}))
	defer srv.Close()

	ladder := NewLadder(testFetchConfig(), NewDirectStrategy(5*time.Second))
	res, err := ladder.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, 3, hits)
	assert.Equal(t, "direct_http", res.Strategy)
	assert.False(t, res.FetchedAt.IsZero())
}

type stubStrategy struct {
	name  string
	res   *Result
	err   error
	calls int
}

func (s *stubStrategy) Name() string { return s.name }
func (s *stubStrategy) Fetch(context.Context, string) (*Result, error) {
	s.calls++
	return s.res, s.err
}

func TestLadderEscalates(t *testing.T) {
	blocked := &stubStrategy{name: "first", err: &BlockError{Type: BlockCaptcha}}
	rescue := &stubStrategy{name: "second", res: &Result{Body: substantivePage, Title: "Results"}}

	ladder := NewLadder(testFetchConfig(), blocked, rescue)
	res, err := ladder.Fetch(context.Background(), "https://example.com/results")
	require.NoError(t, err)

	assert.Equal(t, "second", res.Strategy)
	assert.Equal(t, 3, blocked.calls, "blocked rung gets max retries before escalation")
	assert.Equal(t, 1, rescue.calls)
}

func TestLadderPacesEveryAttempt(t *testing.T) {
	cfg := testFetchConfig()
	cfg.MinHostIntervalMs = 40
	cfg.MaxRetries = 1

	blocked := &stubStrategy{name: "first", err: &BlockError{Type: BlockCaptcha}}
	rescue := &stubStrategy{name: "second", res: &Result{Body: substantivePage, Title: "Results"}}
	ladder := NewLadder(cfg, blocked, rescue)

	start := time.Now()
	_, err := ladder.Fetch(context.Background(), "https://example.com/results")
	require.NoError(t, err)

	// 3 attempts total (blocked, blocked retry, escalated) with a zero
	// cooldown: the host limiter alone must enforce two full intervals.
	assert.Equal(t, 2, blocked.calls)
	assert.Equal(t, 1, rescue.calls)
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond,
		"retries and escalations must not land closer than the host interval")
}

func TestLadderExhausted(t *testing.T) {
	blocked := &stubStrategy{name: "only", err: &BlockError{Type: BlockCloudflare}}
	ladder := NewLadder(testFetchConfig(), blocked)

	_, err := ladder.Fetch(context.Background(), "https://example.com/results")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrExhausted))
}

func TestLadderPermanentErrorNotRetried(t *testing.T) {
	gone := &stubStrategy{name: "only", err: eris.New("status 404")}
	ladder := NewLadder(testFetchConfig(), gone)

	_, err := ladder.Fetch(context.Background(), "https://example.com/results")
	require.Error(t, err)
	assert.Equal(t, 1, gone.calls)
}

func TestCachedFetcher(t *testing.T) {
	inner := &stubStrategy{name: "inner", res: &Result{URL: "u", Body: substantivePage, Title: "Results"}}
	ladder := NewLadder(testFetchConfig(), inner)

	cache := NewMemoryCache()
	fetcher := NewCachedFetcher(ladder, cache, time.Hour)

	first, err := fetcher.Fetch(context.Background(), "https://example.com/results")
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := fetcher.Fetch(context.Background(), "https://example.com/results")
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, 1, inner.calls)
}

func TestMemoryCacheExpiry(t *testing.T) {
	cache := NewMemoryCache()
	now := time.Now()
	cache.now = func() time.Time { return now }

	require.NoError(t, cache.Put(context.Background(), "k", &Result{Title: "Results"}, now.Add(time.Minute)))

	_, ok, err := cache.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok, err = cache.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
