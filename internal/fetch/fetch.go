// Package fetch retrieves pages from sites that actively resist scraping.
// Strategies form a ladder: plain HTTP with realistic browser headers first,
// a headless-browser render as the last rung. Each rung gets a bounded
// number of cooldown retries before the ladder escalates; every request is
// paced per host.
package fetch

import (
	"context"
	"math/rand"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/usat-research/talentid-cli/internal/config"
	"github.com/usat-research/talentid-cli/internal/resilience"
)

// ErrExhausted is returned when every strategy has run out of retries for a
// URL. The pipeline skips the record and moves on.
var ErrExhausted = eris.New("fetch: all strategies exhausted")

// Result is a successfully fetched page.
type Result struct {
	URL        string
	Body       string
	Title      string
	StatusCode int
	Strategy   string
	FromCache  bool
	FetchedAt  time.Time
}

// Strategy fetches a single URL one way.
type Strategy interface {
	Name() string
	Fetch(ctx context.Context, url string) (*Result, error)
}

// Fetcher is the surface the pipeline consumes; Ladder and CachedFetcher
// both satisfy it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Result, error)
}

// Ladder runs strategies in order, pacing requests per host and applying
// cooldown retries on blocks and transient failures.
type Ladder struct {
	strategies []Strategy

	minInterval time.Duration
	jitterFrac  float64
	maxRetries  int
	cooldown    time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewLadder builds a ladder from cfg and the given strategies, tried in
// order.
func NewLadder(cfg config.FetchConfig, strategies ...Strategy) *Ladder {
	return &Ladder{
		strategies:  strategies,
		minInterval: time.Duration(cfg.MinHostIntervalMs) * time.Millisecond,
		jitterFrac:  cfg.JitterFraction,
		maxRetries:  cfg.MaxRetries,
		cooldown:    time.Duration(cfg.CooldownSecs) * time.Second,
		limiters:    make(map[string]*rate.Limiter),
	}
}

// Fetch retrieves targetURL via the first strategy that produces a
// substantive page. A blocked or transient attempt is retried on the same
// strategy after a cooldown, up to MaxRetries per strategy, before the
// ladder escalates.
func (l *Ladder) Fetch(ctx context.Context, targetURL string) (*Result, error) {
	var lastErr error
	for _, s := range l.strategies {
		res, err := l.fetchWithRetries(ctx, s, targetURL)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, lastErr
		}
		zap.L().Debug("fetch: strategy exhausted, escalating",
			zap.String("strategy", s.Name()),
			zap.String("url", targetURL),
			zap.Error(err),
		)
	}
	if lastErr != nil {
		return nil, eris.Wrapf(ErrExhausted, "%s: last error: %v", targetURL, lastErr)
	}
	return nil, ErrExhausted
}

func (l *Ladder) fetchWithRetries(ctx context.Context, s Strategy, targetURL string) (*Result, error) {
	attempts := l.maxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := l.sleepCooldown(ctx); err != nil {
				return nil, lastErr
			}
		}
		// Every attempt across every rung passes the per-host limiter; a
		// short cooldown must not let retries land closer than the host
		// interval.
		if err := l.pace(ctx, targetURL); err != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, err
		}

		res, err := s.Fetch(ctx, targetURL)
		if err == nil {
			res.Strategy = s.Name()
			res.FetchedAt = time.Now().UTC()
			return res, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, lastErr
		}
		if !IsBlocked(err) && !resilience.IsTransient(err) {
			return nil, lastErr
		}
		zap.L().Debug("fetch: attempt failed, cooling down",
			zap.String("strategy", s.Name()),
			zap.String("url", targetURL),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	return nil, lastErr
}

// pace waits for the per-host limiter plus a random jitter so request
// timing never forms a detectable rhythm.
func (l *Ladder) pace(ctx context.Context, targetURL string) error {
	if l.minInterval <= 0 {
		return nil
	}
	host := hostOf(targetURL)

	l.mu.Lock()
	lim, ok := l.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Every(l.minInterval), 1)
		l.limiters[host] = lim
	}
	l.mu.Unlock()

	if err := lim.Wait(ctx); err != nil {
		return eris.Wrap(err, "fetch: rate limit wait")
	}
	if l.jitterFrac > 0 {
		jitter := time.Duration(rand.Float64() * l.jitterFrac * float64(l.minInterval))
		timer := time.NewTimer(jitter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return eris.Wrap(ctx.Err(), "fetch: jitter wait")
		case <-timer.C:
		}
	}
	return nil
}

func (l *Ladder) sleepCooldown(ctx context.Context) error {
	d := l.cooldown
	if d <= 0 {
		return nil
	}
	if l.jitterFrac > 0 {
		d += time.Duration(rand.Float64() * l.jitterFrac * float64(d))
	}
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Host
}
