package fetch

import (
	"context"
	"io"
	"math/rand"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/usat-research/talentid-cli/internal/resilience"
)

const maxBodyBytes = 2 << 20

// headerSet is one coherent browser identity. Mixing headers from different
// browsers is itself a bot signature, so each set is kept internally
// consistent and chosen as a unit.
type headerSet struct {
	userAgent      string
	accept         string
	acceptLanguage string
	secChUA        string
}

var headerSets = []headerSet{
	{
		userAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
		accept:         "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		acceptLanguage: "en-US,en;q=0.9",
		secChUA:        `"Not/A)Brand";v="8", "Chromium";v="126", "Google Chrome";v="126"`,
	},
	{
		userAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
		accept:         "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		acceptLanguage: "en-US,en;q=0.9",
	},
	{
		userAgent:      "Mozilla/5.0 (X11; Linux x86_64; rv:127.0) Gecko/20100101 Firefox/127.0",
		accept:         "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		acceptLanguage: "en-US,en;q=0.5",
	},
}

// DirectStrategy fetches over plain HTTP wearing a randomized browser
// identity. It is the cheap first rung; anything it cannot get through is
// escalated by the ladder.
type DirectStrategy struct {
	client *http.Client
}

func NewDirectStrategy(timeout time.Duration) *DirectStrategy {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &DirectStrategy{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

func (d *DirectStrategy) Name() string { return "direct_http" }

func (d *DirectStrategy) Fetch(ctx context.Context, targetURL string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "direct_http: create request")
	}
	applyHeaders(req, headerSets[rand.Intn(len(headerSets))])

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "direct_http: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrap(err, "direct_http: read body")
	}

	if bt := DetectBlock(resp, body); bt != BlockNone {
		return nil, &BlockError{Type: bt, StatusCode: resp.StatusCode}
	}
	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientError(
			eris.Errorf("direct_http: status %d", resp.StatusCode), resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, eris.Errorf("direct_http: status %d", resp.StatusCode)
	}

	title := extractTitle(body)
	if !Substantive(title, body) {
		// Title-less or near-empty pages are script shells in practice.
		return nil, &BlockError{Type: BlockShell, StatusCode: resp.StatusCode}
	}

	return &Result{
		URL:        targetURL,
		Body:       string(body),
		Title:      title,
		StatusCode: resp.StatusCode,
	}, nil
}

func applyHeaders(req *http.Request, hs headerSet) {
	req.Header.Set("User-Agent", hs.userAgent)
	req.Header.Set("Accept", hs.accept)
	req.Header.Set("Accept-Language", hs.acceptLanguage)
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	if hs.secChUA != "" {
		req.Header.Set("Sec-Ch-Ua", hs.secChUA)
		req.Header.Set("Sec-Ch-Ua-Mobile", "?0")
	}
}

var titleRe = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

func extractTitle(body []byte) string {
	m := titleRe.FindSubmatch(body)
	if len(m) > 1 {
		return strings.TrimSpace(string(m[1]))
	}
	return ""
}
