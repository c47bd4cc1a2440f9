package fetch

import (
	"context"
	"math/rand"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
)

// RenderStrategy is the last ladder rung: a headless Chrome session that
// executes the page's scripts, so challenge interstitials resolve
// themselves. Expensive, so the ladder only reaches it after direct HTTP is
// exhausted.
type RenderStrategy struct {
	timeout time.Duration
}

func NewRenderStrategy(timeout time.Duration) *RenderStrategy {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &RenderStrategy{timeout: timeout}
}

func (r *RenderStrategy) Name() string { return "headless_render" }

func (r *RenderStrategy) Fetch(ctx context.Context, targetURL string) (*Result, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-first-run", true),
		// Chrome advertises automation through this blink feature; sites
		// key their challenges on it.
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(headerSets[rand.Intn(len(headerSets))].userAgent),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	runCtx, cancelRun := context.WithTimeout(browserCtx, r.timeout)
	defer cancelRun()

	var body, title string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(targetURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Title(&title),
		chromedp.OuterHTML("html", &body, chromedp.ByQuery),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "headless_render: %s", targetURL)
	}

	if bt := DetectBlock(nil, []byte(body)); bt != BlockNone {
		return nil, &BlockError{Type: bt}
	}
	if !Substantive(title, []byte(body)) {
		return nil, &BlockError{Type: BlockShell}
	}

	return &Result{
		URL:        targetURL,
		Body:       body,
		Title:      title,
		StatusCode: 200,
	}, nil
}
