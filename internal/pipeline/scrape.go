package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/usat-research/talentid-cli/internal/extract"
	"github.com/usat-research/talentid-cli/internal/model"
)

// Year pins the season the scraped records belong to; it is part of the
// source record identity key.
func (p *Pipeline) Year(year int) *Pipeline {
	p.year = year
	return p
}

func (p *Pipeline) seasonYear() int {
	if p.year > 0 {
		return p.year
	}
	return time.Now().UTC().Year()
}

// ScrapeSources fetches each result page, extracts performance rows, and
// upserts them as source records. Pages run concurrently up to the worker
// limit; a failed page increments the error count and the batch continues.
func (p *Pipeline) ScrapeSources(ctx context.Context, resultURLs []string) model.BatchCounts {
	var (
		mu     sync.Mutex
		counts model.BatchCounts
	)
	year := p.seasonYear()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Pipeline.Workers)

	for _, pageURL := range resultURLs {
		pageURL := pageURL
		g.Go(func() error {
			pc := p.scrapePage(gctx, pageURL, year)
			mu.Lock()
			counts.Add(pc)
			mu.Unlock()
			return nil // page failures are counted, never returned
		})
	}
	_ = g.Wait()

	zap.L().Info("pipeline: scrape phase done",
		zap.Int("pages", len(resultURLs)),
		zap.Int("fetched", counts.Fetched),
		zap.Int("extracted", counts.Extracted),
		zap.Int("skipped", counts.Skipped),
		zap.Int("errors", counts.Errors),
	)
	return counts
}

func (p *Pipeline) scrapePage(ctx context.Context, pageURL string, year int) model.BatchCounts {
	var counts model.BatchCounts
	log := zap.L().With(zap.String("url", pageURL))
	log.Debug("pipeline: fetching result page", zap.String("state", string(model.StateFetching)))

	res, err := p.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		log.Warn("pipeline: result page fetch failed", zap.Error(err))
		counts.Errors++
		return counts
	}
	counts.Fetched++

	rows, stats, err := p.extractor.Extract(res.Body)
	if err != nil {
		// Includes extract.ErrNoRows: a challenge page or a redesign the
		// lenient pass cannot read. Skip, do not fail the batch.
		log.Warn("pipeline: no rows extracted",
			zap.Error(err),
			zap.Int("dropped", stats.Dropped),
		)
		counts.Skipped++
		return counts
	}
	log.Info("pipeline: page extracted",
		zap.String("state", string(model.StateExtracted)),
		zap.Int("rows", len(rows)),
		zap.Int("dropped", stats.Dropped),
		zap.Int("deduped", stats.Deduped),
		zap.Int("capped", stats.Capped),
	)

	for _, row := range rows {
		if err := p.persistRow(ctx, row, year); err != nil {
			log.Warn("pipeline: source upsert failed",
				zap.String("athlete", row.FirstName+" "+row.LastName),
				zap.Error(err),
			)
			counts.Skipped++
			counts.Errors++
			continue
		}
		counts.Extracted++
	}
	return counts
}

func (p *Pipeline) persistRow(ctx context.Context, row extract.Row, year int) error {
	rec, err := RowToSource(row, year)
	if err != nil {
		return err
	}
	_, err = p.upsertRetry(ctx, func(ctx context.Context) (int64, error) {
		return p.store.UpsertSource(ctx, rec)
	})
	return err
}
