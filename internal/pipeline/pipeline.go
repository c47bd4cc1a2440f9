// Package pipeline orchestrates the batch flow: fetch result pages, extract
// source records, discover and score candidates, persist links. A batch
// always runs to completion; individual record failures are converted to
// skip counts, never propagated as batch errors.
package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/usat-research/talentid-cli/internal/config"
	"github.com/usat-research/talentid-cli/internal/extract"
	"github.com/usat-research/talentid-cli/internal/fetch"
	"github.com/usat-research/talentid-cli/internal/match"
	"github.com/usat-research/talentid-cli/internal/model"
	"github.com/usat-research/talentid-cli/internal/resilience"
	"github.com/usat-research/talentid-cli/internal/store"
	"github.com/usat-research/talentid-cli/internal/timeparse"
)

const (
	defaultSearchURL     = "https://www.swimcloud.com/search?q=%s"
	defaultMaxCandidates = 5
)

// Pipeline wires the fetcher, extractor, scorer, and store into the batch
// flow.
type Pipeline struct {
	cfg       *config.Config
	store     store.Store
	fetcher   fetch.Fetcher
	extractor *extract.Extractor
	scorer    *match.Scorer

	searchURL     string // fmt template; %s receives the escaped query
	maxCandidates int
	year          int
}

// New creates a Pipeline with all dependencies.
func New(cfg *config.Config, st store.Store, fetcher fetch.Fetcher) *Pipeline {
	return &Pipeline{
		cfg:           cfg,
		store:         st,
		fetcher:       fetcher,
		extractor:     extract.New(cfg.Extract),
		scorer:        match.NewScorer(cfg.Match),
		searchURL:     defaultSearchURL,
		maxCandidates: defaultMaxCandidates,
	}
}

// WithSearchURL overrides the candidate search endpoint template.
func (p *Pipeline) WithSearchURL(template string) *Pipeline {
	p.searchURL = template
	return p
}

// Report summarizes one batch run.
type Report struct {
	RunID     string            `json:"run_id"`
	Counts    model.BatchCounts `json:"counts"`
	StartedAt time.Time         `json:"started_at"`
	Duration  time.Duration     `json:"duration"`
}

// Run executes a full batch: scrape the given result pages, then match
// every source record that has no link yet. A configured time budget bounds
// the whole run.
func (p *Pipeline) Run(ctx context.Context, resultURLs []string) (*Report, error) {
	report := &Report{
		RunID:     uuid.New().String(),
		StartedAt: time.Now().UTC(),
	}
	log := zap.L().With(zap.String("run_id", report.RunID))
	log.Info("pipeline: starting batch",
		zap.Int("result_urls", len(resultURLs)),
		zap.Int("workers", p.cfg.Pipeline.Workers),
	)

	if p.cfg.Pipeline.BudgetMins > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(p.cfg.Pipeline.BudgetMins)*time.Minute)
		defer cancel()
	}

	scraped := p.ScrapeSources(ctx, resultURLs)
	report.Counts.Add(scraped)

	matched := p.MatchSources(ctx)
	report.Counts.Add(matched)

	report.Duration = time.Since(report.StartedAt)
	log.Info("pipeline: batch complete",
		zap.Int("fetched", report.Counts.Fetched),
		zap.Int("extracted", report.Counts.Extracted),
		zap.Int("scored", report.Counts.Scored),
		zap.Int("auto_verified", report.Counts.AutoVerified),
		zap.Int("manual_review", report.Counts.ManualReview),
		zap.Int("no_match", report.Counts.NoMatch),
		zap.Int("skipped", report.Counts.Skipped),
		zap.Int("errors", report.Counts.Errors),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

// upsertRetry wraps a store write with the conflict/transient retry policy.
func (p *Pipeline) upsertRetry(ctx context.Context, fn func(ctx context.Context) (int64, error)) (int64, error) {
	cfg := resilience.DefaultRetryConfig()
	if p.cfg.Pipeline.UpsertRetries > 0 {
		cfg.MaxAttempts = p.cfg.Pipeline.UpsertRetries
	}
	cfg.InitialBackoff = 100 * time.Millisecond
	return resilience.DoVal(ctx, cfg, fn)
}

// RowToSource converts an extracted row into a persistable source record.
// The raw row is retained verbatim for later reprocessing.
func RowToSource(row extract.Row, year int) (model.SourceRecord, error) {
	raw, err := json.Marshal(row)
	if err != nil {
		return model.SourceRecord{}, eris.Wrap(err, "pipeline: marshal raw row")
	}
	return model.SourceRecord{
		FirstName:       row.FirstName,
		LastName:        row.LastName,
		Affiliation:     row.Affiliation,
		EventKey:        row.EventKey,
		PerformanceTime: row.Seconds,
		Year:            year,
		Gender:          row.Gender,
		Raw:             raw,
		ScrapedAt:       time.Now().UTC(),
	}, nil
}

func (p *Pipeline) extractSide() timeparse.DualSide {
	return timeparse.SideFromString(p.cfg.Extract.DualTimeSide)
}
