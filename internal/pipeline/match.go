package pipeline

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/usat-research/talentid-cli/internal/extract"
	"github.com/usat-research/talentid-cli/internal/match"
	"github.com/usat-research/talentid-cli/internal/model"
)

// MatchSources scores every source record that has no link yet. Candidate
// discovery goes name search -> profile URLs -> profile parse; the best
// scoring candidate becomes the link. Discovery and scoring failures skip
// the record and move on.
func (p *Pipeline) MatchSources(ctx context.Context) model.BatchCounts {
	var counts model.BatchCounts

	sources, err := p.store.UnmatchedSources(ctx, p.cfg.Pipeline.MaxRecords)
	if err != nil {
		zap.L().Error("pipeline: list unmatched sources", zap.Error(err))
		counts.Errors++
		return counts
	}
	zap.L().Info("pipeline: match phase starting", zap.Int("unmatched", len(sources)))

	for _, src := range sources {
		if ctx.Err() != nil {
			zap.L().Warn("pipeline: match phase cut short",
				zap.Int("remaining", len(sources)-counts.Scored-counts.NoMatch-counts.Skipped),
			)
			break
		}
		p.matchOne(ctx, src, &counts)
	}

	zap.L().Info("pipeline: match phase done",
		zap.Int("scored", counts.Scored),
		zap.Int("auto_verified", counts.AutoVerified),
		zap.Int("manual_review", counts.ManualReview),
		zap.Int("no_match", counts.NoMatch),
		zap.Int("skipped", counts.Skipped),
	)
	return counts
}

func (p *Pipeline) matchOne(ctx context.Context, src model.SourceRecord, counts *model.BatchCounts) {
	log := zap.L().With(
		zap.Int64("source_id", src.ID),
		zap.String("athlete", src.FullName()),
	)

	candidates, err := p.discoverCandidates(ctx, src)
	if err != nil {
		log.Warn("pipeline: candidate discovery failed", zap.Error(err))
		counts.Skipped++
		counts.Errors++
		return
	}
	if len(candidates) == 0 {
		log.Debug("pipeline: no candidates found", zap.String("state", string(model.StateScored)))
		counts.NoMatch++
		return
	}

	best, bestScore := p.pickBest(src, candidates)
	counts.Scored++

	if bestScore.Total == 0 || !best.Linkable() {
		counts.NoMatch++
		return
	}

	candID, err := p.upsertRetry(ctx, func(ctx context.Context) (int64, error) {
		return p.store.UpsertCandidate(ctx, best)
	})
	if err != nil {
		log.Warn("pipeline: candidate upsert failed", zap.Error(err))
		counts.Skipped++
		counts.Errors++
		return
	}

	status := match.Decide(bestScore.Total, p.cfg.Match)
	link := buildLink(src.ID, candID, bestScore, status)
	if _, err := p.upsertRetry(ctx, func(ctx context.Context) (int64, error) {
		return p.store.UpsertLink(ctx, link)
	}); err != nil {
		log.Warn("pipeline: link upsert failed", zap.Error(err))
		counts.Skipped++
		counts.Errors++
		return
	}

	log.Info("pipeline: source matched",
		zap.String("state", string(model.StatePersisted)),
		zap.String("candidate", best.Name),
		zap.Int("score", bestScore.Total),
		zap.String("status", string(status)),
	)
	switch status {
	case model.StatusAutoVerified:
		counts.AutoVerified++
	case model.StatusManualReview:
		counts.ManualReview++
	default:
		counts.NoMatch++
	}
}

// discoverCandidates searches the swim site for the source athlete's name
// and parses up to maxCandidates profile pages.
func (p *Pipeline) discoverCandidates(ctx context.Context, src model.SourceRecord) ([]model.CandidateRecord, error) {
	searchURL := fmt.Sprintf(p.searchURL, url.QueryEscape(src.FullName()))
	res, err := p.fetcher.Fetch(ctx, searchURL)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: search %q", src.FullName())
	}

	profileURLs, err := extract.ParseSearchResults(res.Body, searchURL)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: parse search results for %q", src.FullName())
	}
	if len(profileURLs) > p.maxCandidates {
		profileURLs = profileURLs[:p.maxCandidates]
	}

	side := p.extractSide()
	var candidates []model.CandidateRecord
	for _, profileURL := range profileURLs {
		pres, err := p.fetcher.Fetch(ctx, profileURL)
		if err != nil {
			zap.L().Debug("pipeline: profile fetch failed",
				zap.String("url", profileURL),
				zap.Error(err),
			)
			continue
		}
		cand, err := extract.ParseProfile(pres.Body, profileURL, side)
		if err != nil {
			zap.L().Debug("pipeline: profile parse failed",
				zap.String("url", profileURL),
				zap.Error(err),
			)
			continue
		}
		cand.ScrapedAt = time.Now().UTC()
		candidates = append(candidates, cand)
	}
	return candidates, nil
}

// pickBest scores every candidate and keeps the highest total. Ties keep the
// earliest candidate, preserving the search result ordering.
func (p *Pipeline) pickBest(src model.SourceRecord, candidates []model.CandidateRecord) (model.CandidateRecord, match.Score) {
	best := candidates[0]
	bestScore := p.scorer.Score(src, best)
	for _, cand := range candidates[1:] {
		if score := p.scorer.Score(src, cand); score.Total > bestScore.Total {
			best, bestScore = cand, score
		}
	}
	return best, bestScore
}

func buildLink(sourceID, candID int64, score match.Score, status model.VerificationStatus) model.MatchLink {
	link := model.MatchLink{
		SourceID:    sourceID,
		CandidateID: candID,
		Score:       score.Total,
		NameRatio:   score.NameRatio,
		MatchedOn:   score.MatchedOn(),
		Rationale:   score.Rationale,
		Status:      status,
		MatchedAt:   time.Now().UTC(),
	}
	for _, c := range score.Components {
		switch c.Field {
		case match.FieldHometown:
			link.HometownBonus = c.Points
		case match.FieldBirthYear:
			link.BirthYearBonus = c.Points
		case match.FieldAffiliation:
			link.AffiliationBonus = c.Points
		}
	}
	return link
}
