package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usat-research/talentid-cli/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedPair(t *testing.T, s *SQLiteStore) (sourceID, candidateID int64) {
	t.Helper()
	ctx := context.Background()

	sourceID, err := s.UpsertSource(ctx, model.SourceRecord{
		FirstName:       "john",
		LastName:        "smith",
		Affiliation:     "Oregon",
		EventKey:        "5000m",
		PerformanceTime: 825.12,
		Year:            2025,
		Gender:          model.GenderMale,
	})
	require.NoError(t, err)

	birth := 2006
	candidateID, err = s.UpsertCandidate(ctx, model.CandidateRecord{
		ExternalID: "123456",
		Name:       "john smith",
		Hometown:   "Eugene, OR",
		BirthYear:  &birth,
		BestTimes:  map[string]float64{"200_Free_LCM": 112.40},
		SourceURL:  "https://www.swimcloud.com/swimmer/123456/",
	})
	require.NoError(t, err)
	return sourceID, candidateID
}

func TestSQLiteUpsertSourceIdempotent(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	rec := model.SourceRecord{
		FirstName: "jane", LastName: "doe", EventKey: "1500m",
		PerformanceTime: 247.33, Year: 2025,
	}
	id1, err := s.UpsertSource(ctx, rec)
	require.NoError(t, err)

	rec.PerformanceTime = 246.01
	rec.Affiliation = "Stanford"
	id2, err := s.UpsertSource(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, id1, id2, "same natural key must hit the same row")

	sources, err := s.ListSources(ctx, "1500m", 10)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.InDelta(t, 246.01, sources[0].PerformanceTime, 0.001)
	assert.Equal(t, "Stanford", sources[0].Affiliation)
}

func TestSQLiteLinkRoundTrip(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	sourceID, candidateID := seedPair(t, s)

	linkID, err := s.UpsertLink(ctx, model.MatchLink{
		SourceID:    sourceID,
		CandidateID: candidateID,
		Score:       95,
		NameRatio:   100,
		MatchedOn:   []string{"name", "hometown"},
		Rationale:   "name_ratio=100; total_score=95",
		Status:      model.StatusAutoVerified,
	})
	require.NoError(t, err)

	details, err := s.ListLinks(ctx, LinkFilter{Status: model.StatusAutoVerified})
	require.NoError(t, err)
	require.Len(t, details, 1)

	d := details[0]
	assert.Equal(t, linkID, d.Link.ID)
	assert.Equal(t, 95, d.Link.Score)
	assert.Equal(t, []string{"name", "hometown"}, d.Link.MatchedOn)
	assert.Equal(t, "john", d.Source.FirstName)
	assert.Equal(t, "5000m", d.Source.EventKey)
	assert.Equal(t, "123456", d.Candidate.ExternalID)
	assert.InDelta(t, 112.40, d.Candidate.BestTimes["200_Free_LCM"], 0.001)
	require.NotNil(t, d.Candidate.BirthYear)
	assert.Equal(t, 2006, *d.Candidate.BirthYear)
}

func TestSQLiteUpsertLinkPreservesReview(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	sourceID, candidateID := seedPair(t, s)

	link := model.MatchLink{
		SourceID: sourceID, CandidateID: candidateID,
		Score: 80, NameRatio: 85, Status: model.StatusManualReview,
	}
	linkID, err := s.UpsertLink(ctx, link)
	require.NoError(t, err)

	require.NoError(t, s.SetLinkReview(ctx, linkID, model.StatusVerified, "confirmed by coach", "coach"))

	// Re-scoring the same pair must not clobber the reviewer's verdict.
	link.Score = 75
	link.Status = model.StatusManualReview
	linkID2, err := s.UpsertLink(ctx, link)
	require.NoError(t, err)
	assert.Equal(t, linkID, linkID2)

	details, err := s.ListLinks(ctx, LinkFilter{})
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, model.StatusVerified, details[0].Link.Status)
	assert.Equal(t, "confirmed by coach", details[0].Link.ReviewerNotes)
	assert.Equal(t, "coach", details[0].Link.ReviewedBy)
	assert.NotNil(t, details[0].Link.ReviewedAt)
	assert.Equal(t, 75, details[0].Link.Score, "score fields still refresh")
}

func TestSQLiteUnmatchedSources(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	sourceID, candidateID := seedPair(t, s)

	loneID, err := s.UpsertSource(ctx, model.SourceRecord{
		FirstName: "mary", LastName: "major", EventKey: "1500m",
		PerformanceTime: 247.33, Year: 2025,
	})
	require.NoError(t, err)

	_, err = s.UpsertLink(ctx, model.MatchLink{
		SourceID: sourceID, CandidateID: candidateID, Score: 90, Status: model.StatusAutoVerified,
	})
	require.NoError(t, err)

	unmatched, err := s.UnmatchedSources(ctx, 10)
	require.NoError(t, err)
	require.Len(t, unmatched, 1)
	assert.Equal(t, loneID, unmatched[0].ID)
}

func TestSQLiteBenchmarks(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	ladder := []model.BenchmarkStandard{
		{Gender: model.GenderMale, EventKey: "5000m", Tier: "Development Potential", CutoffSeconds: 900, DisplayRank: 4},
		{Gender: model.GenderMale, EventKey: "5000m", Tier: "World Leading", CutoffSeconds: 780, ColorCode: "#FFD700", DisplayRank: 1},
		{Gender: model.GenderFemale, EventKey: "5000m", Tier: "World Leading", CutoffSeconds: 870, DisplayRank: 1},
	}
	require.NoError(t, s.ReplaceBenchmarks(ctx, ladder))

	got, err := s.GetBenchmarks(ctx, model.GenderMale, "", "5000m")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "World Leading", got[0].Tier, "ladder comes back in display order")
	assert.Equal(t, "#FFD700", got[0].ColorCode)

	// A reload replaces everything.
	require.NoError(t, s.ReplaceBenchmarks(ctx, ladder[:1]))
	got, err = s.GetBenchmarks(ctx, model.GenderMale, "", "5000m")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSQLitePageCache(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	now := time.Now().UTC()

	page := CachedPage{
		URL:        "https://example.com/results",
		Body:       "<html>...</html>",
		Title:      "Results",
		StatusCode: 200,
		Strategy:   "direct_http",
		FetchedAt:  now,
		ExpiresAt:  now.Add(time.Hour),
	}
	require.NoError(t, s.SetCachedPage(ctx, page))

	got, err := s.GetCachedPage(ctx, page.URL)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Results", got.Title)

	// Expired entries read as misses and are reclaimable.
	page.ExpiresAt = now.Add(-time.Minute)
	require.NoError(t, s.SetCachedPage(ctx, page))

	got, err = s.GetCachedPage(ctx, page.URL)
	require.NoError(t, err)
	assert.Nil(t, got)

	n, err := s.DeleteExpiredPages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
