package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usat-research/talentid-cli/internal/config"
	"github.com/usat-research/talentid-cli/internal/model"
)

func testMatchConfig() config.MatchConfig {
	return config.MatchConfig{
		NameWeight:             0.9,
		RejectThreshold:        75,
		FuzzyThreshold:         80,
		HometownExactBonus:     20,
		HometownFuzzyBonus:     10,
		BirthYearExactBonus:    15,
		BirthYearOffByOneBonus: 5,
		AffiliationFuzzyBonus:  10,
		AutoVerifyThreshold:    90,
		ManualReviewThreshold:  70,
	}
}

func intPtr(n int) *int { return &n }

func TestTokenSetRatio(t *testing.T) {
	assert.Equal(t, 100, TokenSetRatio("jane doe", "Jane Doe"))
	assert.Equal(t, 100, TokenSetRatio("doe jane", "jane doe"))
	assert.Equal(t, 0, TokenSetRatio("", "jane doe"))
	assert.Equal(t, 0, TokenSetRatio("jane doe", ""))

	// Symmetric.
	assert.Equal(t,
		TokenSetRatio("jane m doe", "jane doe"),
		TokenSetRatio("jane doe", "jane m doe"))

	// Superset of tokens scores high: the intersection covers one side.
	assert.GreaterOrEqual(t, TokenSetRatio("jane doe", "jane marie doe"), 90)

	// Unrelated names score low.
	assert.Less(t, TokenSetRatio("jane doe", "robert smith"), 50)
}

func TestScorer_ExactIdentity(t *testing.T) {
	s := NewScorer(testMatchConfig())

	src := model.SourceRecord{
		FirstName:   "jane",
		LastName:    "doe",
		Hometown:    "Boulder, CO",
		BirthYear:   intPtr(2003),
		Affiliation: "Stanford University",
	}
	cand := model.CandidateRecord{
		Name:        "Jane Doe",
		Hometown:    "Boulder, CO",
		BirthYear:   intPtr(2003),
		Affiliation: "Stanford University",
	}

	got := s.Score(src, cand)
	assert.Equal(t, 100, got.NameRatio)
	// 0.9*100 + 20 + 15 + 10 = 135, clipped to 100.
	assert.Equal(t, 100, got.Total)
	assert.Equal(t,
		[]string{FieldName, FieldHometown, FieldBirthYear, FieldAffiliation},
		got.MatchedOn())
	assert.Equal(t,
		"name_ratio=100; hometown_exact_bonus=20; birth_year_exact_bonus=15; affiliation_fuzzy_bonus=10; total_score=100",
		got.Rationale)
}

func TestScorer_RejectShortCircuits(t *testing.T) {
	s := NewScorer(testMatchConfig())

	// Completely different name, but every bonus field would match.
	src := model.SourceRecord{
		FirstName:   "jane",
		LastName:    "doe",
		Hometown:    "Boulder, CO",
		BirthYear:   intPtr(2003),
		Affiliation: "Stanford University",
	}
	cand := model.CandidateRecord{
		Name:        "Robert Smith",
		Hometown:    "Boulder, CO",
		BirthYear:   intPtr(2003),
		Affiliation: "Stanford University",
	}

	got := s.Score(src, cand)
	require.Less(t, got.NameRatio, 75)
	assert.Equal(t, 0, got.Total)
	assert.Empty(t, got.Components)
	assert.Empty(t, got.MatchedOn())
	assert.Contains(t, got.Rationale, "below 75: no match")
}

func TestScorer_NameOnly(t *testing.T) {
	s := NewScorer(testMatchConfig())

	src := model.SourceRecord{FirstName: "jane", LastName: "doe"}
	cand := model.CandidateRecord{Name: "Jane Doe"}

	got := s.Score(src, cand)
	// 0.9 * 100, floored.
	assert.Equal(t, 90, got.Total)
	assert.Equal(t, []string{FieldName}, got.MatchedOn())
}

func TestScorer_BirthYearOffByOne(t *testing.T) {
	s := NewScorer(testMatchConfig())

	src := model.SourceRecord{FirstName: "jane", LastName: "doe", BirthYear: intPtr(2003)}
	cand := model.CandidateRecord{Name: "Jane Doe", BirthYear: intPtr(2004)}

	got := s.Score(src, cand)
	assert.Equal(t, 95, got.Total) // 90 + 5
	assert.Contains(t, got.Rationale, "birth_year_off_by_one_bonus=5")
}

func TestScorer_MissingBonusFieldsIgnored(t *testing.T) {
	s := NewScorer(testMatchConfig())

	// Source has hometown, candidate does not: no bonus either way.
	src := model.SourceRecord{FirstName: "jane", LastName: "doe", Hometown: "Boulder, CO"}
	cand := model.CandidateRecord{Name: "Jane Doe"}

	got := s.Score(src, cand)
	assert.Equal(t, 90, got.Total)
	assert.NotContains(t, got.Rationale, "hometown")
}

func TestScorer_Reproducible(t *testing.T) {
	s := NewScorer(testMatchConfig())

	src := model.SourceRecord{
		FirstName: "jane", LastName: "doe",
		Hometown: "Boulder, CO", BirthYear: intPtr(2003), Affiliation: "Stanford",
	}
	cand := model.CandidateRecord{
		Name: "Jane Doe", Hometown: "Boulder CO", BirthYear: intPtr(2003), Affiliation: "Stanford",
	}

	first := s.Score(src, cand)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, s.Score(src, cand))
	}
}

func TestDecide(t *testing.T) {
	cfg := testMatchConfig()

	assert.Equal(t, model.StatusAutoVerified, Decide(100, cfg))
	assert.Equal(t, model.StatusAutoVerified, Decide(90, cfg))
	assert.Equal(t, model.StatusManualReview, Decide(89, cfg))
	assert.Equal(t, model.StatusManualReview, Decide(70, cfg))
	assert.Equal(t, model.StatusNoMatch, Decide(69, cfg))
	assert.Equal(t, model.StatusNoMatch, Decide(0, cfg))
}

func TestDecide_Monotonic(t *testing.T) {
	cfg := testMatchConfig()
	rank := map[model.VerificationStatus]int{
		model.StatusNoMatch:      0,
		model.StatusManualReview: 1,
		model.StatusAutoVerified: 2,
	}
	prev := rank[Decide(0, cfg)]
	for score := 1; score <= 100; score++ {
		cur := rank[Decide(score, cfg)]
		require.GreaterOrEqual(t, cur, prev, "score %d", score)
		prev = cur
	}
}
