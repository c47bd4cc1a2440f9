package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usat-research/talentid-cli/internal/model"
)

// Men's 200 free long course ladder, most-elite first.
func mens200Free() []model.BenchmarkStandard {
	return []model.BenchmarkStandard{
		{Gender: model.GenderMale, AgeGroup: "Senior", EventKey: "200_Free_LCM", Tier: "World Leading", CutoffSeconds: 109.50, DisplayRank: 1},
		{Gender: model.GenderMale, AgeGroup: "Senior", EventKey: "200_Free_LCM", Tier: "Internationally Ranked", CutoffSeconds: 113.00, DisplayRank: 2},
		{Gender: model.GenderMale, AgeGroup: "Senior", EventKey: "200_Free_LCM", Tier: "Nationally Competitive", CutoffSeconds: 116.50, DisplayRank: 3},
		{Gender: model.GenderMale, AgeGroup: "Senior", EventKey: "200_Free_LCM", Tier: "Development Potential", CutoffSeconds: 120.00, DisplayRank: 4},
	}
}

func TestClassify_MostEliteTierMet(t *testing.T) {
	// 110.00 misses World Leading (109.50) but meets Internationally
	// Ranked (113.00).
	result, ok := Classify(mens200Free(), 110.00)
	require.True(t, ok)
	assert.Equal(t, "Internationally Ranked", result.Tier)
	assert.Equal(t, 113.00, result.Cutoff)
	assert.InDelta(t, -3.00, result.Differential, 0.001)
}

func TestClassify_TopTier(t *testing.T) {
	result, ok := Classify(mens200Free(), 108.00)
	require.True(t, ok)
	assert.Equal(t, "World Leading", result.Tier)
	assert.InDelta(t, -1.50, result.Differential, 0.001)
}

func TestClassify_ExactCutoff(t *testing.T) {
	result, ok := Classify(mens200Free(), 109.50)
	require.True(t, ok)
	assert.Equal(t, "World Leading", result.Tier)
	assert.InDelta(t, 0.0, result.Differential, 0.001)
}

func TestClassify_Unclassified(t *testing.T) {
	// Slower than every cutoff: unclassified, not the slowest tier.
	result, ok := Classify(mens200Free(), 125.00)
	assert.False(t, ok)
	assert.Nil(t, result)
}

func TestClassify_UnsortedInput(t *testing.T) {
	ladder := mens200Free()
	ladder[0], ladder[3] = ladder[3], ladder[0]

	result, ok := Classify(ladder, 108.00)
	require.True(t, ok)
	assert.Equal(t, "World Leading", result.Tier)
}

func TestClassify_EmptyLadder(t *testing.T) {
	_, ok := Classify(nil, 110.00)
	assert.False(t, ok)
}

func TestClassify_NonPositiveTime(t *testing.T) {
	_, ok := Classify(mens200Free(), 0)
	assert.False(t, ok)
}
