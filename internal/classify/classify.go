// Package classify assigns athlete times to benchmark tiers.
package classify

import (
	"sort"

	"github.com/usat-research/talentid-cli/internal/model"
)

// Classify checks a canonical time against the benchmark ladder for one
// (gender, age group, event) and returns the most-elite tier whose cutoff
// the time meets or betters. Lower elapsed time is better, so a tier is met
// when time <= cutoff. A time slower than every cutoff returns (nil, false):
// out-of-range times stay unclassified rather than being shoved into the
// slowest tier, which would hide a likely data error.
//
// Standards may arrive in any order; they are sorted by DisplayRank
// ascending (most-elite first) before evaluation. Ties on DisplayRank fall
// back to cutoff ascending.
func Classify(standards []model.BenchmarkStandard, timeSeconds float64) (*model.ClassificationResult, bool) {
	if len(standards) == 0 || timeSeconds <= 0 {
		return nil, false
	}

	ladder := make([]model.BenchmarkStandard, len(standards))
	copy(ladder, standards)
	sort.SliceStable(ladder, func(i, j int) bool {
		if ladder[i].DisplayRank != ladder[j].DisplayRank {
			return ladder[i].DisplayRank < ladder[j].DisplayRank
		}
		return ladder[i].CutoffSeconds < ladder[j].CutoffSeconds
	})

	for _, std := range ladder {
		if timeSeconds <= std.CutoffSeconds {
			return &model.ClassificationResult{
				EventKey:     std.EventKey,
				AthleteTime:  timeSeconds,
				Tier:         std.Tier,
				ColorCode:    std.ColorCode,
				Cutoff:       std.CutoffSeconds,
				Differential: round2(timeSeconds - std.CutoffSeconds),
			}, true
		}
	}
	return nil, false
}

func round2(v float64) float64 {
	if v >= 0 {
		return float64(int(v*100+0.5)) / 100
	}
	return -float64(int(-v*100+0.5)) / 100
}
