package match

import (
	"github.com/usat-research/talentid-cli/internal/config"
	"github.com/usat-research/talentid-cli/internal/model"
)

// Decide maps a total score to a verification status using the configured
// thresholds. The mapping is monotonic: a higher score never yields a less
// verified status.
func Decide(score int, cfg config.MatchConfig) model.VerificationStatus {
	switch {
	case score >= cfg.AutoVerifyThreshold:
		return model.StatusAutoVerified
	case score >= cfg.ManualReviewThreshold:
		return model.StatusManualReview
	default:
		return model.StatusNoMatch
	}
}
