package model

import "time"

// VerificationStatus tracks how a match link was (or should be) confirmed.
type VerificationStatus string

const (
	StatusPending      VerificationStatus = "pending"
	StatusAutoVerified VerificationStatus = "auto_verified"
	StatusManualReview VerificationStatus = "manual_review"
	StatusNoMatch      VerificationStatus = "no_match"
	// Reviewer-assigned terminal statuses. The pipeline never sets these and
	// never overwrites them once a human has.
	StatusVerified VerificationStatus = "verified"
	StatusRejected VerificationStatus = "rejected"
)

// HumanAssigned reports whether the status came from a reviewer rather than
// the decision policy.
func (s VerificationStatus) HumanAssigned() bool {
	return s == StatusVerified || s == StatusRejected
}

// MatchLink records a scored pairing of one source record with one candidate.
// Uniqueness is on (SourceID, CandidateID); re-scoring overwrites the score,
// component, and rationale fields but must preserve reviewer annotations.
type MatchLink struct {
	ID          int64 `json:"id"`
	SourceID    int64 `json:"source_id"`
	CandidateID int64 `json:"candidate_id"`

	Score            int      `json:"score"` // 0-100
	NameRatio        int      `json:"name_ratio"`
	HometownBonus    int      `json:"hometown_bonus"`
	BirthYearBonus   int      `json:"birth_year_bonus"`
	AffiliationBonus int      `json:"affiliation_bonus"`
	MatchedOn        []string `json:"matched_on,omitempty"`
	Rationale        string   `json:"rationale"`

	Status VerificationStatus `json:"verification_status"`

	ReviewerNotes string     `json:"reviewer_notes,omitempty"`
	ReviewedBy    string     `json:"reviewed_by,omitempty"`
	ReviewedAt    *time.Time `json:"reviewed_at,omitempty"`

	MatchedAt time.Time `json:"matched_at"`
}
