package match

import (
	"fmt"
	"math"
	"strings"

	"github.com/usat-research/talentid-cli/internal/config"
	"github.com/usat-research/talentid-cli/internal/model"
)

// Field names reported in score components and matched-on sets.
const (
	FieldName        = "name"
	FieldHometown    = "hometown"
	FieldBirthYear   = "birth_year"
	FieldAffiliation = "affiliation"
)

// Component is one scoring contribution that fired.
type Component struct {
	Field  string // name/hometown/birth_year/affiliation
	Detail string // e.g. "ratio", "exact", "fuzzy", "off_by_one"
	Points int
}

// Score is the full, explainable result of comparing one source record with
// one candidate.
type Score struct {
	Total      int
	NameRatio  int
	Components []Component
	Rationale  string
}

// MatchedOn lists the fields that contributed points, in component order.
func (s Score) MatchedOn() []string {
	var fields []string
	seen := make(map[string]bool, len(s.Components))
	for _, c := range s.Components {
		if c.Points > 0 && !seen[c.Field] {
			fields = append(fields, c.Field)
			seen[c.Field] = true
		}
	}
	return fields
}

// Scorer computes similarity scores under a fixed configuration.
type Scorer struct {
	cfg config.MatchConfig
}

// NewScorer creates a Scorer. The configuration is validated at startup by
// config.Load; the zero MatchConfig is not usable.
func NewScorer(cfg config.MatchConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score compares a source record against a candidate and returns the total
// score with a byte-stable rationale. The name ratio gates everything: below
// the reject threshold the result is zero and no bonus is evaluated. Bonus
// fields contribute only when both sides carry a value. The total is the
// weighted name ratio plus bonuses, floored to an integer and clipped to 100.
func (s *Scorer) Score(src model.SourceRecord, cand model.CandidateRecord) Score {
	cfg := s.cfg

	nameRatio := TokenSetRatio(src.FullName(), cand.Name)

	if nameRatio < cfg.RejectThreshold {
		return Score{
			Total:     0,
			NameRatio: nameRatio,
			Rationale: fmt.Sprintf("Name ratio %d below %d: no match.", nameRatio, cfg.RejectThreshold),
		}
	}

	components := []Component{{
		Field:  FieldName,
		Detail: "ratio",
		Points: nameRatio,
	}}
	parts := []string{fmt.Sprintf("name_ratio=%d", nameRatio)}

	if src.Hometown != "" && cand.Hometown != "" {
		switch {
		case strings.EqualFold(src.Hometown, cand.Hometown):
			components = append(components, Component{FieldHometown, "exact", cfg.HometownExactBonus})
			parts = append(parts, fmt.Sprintf("hometown_exact_bonus=%d", cfg.HometownExactBonus))
		case TokenSetRatio(src.Hometown, cand.Hometown) >= cfg.FuzzyThreshold:
			components = append(components, Component{FieldHometown, "fuzzy", cfg.HometownFuzzyBonus})
			parts = append(parts, fmt.Sprintf("hometown_fuzzy_bonus=%d", cfg.HometownFuzzyBonus))
		}
	}

	if src.BirthYear != nil && cand.BirthYear != nil {
		switch diff := abs(*src.BirthYear - *cand.BirthYear); diff {
		case 0:
			components = append(components, Component{FieldBirthYear, "exact", cfg.BirthYearExactBonus})
			parts = append(parts, fmt.Sprintf("birth_year_exact_bonus=%d", cfg.BirthYearExactBonus))
		case 1:
			components = append(components, Component{FieldBirthYear, "off_by_one", cfg.BirthYearOffByOneBonus})
			parts = append(parts, fmt.Sprintf("birth_year_off_by_one_bonus=%d", cfg.BirthYearOffByOneBonus))
		}
	}

	if src.Affiliation != "" && cand.Affiliation != "" {
		if TokenSetRatio(src.Affiliation, cand.Affiliation) >= cfg.FuzzyThreshold {
			components = append(components, Component{FieldAffiliation, "fuzzy", cfg.AffiliationFuzzyBonus})
			parts = append(parts, fmt.Sprintf("affiliation_fuzzy_bonus=%d", cfg.AffiliationFuzzyBonus))
		}
	}

	total := math.Floor(float64(nameRatio) * cfg.NameWeight)
	for _, c := range components[1:] {
		total += float64(c.Points)
	}
	// The weighted formula can exceed 100 when every bonus fires; the stored
	// score is capped to keep the 0-100 contract.
	clipped := int(total)
	if clipped > 100 {
		clipped = 100
	}

	parts = append(parts, fmt.Sprintf("total_score=%d", clipped))

	return Score{
		Total:      clipped,
		NameRatio:  nameRatio,
		Components: components,
		Rationale:  strings.Join(parts, "; "),
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
