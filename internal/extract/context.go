package extract

import (
	"regexp"
	"strings"

	"github.com/usat-research/talentid-cli/internal/model"
)

// EventUnknown is the sentinel event key assigned when no titled section
// could be resolved for a block of results. Rows carrying it are still
// extracted; downstream consumers decide whether to keep them.
const EventUnknown = "unknown"

// canonical distance-running event keys, keyed by the normalized forms seen
// in section titles.
var eventVocab = map[string]string{
	"800":                "800m",
	"800m":               "800m",
	"800 meters":         "800m",
	"mile":               "mile",
	"1 mile":             "mile",
	"one mile":           "mile",
	"1500":               "1500m",
	"1500m":              "1500m",
	"1500 meters":        "1500m",
	"3000":               "3000m",
	"3000m":              "3000m",
	"3000 meters":        "3000m",
	"3000 steeplechase":  "3000m_steeplechase",
	"3000m steeplechase": "3000m_steeplechase",
	"steeplechase":       "3000m_steeplechase",
	"5000":               "5000m",
	"5000m":              "5000m",
	"5000 meters":        "5000m",
	"5k":                 "5000m",
	"10000":              "10000m",
	"10000m":             "10000m",
	"10000 meters":       "10000m",
	"10k":                "10000m",
}

var parenRe = regexp.MustCompile(`\(([^)]*)\)`)

// parseSectionTitle maps a results-section heading such as
// "5000 Meters (Men)" onto a canonical event key and gender. Either part may
// come back as its zero value when the title does not carry it.
func parseSectionTitle(title string) (eventKey string, gender model.Gender) {
	lower := strings.ToLower(strings.TrimSpace(title))
	if lower == "" {
		return EventUnknown, model.GenderUnknown
	}

	gender = genderFromText(lower)

	// Strip parentheticals before matching the event vocabulary so
	// "(Men)" and venue suffixes do not defeat the lookup. Digit-grouping
	// commas go too: the site renders "10,000 Meters".
	stripped := strings.TrimSpace(parenRe.ReplaceAllString(lower, " "))
	stripped = strings.ReplaceAll(stripped, ",", "")
	stripped = strings.Join(strings.Fields(stripped), " ")

	if key, ok := eventVocab[stripped]; ok {
		return key, gender
	}
	// Fall back to the longest vocabulary phrase contained in the title.
	best := ""
	for phrase, key := range eventVocab {
		if strings.Contains(stripped, phrase) && len(phrase) > len(best) {
			best = phrase
			eventKey = key
		}
	}
	if eventKey == "" {
		return EventUnknown, gender
	}
	return eventKey, gender
}

func genderFromText(lower string) model.Gender {
	switch {
	case strings.Contains(lower, "women") || strings.Contains(lower, "girls") || strings.Contains(lower, "female"):
		return model.GenderFemale
	case strings.Contains(lower, "men") || strings.Contains(lower, "boys") || strings.Contains(lower, "male"):
		return model.GenderMale
	}
	return model.GenderUnknown
}

// NormalizeSwimEvent canonicalizes a swim event label such as
// "200 Free LCM" into the key form "200_Free_LCM" used by candidate best
// times and benchmark standards.
func NormalizeSwimEvent(label string) string {
	fields := strings.Fields(strings.TrimSpace(label))
	if len(fields) == 0 {
		return ""
	}
	return strings.Join(fields, "_")
}
