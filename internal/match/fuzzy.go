// Package match scores candidate identity links between track source
// records and swim candidate profiles, and maps scores to verification
// decisions.
package match

import (
	"math"
	"sort"
	"strings"

	"github.com/agext/levenshtein"
)

// TokenSetRatio computes an order-insensitive, case-insensitive similarity
// between two strings in [0, 100]. The strings are split into unique
// lowercase tokens; the ratio is the best pairwise Levenshtein similarity
// between the joined intersection and each side's full token set. Symmetric
// by construction.
func TokenSetRatio(a, b string) int {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	var inter, onlyA, onlyB []string
	seen := make(map[string]bool, len(tb))
	for _, t := range tb {
		seen[t] = true
	}
	for _, t := range ta {
		if seen[t] {
			inter = append(inter, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	interSet := make(map[string]bool, len(inter))
	for _, t := range inter {
		interSet[t] = true
	}
	for _, t := range tb {
		if !interSet[t] {
			onlyB = append(onlyB, t)
		}
	}

	base := strings.Join(inter, " ")
	full1 := strings.TrimSpace(base + " " + strings.Join(onlyA, " "))
	full2 := strings.TrimSpace(base + " " + strings.Join(onlyB, " "))

	best := similarity(full1, full2)
	if base != "" {
		if s := similarity(base, full1); s > best {
			best = s
		}
		if s := similarity(base, full2); s > best {
			best = s
		}
	}
	return int(math.Round(best * 100))
}

func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	return levenshtein.Similarity(a, b, nil)
}

// tokenSet lowercases, strips edge punctuation, dedupes, and sorts tokens.
func tokenSet(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?()[]{}\"'")
		if f != "" {
			set[f] = true
		}
	}
	tokens := make([]string, 0, len(set))
	for t := range set {
		tokens = append(tokens, t)
	}
	sort.Strings(tokens)
	return tokens
}
