package model

import (
	"strings"

	"golang.org/x/text/cases"
)

var foldCaser = cases.Fold()

// NormalizeName case-folds a name fragment and collapses internal
// whitespace. Both scraped datasets pass through this at the extraction
// boundary so identity keys compare byte-for-byte.
func NormalizeName(s string) string {
	s = foldCaser.String(strings.TrimSpace(s))
	return strings.Join(strings.Fields(s), " ")
}

// SplitName breaks a display name into normalized (first, last) parts.
// "Last, First" order is honored when a comma is present; otherwise the
// first token is the first name and the remainder the last name.
func SplitName(name string) (first, last string) {
	name = strings.TrimSpace(name)
	if i := strings.Index(name, ","); i >= 0 {
		return NormalizeName(name[i+1:]), NormalizeName(name[:i])
	}
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "", ""
	}
	if len(fields) == 1 {
		return NormalizeName(fields[0]), ""
	}
	return NormalizeName(fields[0]), NormalizeName(strings.Join(fields[1:], " "))
}
