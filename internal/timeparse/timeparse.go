// Package timeparse normalizes free-text performance marks into canonical
// decimal seconds. Both scraped ecosystems annotate marks with wind
// readings, course indicators, and superscripts; parsing extracts the
// longest time-like substring and discards the rest.
package timeparse

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrNoTime is returned when the input contains no recognizable time value.
// Callers must treat it as absence of a mark, never as zero seconds.
var ErrNoTime = eris.New("timeparse: no time value found")

// DualSide selects which half of a dual-format mark ("A / B") is canonical.
// Swim standards publish short-course and long-course marks side by side and
// the two ecosystems disagree on which comes first, so the selection is an
// explicit policy rather than a default.
type DualSide int

const (
	DualFirst DualSide = iota
	DualSecond
)

const dualSeparator = " / "

// SideFromString maps a configuration value ("first" or "second") to a
// DualSide. Anything unrecognized selects the first side.
func SideFromString(s string) DualSide {
	if s == "second" {
		return DualSecond
	}
	return DualFirst
}

// hmsRe before msRe: a 3-part match must win over its own 2-part suffix.
var (
	hmsRe     = regexp.MustCompile(`\d+:\d{2}:\d{2}(?:\.\d+)?`)
	msRe      = regexp.MustCompile(`\d+:\d{2}(?:\.\d+)?`)
	decimalRe = regexp.MustCompile(`\d+(?:\.\d+)?`)
)

// ParseSeconds converts a raw mark to canonical seconds, quantized to two
// decimal places. Accepted shapes are "H:MM:SS", "M:SS", "SS.ss", and the
// dual form "A / B" where side picks the canonical half. Trailing
// annotations (wind, altitude markers) are stripped by extracting the
// longest time-like substring.
func ParseSeconds(text string, side DualSide) (float64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, ErrNoTime
	}

	if strings.Contains(text, dualSeparator) {
		parts := strings.SplitN(text, dualSeparator, 2)
		if side == DualSecond {
			text = strings.TrimSpace(parts[1])
		} else {
			text = strings.TrimSpace(parts[0])
		}
		if text == "" {
			return 0, ErrNoTime
		}
	}

	mark := extractMark(text)
	if mark == "" {
		return 0, ErrNoTime
	}

	secs, err := toSeconds(mark)
	if err != nil {
		return 0, err
	}
	return quantize(secs), nil
}

// extractMark returns the first time-like substring, preferring the most
// specific pattern so "1:48.23w" yields "1:48.23" and not "48".
func extractMark(text string) string {
	if m := hmsRe.FindString(text); m != "" {
		return m
	}
	if m := msRe.FindString(text); m != "" {
		return m
	}
	return decimalRe.FindString(text)
}

func toSeconds(mark string) (float64, error) {
	parts := strings.Split(mark, ":")
	switch len(parts) {
	case 1:
		v, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return 0, eris.Wrapf(ErrNoTime, "timeparse: bad seconds %q", mark)
		}
		return v, nil
	case 2:
		mins, err := strconv.Atoi(parts[0])
		if err != nil {
			return 0, eris.Wrapf(ErrNoTime, "timeparse: bad minutes %q", mark)
		}
		secs, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return 0, eris.Wrapf(ErrNoTime, "timeparse: bad seconds %q", mark)
		}
		return float64(mins)*60 + secs, nil
	case 3:
		hours, err := strconv.Atoi(parts[0])
		if err != nil {
			return 0, eris.Wrapf(ErrNoTime, "timeparse: bad hours %q", mark)
		}
		mins, err := strconv.Atoi(parts[1])
		if err != nil {
			return 0, eris.Wrapf(ErrNoTime, "timeparse: bad minutes %q", mark)
		}
		secs, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return 0, eris.Wrapf(ErrNoTime, "timeparse: bad seconds %q", mark)
		}
		return float64(hours)*3600 + float64(mins)*60 + secs, nil
	default:
		return 0, eris.Wrapf(ErrNoTime, "timeparse: unrecognized mark %q", mark)
	}
}

func quantize(secs float64) float64 {
	return math.Round(secs*100) / 100
}

// FormatSeconds renders canonical seconds back into the conventional
// display form: "SS.ss" under a minute, "M:SS.ss" under an hour, and
// "H:MM:SS.ss" beyond. ParseSeconds(FormatSeconds(x)) == x.
func FormatSeconds(secs float64) string {
	secs = quantize(secs)
	if secs < 60 {
		return strconv.FormatFloat(secs, 'f', 2, 64)
	}
	if secs < 3600 {
		mins := int(secs) / 60
		rem := secs - float64(mins)*60
		return fmt.Sprintf("%d:%05.2f", mins, rem)
	}
	hours := int(secs) / 3600
	mins := (int(secs) % 3600) / 60
	rem := secs - float64(hours)*3600 - float64(mins)*60
	return fmt.Sprintf("%d:%02d:%05.2f", hours, mins, rem)
}
