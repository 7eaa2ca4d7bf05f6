package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// elevationRe captures the leading number of an elevation such as "1,465 ft.".
	elevationRe = regexp.MustCompile(`^\s*(-?[\d,]*\d(?:\.\d+)?)`)

	// completeYearsRe extracts N from labels like "Days with Rain for 25 Complete Years".
	completeYearsRe = regexp.MustCompile(`(?i)\s*for\s+(\d+)\s+complete\s+years?`)

	// parentheticalRe strips unit suffixes such as "(in.)" from statistic labels.
	parentheticalRe = regexp.MustCompile(`\s*\([^)]*\)`)
)

// ParseGaugeIDHistory splits a semicolon-delimited id history. The first
// segment is the current id; every later segment starts with a previous id
// followed by free text, of which only the leading token is kept.
func ParseGaugeIDHistory(s string) (current string, previous []string) {
	segments := strings.Split(s, ";")
	current = strings.TrimSpace(segments[0])
	previous = []string{}
	for _, seg := range segments[1:] {
		fields := strings.Fields(seg)
		if len(fields) == 0 {
			continue
		}
		previous = append(previous, fields[0])
	}
	return current, previous
}

// ParseElevation parses an elevation in feet, dropping thousands separators
// and any unit suffix.
func ParseElevation(s string) (float64, error) {
	m := elevationRe.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("elevation %q: no number", s)
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0, fmt.Errorf("elevation %q: %w", s, err)
	}
	return v, nil
}

// ParseCount parses an integer count. "None" means zero. ok is false when the
// text is neither, in which case the caller treats the count as zero.
func ParseCount(s string) (n int, ok bool) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "None") {
		return 0, true
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// CompleteYears extracts N from a label containing "for N Complete Years".
func CompleteYears(label string) (int, bool) {
	m := completeYearsRe.FindStringSubmatch(label)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// statKey normalizes a statistics label into a map key: the complete-years
// phrase and parenthesized units are removed.
func statKey(label string) string {
	key := completeYearsRe.ReplaceAllString(label, "")
	key = parentheticalRe.ReplaceAllString(key, "")
	return strings.Join(strings.Fields(key), " ")
}

var errBlank = errors.New("blank value")

// parseDepth parses a rainfall depth in inches.
func parseDepth(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errBlank
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("depth %q: %w", s, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("depth %q: negative", s)
	}
	return v, nil
}

// roundDepth trims float accumulation noise from running totals.
func roundDepth(v float64) float64 {
	const scale = 10000
	if v < 0 {
		return -roundDepth(-v)
	}
	return float64(int64(v*scale+0.5)) / scale
}
