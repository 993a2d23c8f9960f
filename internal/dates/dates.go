// Package dates extracts publication dates from unstructured text.
//
// Extraction runs two ordered strategies: a locale-tolerant parse of the
// whole string, then a regex for year/month/day groups separated by
// "-", ".", "/" or the CJK markers 年/月. Each strategy is independently
// testable and absence is an expected outcome, not an error.
package dates

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

var ymdPattern = regexp.MustCompile(`(19\d{2}|20\d{2})[-./年](\d{1,2})[-./月](\d{1,2})`)

// Extract returns the first date found in text, or ok=false when the text
// carries no recognizable date. It never panics.
func Extract(text string) (time.Time, bool) {
	s := strings.TrimSpace(text)
	if s == "" {
		return time.Time{}, false
	}
	if t, ok := parseLoose(s); ok {
		return t, true
	}
	m := ymdPattern.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	return makeDate(year, month, day)
}

// parseLoose runs the general-purpose parser over the whole string.
func parseLoose(s string) (t time.Time, ok bool) {
	// dateparse panics on some pathological inputs; treat those as no-date.
	defer func() {
		if recover() != nil {
			t, ok = time.Time{}, false
		}
	}()
	parsed, err := dateparse.ParseAny(s)
	if err != nil {
		return time.Time{}, false
	}
	return midnight(parsed), true
}

// makeDate validates that the matched numbers form a real calendar date.
func makeDate(year, month, day int) (time.Time, bool) {
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
