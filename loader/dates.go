package loader

import (
	"strings"
	"time"

	"github.com/zalepa/crimemap/crime"
)

// parseDate parses the date part of a timestamp such as
// "01/05/2021 13:00 - 01/05/2021 14:00" or "2023-01-01T05:00:00Z".
func parseDate(s string, layouts []string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, " T"); i > 0 {
		s = s[:i]
	}
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return crime.Day(t), true
		}
	}
	return time.Time{}, false
}

// parseDayMonthYear joins a "MM/DD" field and a year field. An empty
// day-month means the first of January, as the Somerville export leaves it
// blank when only the year is known.
func parseDayMonthYear(dayMonth, year string) (time.Time, bool) {
	dayMonth = strings.TrimSpace(dayMonth)
	if dayMonth == "" {
		dayMonth = "01/01"
	}
	year = strings.TrimSuffix(strings.TrimSpace(year), ".0")
	if year == "" {
		return time.Time{}, false
	}
	return parseDate(dayMonth+"/"+year, []string{"01/02/2006", "1/2/2006"})
}
