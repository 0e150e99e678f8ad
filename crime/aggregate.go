package crime

import (
	"sort"
	"time"
)

// MonthLayout formats the month keys used by Monthly.
const MonthLayout = "2006-01"

// CountByArea counts incidents per neighborhood.
func CountByArea(incidents []Incident) map[AreaKey]int {
	counts := make(map[AreaKey]int)
	for _, inc := range incidents {
		counts[inc.Area()]++
	}
	return counts
}

// GroupBy selects the series an incident is counted under in Monthly.
type GroupBy func(Incident) string

// ByCategory groups incidents by macro category.
func ByCategory(inc Incident) string { return inc.Category }

// ByNeighborhood groups incidents by neighborhood name, prefixed with the
// municipality so metro-wide series stay distinct.
func ByNeighborhood(inc Incident) string {
	if inc.Neighborhood == "" {
		return inc.Municipality + " / (unknown)"
	}
	return inc.Municipality + " / " + inc.Neighborhood
}

// Total puts every incident in a single series.
func Total(Incident) string { return "Total" }

// Monthly counts incidents per calendar month and group. The returned months
// are continuous from the earliest to the latest incident, and every series
// has one value per month (zero where nothing was reported).
func Monthly(incidents []Incident, group GroupBy) ([]string, map[string][]int) {
	series := make(map[string][]int)
	first, last, ok := DateBounds(incidents)
	if !ok {
		return nil, series
	}

	var months []string
	index := make(map[string]int)
	for m := monthStart(first); !m.After(last); m = m.AddDate(0, 1, 0) {
		key := m.Format(MonthLayout)
		index[key] = len(months)
		months = append(months, key)
	}

	for _, inc := range incidents {
		name := group(inc)
		vals, ok := series[name]
		if !ok {
			vals = make([]int, len(months))
			series[name] = vals
		}
		vals[index[inc.Date.Format(MonthLayout)]]++
	}
	return months, series
}

// DateBounds returns the earliest and latest incident dates.
func DateBounds(incidents []Incident) (first, last time.Time, ok bool) {
	for i, inc := range incidents {
		if i == 0 || inc.Date.Before(first) {
			first = inc.Date
		}
		if i == 0 || inc.Date.After(last) {
			last = inc.Date
		}
	}
	return first, last, len(incidents) > 0
}

// Categories returns the sorted distinct macro categories.
func Categories(incidents []Incident) []string {
	return distinct(incidents, func(inc Incident) string { return inc.Category })
}

// Crimes returns the sorted distinct raw crime descriptions.
func Crimes(incidents []Incident) []string {
	return distinct(incidents, func(inc Incident) string { return inc.Crime })
}

func distinct(incidents []Incident, field func(Incident) string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, inc := range incidents {
		v := field(inc)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
