package render

import (
	"sort"

	"github.com/zalepa/crimemap/crime"
)

// OtherGroup collects the groups that fall outside the top N.
const OtherGroup = "Other"

// SeriesLine is one named monthly series.
type SeriesLine struct {
	Name   string `json:"name"`
	Counts []int  `json:"counts"`
	Total  int    `json:"total"`
}

// Trend is a set of monthly series sharing one continuous month axis.
type Trend struct {
	Months []string     `json:"months"`
	Lines  []SeriesLine `json:"lines"`
	// Total sums every line per month.
	Total []int `json:"total"`
}

// Series builds monthly counts grouped by group. The top groups by overall
// count are kept (ties broken by name) and the rest are summed into Other.
// top <= 0 keeps every group.
func Series(incidents []crime.Incident, group crime.GroupBy, top int) Trend {
	months, series := crime.Monthly(incidents, group)
	t := Trend{
		Months: months,
		Lines:  make([]SeriesLine, 0, len(series)),
		Total:  make([]int, len(months)),
	}
	if t.Months == nil {
		t.Months = []string{}
	}

	for name, counts := range series {
		l := SeriesLine{Name: name, Counts: counts}
		for i, c := range counts {
			l.Total += c
			t.Total[i] += c
		}
		t.Lines = append(t.Lines, l)
	}
	sort.Slice(t.Lines, func(i, j int) bool {
		if t.Lines[i].Total != t.Lines[j].Total {
			return t.Lines[i].Total > t.Lines[j].Total
		}
		return t.Lines[i].Name < t.Lines[j].Name
	})

	if top <= 0 || len(t.Lines) <= top {
		return t
	}

	rest := SeriesLine{Name: OtherGroup, Counts: make([]int, len(months))}
	for _, l := range t.Lines[top:] {
		for i, c := range l.Counts {
			rest.Counts[i] += c
		}
		rest.Total += l.Total
	}
	kept := t.Lines[:top:top]
	for i := range kept {
		if kept[i].Name == OtherGroup {
			merged := make([]int, len(months))
			for j := range merged {
				merged[j] = kept[i].Counts[j] + rest.Counts[j]
			}
			kept[i].Counts = merged
			kept[i].Total += rest.Total
			t.Lines = kept
			return t
		}
	}
	t.Lines = append(kept, rest)
	return t
}
