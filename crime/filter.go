package crime

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidSelection is returned for selections that can never match, such
// as a start date after the end date.
var ErrInvalidSelection = errors.New("invalid selection")

// Selection is the user's current choice of municipality, date range and
// categories. Zero values mean "no constraint".
type Selection struct {
	Municipality string
	Start        time.Time
	End          time.Time
	Categories   []string
	Crimes       []string
}

// Validate reports whether the selection is usable.
func (s Selection) Validate() error {
	if !s.Start.IsZero() && !s.End.IsZero() && Day(s.Start).After(Day(s.End)) {
		return fmt.Errorf("%w: start %s is after end %s", ErrInvalidSelection,
			s.Start.Format(time.DateOnly), s.End.Format(time.DateOnly))
	}
	return nil
}

// Matches reports whether inc satisfies every constraint of the selection.
// Date bounds are inclusive and compared at day precision.
func (s Selection) Matches(inc Incident) bool {
	if s.Municipality != "" && !strings.EqualFold(inc.Municipality, s.Municipality) {
		return false
	}
	if !s.Start.IsZero() && inc.Date.Before(Day(s.Start)) {
		return false
	}
	if !s.End.IsZero() && inc.Date.After(Day(s.End)) {
		return false
	}
	if len(s.Categories) > 0 && !containsFold(s.Categories, inc.Category) {
		return false
	}
	if len(s.Crimes) > 0 && !containsFold(s.Crimes, inc.Crime) {
		return false
	}
	return true
}

// Filter returns the incidents matching sel in their original order. The
// result is never nil so that an empty selection renders as an empty map.
func Filter(incidents []Incident, sel Selection) []Incident {
	out := make([]Incident, 0)
	for _, inc := range incidents {
		if sel.Matches(inc) {
			out = append(out, inc)
		}
	}
	return out
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// Describe summarises the date range and categories, for chart and report
// subtitles.
func (s Selection) Describe() string {
	var parts []string
	switch {
	case !s.Start.IsZero() && !s.End.IsZero():
		parts = append(parts, s.Start.Format(time.DateOnly)+" to "+s.End.Format(time.DateOnly))
	case !s.Start.IsZero():
		parts = append(parts, "from "+s.Start.Format(time.DateOnly))
	case !s.End.IsZero():
		parts = append(parts, "until "+s.End.Format(time.DateOnly))
	default:
		parts = append(parts, "all dates")
	}
	if len(s.Categories) > 0 {
		parts = append(parts, strings.Join(s.Categories, ", "))
	}
	if len(s.Crimes) > 0 {
		parts = append(parts, strings.Join(s.Crimes, ", "))
	}
	return strings.Join(parts, " | ")
}
