// Package crime holds the incident model, the filter selection applied to it
// and the aggregations the map and charts are drawn from.
package crime

import (
	"strings"
	"time"

	"github.com/paulmach/orb"
)

// OtherCategory is assigned to incidents whose crime has no macro category.
const OtherCategory = "Other"

// Incident is one reported crime. Values are immutable once loaded.
type Incident struct {
	Municipality string    `json:"municipality"`
	Date         time.Time `json:"date"`
	Crime        string    `json:"crime"`
	Category     string    `json:"category"`
	Neighborhood string    `json:"neighborhood,omitempty"`
	District     string    `json:"district,omitempty"`
	Location     orb.Point `json:"location"`
	HasLocation  bool      `json:"-"`
}

// AreaKey identifies a neighborhood within a municipality. Neighborhood is
// always normalized with NormalizeName.
type AreaKey struct {
	Municipality string
	Neighborhood string
}

// Area returns the incident's area key.
func (i Incident) Area() AreaKey {
	return NewAreaKey(i.Municipality, i.Neighborhood)
}

// NewAreaKey builds an AreaKey, normalizing the neighborhood name.
func NewAreaKey(municipality, neighborhood string) AreaKey {
	return AreaKey{Municipality: municipality, Neighborhood: NormalizeName(neighborhood)}
}

// NormalizeName upper-cases a neighborhood name and collapses runs of
// whitespace, so "Mid-Cambridge " and "MID-CAMBRIDGE" compare equal.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToUpper(name)), " ")
}

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
