// Package render turns a filtered incident set into what the dashboard
// draws: a GeoJSON choropleth, monthly trend series, a PNG chart and a PDF
// report. Every function here is deterministic for a given input.
package render

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/zalepa/crimemap/crime"
	"github.com/zalepa/crimemap/geo"
	"github.com/zalepa/crimemap/loader"
)

// Metric selects what the choropleth colors by.
type Metric string

const (
	MetricCount Metric = "count"
	MetricRate  Metric = "rate"
)

// ParseMetric accepts "count" or "rate"; empty means count.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(MetricCount):
		return MetricCount, nil
	case string(MetricRate):
		return MetricRate, nil
	}
	return "", fmt.Errorf("unknown metric %q (want count or rate)", s)
}

// Ramp is the 7-class YlOrRd sequential palette, light to dark.
var Ramp = []string{"#ffffb2", "#fed976", "#feb24c", "#fd8d3c", "#fc4e2a", "#e31a1c", "#b10026"}

// NoDataColor fills areas whose value is unknown.
const NoDataColor = "#cccccc"

// RatePer is the population base rates are expressed against.
const RatePer = 1000

// LatLng is a map position in the order Leaflet expects.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// LegendClass is one color bucket of the choropleth, covering [Min, Max].
type LegendClass struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Color string  `json:"color"`
}

// MapView is the payload behind the map panel.
type MapView struct {
	Municipality   string                     `json:"municipality"`
	Metric         Metric                     `json:"metric"`
	PopulationYear string                     `json:"population_year,omitempty"`
	Center         LatLng                     `json:"center"`
	Zoom           float64                    `json:"zoom"`
	Total          int                        `json:"total"`
	Unmatched      int                        `json:"unmatched"`
	Areas          *geojson.FeatureCollection `json:"areas"`
	Points         *geojson.FeatureCollection `json:"points"`
	Truncated      bool                       `json:"truncated"`
	Legend         []LegendClass              `json:"legend"`
}

type area struct {
	key        crime.AreaKey
	name       string
	geometry   orb.MultiPolygon
	count      int
	population float64
	hasPop     bool
}

// Map builds the choropleth for b from an already filtered incident set.
// Boundaries sharing a neighborhood name are drawn as one feature. At most
// maxPoints located incidents are included as a point layer.
func Map(b *loader.Bundle, incidents []crime.Incident, metric Metric, maxPoints int) *MapView {
	v := &MapView{
		Municipality:   b.Name,
		Metric:         metric,
		PopulationYear: b.PopulationYear,
		Zoom:           b.Zoom,
		Total:          len(incidents),
		Areas:          geojson.NewFeatureCollection(),
		Points:         geojson.NewFeatureCollection(),
	}
	if ext, ok := geo.Extent(b.Boundaries); ok {
		c := ext.Center()
		v.Center = LatLng{Lat: c.Lat(), Lng: c.Lon()}
	}

	areas := mergeAreas(b)
	byKey := make(map[crime.AreaKey]*area, len(areas))
	for _, a := range areas {
		byKey[a.key] = a
	}
	for _, inc := range incidents {
		if a, ok := byKey[inc.Area()]; ok {
			a.count++
		} else {
			v.Unmatched++
		}
	}

	values := make([]float64, len(areas))
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, a := range areas {
		values[i] = areaValue(a, metric)
		if math.IsNaN(values[i]) {
			continue
		}
		lo = math.Min(lo, values[i])
		hi = math.Max(hi, values[i])
	}
	v.Legend = legend(lo, hi)

	for i, a := range areas {
		f := geojson.NewFeature(a.geometry)
		f.Properties["municipality"] = a.key.Municipality
		f.Properties["neighborhood"] = a.name
		f.Properties["count"] = a.count
		f.Properties["population"] = nil
		f.Properties["rate"] = nil
		if a.hasPop {
			f.Properties["population"] = a.population
			if r := rate(a.count, a.population); !math.IsNaN(r) {
				f.Properties["rate"] = r
			}
		}
		if math.IsNaN(values[i]) {
			f.Properties["value"] = nil
			f.Properties["fill"] = NoDataColor
		} else {
			f.Properties["value"] = values[i]
			f.Properties["fill"] = fill(values[i], lo, hi)
		}
		v.Areas.Append(f)
	}

	for _, inc := range incidents {
		if maxPoints <= 0 {
			break
		}
		if !inc.HasLocation {
			continue
		}
		if len(v.Points.Features) >= maxPoints {
			v.Truncated = true
			break
		}
		f := geojson.NewFeature(inc.Location)
		f.Properties["municipality"] = inc.Municipality
		f.Properties["date"] = inc.Date.Format("2006-01-02")
		f.Properties["crime"] = inc.Crime
		f.Properties["category"] = inc.Category
		f.Properties["neighborhood"] = inc.Neighborhood
		v.Points.Append(f)
	}
	return v
}

// mergeAreas groups b's boundaries by area key, sorted by municipality then
// neighborhood name.
func mergeAreas(b *loader.Bundle) []*area {
	var out []*area
	index := make(map[crime.AreaKey]*area)
	for _, bd := range b.Boundaries {
		if bd.Name == "" {
			continue
		}
		key := crime.NewAreaKey(bd.Municipality, bd.Name)
		a, ok := index[key]
		if !ok {
			a = &area{key: key, name: bd.Name}
			a.population, a.hasPop = b.Population[key]
			index[key] = a
			out = append(out, a)
		}
		a.geometry = append(a.geometry, bd.Geometry...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].key.Municipality != out[j].key.Municipality {
			return out[i].key.Municipality < out[j].key.Municipality
		}
		return out[i].key.Neighborhood < out[j].key.Neighborhood
	})
	return out
}

func areaValue(a *area, metric Metric) float64 {
	if metric == MetricRate {
		if !a.hasPop {
			return math.NaN()
		}
		return rate(a.count, a.population)
	}
	return float64(a.count)
}

// rate is incidents per RatePer residents, rounded to two decimals. An
// unknown or zero population has no rate.
func rate(count int, population float64) float64 {
	if population <= 0 {
		return math.NaN()
	}
	return math.Round(float64(count)/population*RatePer*100) / 100
}

// class picks the ramp bucket for v on an equal-interval scale over
// [lo, hi]. A flat scale uses the lightest color.
func class(v, lo, hi float64) int {
	if hi <= lo {
		return 0
	}
	i := int((v - lo) / (hi - lo) * float64(len(Ramp)))
	if i >= len(Ramp) {
		i = len(Ramp) - 1
	}
	if i < 0 {
		i = 0
	}
	return i
}

func fill(v, lo, hi float64) string {
	return Ramp[class(v, lo, hi)]
}

func legend(lo, hi float64) []LegendClass {
	out := make([]LegendClass, 0, len(Ramp))
	if math.IsInf(lo, 1) {
		return out
	}
	if hi <= lo {
		return append(out, LegendClass{Min: lo, Max: hi, Color: Ramp[0]})
	}
	step := (hi - lo) / float64(len(Ramp))
	for i, c := range Ramp {
		out = append(out, LegendClass{
			Min:   lo + step*float64(i),
			Max:   lo + step*float64(i+1),
			Color: c,
		})
	}
	out[len(out)-1].Max = hi
	return out
}
