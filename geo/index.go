package geo

import (
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
)

// Boundary is one neighborhood polygon of a municipality, in WGS84.
type Boundary struct {
	Municipality string
	Name         string
	Geometry     orb.MultiPolygon
	Bound        orb.Bound
}

// NewBoundary computes the bounding box once.
func NewBoundary(municipality, name string, g orb.MultiPolygon) Boundary {
	return Boundary{Municipality: municipality, Name: name, Geometry: g, Bound: g.Bound()}
}

// Extent is the union of the boundaries' bounding boxes.
func Extent(bs []Boundary) (orb.Bound, bool) {
	if len(bs) == 0 {
		return orb.Bound{}, false
	}
	b := bs[0].Bound
	for _, x := range bs[1:] {
		b = b.Union(x.Bound)
	}
	return b, true
}

// Index answers which boundary contains a point. Lookups are linear with a
// bounding-box prefilter, which is plenty for a few dozen neighborhoods.
type Index struct {
	boundaries []Boundary
}

// NewIndex indexes bs. When boundaries overlap, the earlier one wins.
func NewIndex(bs []Boundary) *Index {
	return &Index{boundaries: bs}
}

// Locate returns the name of the first boundary containing p.
func (ix *Index) Locate(p orb.Point) (string, bool) {
	for _, b := range ix.boundaries {
		if !b.Bound.Contains(p) {
			continue
		}
		if planar.MultiPolygonContains(b.Geometry, p) {
			return b.Name, true
		}
	}
	return "", false
}

// LocateGeometry assigns a polygon to a boundary by its centroid. Concave
// shapes can have a centroid outside themselves, so the ring vertices are
// tried after it.
func (ix *Index) LocateGeometry(g orb.MultiPolygon) (string, bool) {
	if len(g) == 0 {
		return "", false
	}
	c, _ := planar.CentroidArea(g)
	if name, ok := ix.Locate(c); ok {
		return name, true
	}
	for _, poly := range g {
		for _, pt := range poly[0] {
			if name, ok := ix.Locate(pt); ok {
				return name, true
			}
		}
	}
	return "", false
}

// AreaWeighted splits total across the named geometries in proportion to
// their geodesic area. Geometries sharing a name are summed. If the total area
// is zero every name receives the full total.
func AreaWeighted(names []string, geoms []orb.MultiPolygon, total float64) map[string]float64 {
	out := make(map[string]float64, len(names))
	areas := make([]float64, len(geoms))
	var sum float64
	for i, g := range geoms {
		areas[i] = math.Abs(orbgeo.Area(g))
		sum += areas[i]
	}
	for i, name := range names {
		if name == "" {
			continue
		}
		if sum == 0 {
			out[name] = total
			continue
		}
		out[name] += areas[i] / sum * total
	}
	return out
}
