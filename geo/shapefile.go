// Package geo reads municipal boundary shapefiles into WGS84 geometry and
// answers the point-in-polygon and area questions the loader needs.
package geo

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Feature is one polygon record of a shapefile with its DBF attributes.
type Feature struct {
	Attributes map[string]string
	Geometry   orb.MultiPolygon
}

// MissingFieldError reports a required DBF attribute that is not present.
type MissingFieldError struct {
	Path  string
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s: missing required field %q", e.Path, e.Field)
}

// ReadShapefile reads every polygon in path, reprojecting to WGS84 using the
// sibling .prj file when one exists. Records that are not polygons are
// skipped. Every name in required must be a DBF field.
func ReadShapefile(path string, required ...string) ([]Feature, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open shapefile: %w", err)
	}
	proj, err := readProjection(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	r, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open shapefile: %w", err)
	}
	defer r.Close()

	fields := r.Fields()
	names := make([]string, len(fields))
	present := make(map[string]bool, len(fields))
	for i, f := range fields {
		names[i] = strings.TrimRight(f.String(), "\x00 ")
		present[names[i]] = true
	}
	for _, req := range required {
		if !present[req] {
			return nil, &MissingFieldError{Path: path, Field: req}
		}
	}

	var out []Feature
	for r.Next() {
		n, shape := r.Shape()
		parts, points, ok := polygonParts(shape)
		if !ok {
			continue
		}
		attrs := make(map[string]string, len(names))
		for i, name := range names {
			attrs[name] = strings.Trim(r.ReadAttribute(n, i), " \x00")
		}
		out = append(out, Feature{
			Attributes: attrs,
			Geometry:   assemble(parts, points, proj),
		})
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("read shapefile %s: %w", path, err)
	}
	return out, nil
}

func readProjection(path string) (Projection, error) {
	base := strings.TrimSuffix(path, ".shp")
	base = strings.TrimSuffix(base, ".SHP")
	for _, ext := range []string{".prj", ".PRJ"} {
		data, err := os.ReadFile(base + ext)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return ParsePRJ(string(data))
	}
	return Geographic{}, nil
}

func polygonParts(s shp.Shape) ([]int32, []shp.Point, bool) {
	switch p := s.(type) {
	case *shp.Polygon:
		return p.Parts, p.Points, true
	case *shp.PolygonZ:
		return p.Parts, p.Points, true
	case *shp.PolygonM:
		return p.Parts, p.Points, true
	}
	return nil, nil, false
}

// assemble turns shapefile parts into polygons. Clockwise rings are outer
// rings; a counter-clockwise ring inside the current outer ring is a hole,
// anything else starts a new polygon.
func assemble(parts []int32, points []shp.Point, proj Projection) orb.MultiPolygon {
	var mp orb.MultiPolygon
	for i := range parts {
		start := int(parts[i])
		end := len(points)
		if i+1 < len(parts) {
			end = int(parts[i+1])
		}
		if start >= end || end > len(points) {
			continue
		}
		ring := make(orb.Ring, 0, end-start)
		for _, pt := range points[start:end] {
			ring = append(ring, proj.ToWGS84(orb.Point{pt.X, pt.Y}))
		}
		if len(ring) < 4 {
			continue
		}
		if !ring.Closed() {
			ring = append(ring, ring[0])
		}

		last := len(mp) - 1
		if ring.Orientation() == orb.CCW && last >= 0 && planar.RingContains(mp[last][0], ring[0]) {
			mp[last] = append(mp[last], reverse(ring))
			continue
		}
		if ring.Orientation() == orb.CW {
			ring = reverse(ring)
		}
		mp = append(mp, orb.Polygon{ring})
	}
	return mp
}

// reverse flips ring orientation. GeoJSON (RFC 7946) wants counter-clockwise
// outer rings and clockwise holes, the opposite of shapefiles.
func reverse(r orb.Ring) orb.Ring {
	out := make(orb.Ring, len(r))
	for i := range r {
		out[len(r)-1-i] = r[i]
	}
	return out
}
