// Package geotest writes small polygon shapefiles for tests.
package geotest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
)

// Polygon is one record: a closed clockwise ring plus string attributes.
type Polygon struct {
	Ring  [][2]float64
	Attrs map[string]string
}

// Square returns a clockwise square ring with its lower-left corner at
// (x, y), in shapefile orientation.
func Square(x, y, size float64) [][2]float64 {
	return [][2]float64{
		{x, y}, {x, y + size}, {x + size, y + size}, {x + size, y}, {x, y},
	}
}

// WriteShapefile writes polys to dir/name.shp with one string field per name
// in fields, plus a .prj containing prj when it is not empty. It returns the
// .shp path.
func WriteShapefile(t testing.TB, dir, name string, fields []string, polys []Polygon, prj string) string {
	t.Helper()
	path := filepath.Join(dir, name+".shp")
	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		t.Fatalf("create shapefile: %v", err)
	}

	shpFields := make([]shp.Field, len(fields))
	for i, f := range fields {
		shpFields[i] = shp.StringField(f, 50)
	}
	w.SetFields(shpFields)

	for _, p := range polys {
		pts := make([]shp.Point, len(p.Ring))
		for i, c := range p.Ring {
			pts[i] = shp.Point{X: c[0], Y: c[1]}
		}
		poly := shp.Polygon(*shp.NewPolyLine([][]shp.Point{pts}))
		row := w.Write(&poly)
		for i, f := range fields {
			if err := w.WriteAttribute(int(row), i, p.Attrs[f]); err != nil {
				t.Fatalf("write attribute %s: %v", f, err)
			}
		}
	}
	w.Close()

	// go-shp v0.1.1 creates the attribute table as "<base>dbf", without the
	// dot its own reader looks for.
	base := strings.TrimSuffix(path, ".shp")
	if err := os.Rename(base+"dbf", base+".dbf"); err != nil {
		t.Fatalf("move dbf into place: %v", err)
	}
	checkFields(t, path, fields, len(polys))

	if prj != "" {
		prjPath := base + ".prj"
		if err := os.WriteFile(prjPath, []byte(prj), 0644); err != nil {
			t.Fatalf("write prj: %v", err)
		}
	}
	return path
}

// checkFields reopens the shapefile and fails the test unless every field
// and record reads back.
func checkFields(t testing.TB, path string, fields []string, records int) {
	t.Helper()
	r, err := shp.Open(path)
	if err != nil {
		t.Fatalf("reopen shapefile: %v", err)
	}
	defer r.Close()

	got := make(map[string]bool)
	for _, f := range r.Fields() {
		got[f.String()] = true
	}
	for _, f := range fields {
		if !got[f] {
			t.Fatalf("shapefile %s: field %q did not round-trip (have %v)", path, f, got)
		}
	}
	n := 0
	for r.Next() {
		n++
	}
	if n != records {
		t.Fatalf("shapefile %s: read %d records, wrote %d", path, n, records)
	}
}
