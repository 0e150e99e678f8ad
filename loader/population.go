package loader

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/xuri/excelize/v2"

	"github.com/zalepa/crimemap/config"
	"github.com/zalepa/crimemap/crime"
	"github.com/zalepa/crimemap/geo"
)

// loadPopulation resolves the municipality's population source into
// per-neighborhood figures. No source yields an empty map; rates are then
// left out of the map.
func loadPopulation(cfg *config.Config, m config.Municipality, boundaries []geo.Boundary) (map[crime.AreaKey]float64, error) {
	aliases := newLookup(m.NeighborhoodAliases)
	out := make(map[crime.AreaKey]float64)
	p := m.Population

	switch {
	case len(p.Table) > 0:
		for name, v := range p.Table {
			out[crime.NewAreaKey(m.Name, aliases.resolve(name))] += v
		}
	case p.Workbook != nil:
		vals, err := ReadWorkbook(cfg.Resolve(p.Workbook.Path), *p.Workbook)
		if err != nil {
			return nil, err
		}
		for name, v := range vals {
			out[crime.NewAreaKey(m.Name, aliases.resolve(name))] += v
		}
	case p.Total > 0:
		names := make([]string, len(boundaries))
		geoms := make([]orb.MultiPolygon, len(boundaries))
		for i, b := range boundaries {
			names[i] = b.Name
			geoms[i] = b.Geometry
		}
		for name, v := range geo.AreaWeighted(names, geoms, p.Total) {
			out[crime.NewAreaKey(m.Name, name)] += v
		}
	}
	return out, nil
}

// ReadWorkbook reads label/value pairs from a spreadsheet. Labels come from
// the first column; values from the column whose header (at wb.HeaderRow)
// equals wb.ValueColumn. Rows between wb.First and wb.Last inclusive are
// read; rows whose value is not a number are skipped.
func ReadWorkbook(path string, wb config.Workbook) (map[string]float64, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := wb.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("%s: workbook has no sheets", path)
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%s: read sheet %q: %w", path, sheet, err)
	}
	if wb.HeaderRow >= len(rows) {
		return nil, fmt.Errorf("%s: header row %d beyond %d rows", path, wb.HeaderRow, len(rows))
	}

	col := -1
	for i, h := range rows[wb.HeaderRow] {
		if strings.TrimSpace(h) == wb.ValueColumn {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, &MissingColumnError{Path: path, Column: wb.ValueColumn}
	}

	out := make(map[string]float64)
	inRange := wb.First == ""
	for _, r := range rows[wb.HeaderRow+1:] {
		if len(r) == 0 {
			continue
		}
		label := strings.TrimSpace(r[0])
		if !inRange && label == wb.First {
			inRange = true
		}
		if !inRange {
			continue
		}
		if col < len(r) {
			if v, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(r[col]), ",", ""), 64); err == nil && label != "" {
				out[label] = v
			}
		}
		if wb.Last != "" && label == wb.Last {
			break
		}
	}
	if !inRange {
		return nil, fmt.Errorf("%s: row %q not found", path, wb.First)
	}
	return out, nil
}
