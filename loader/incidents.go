package loader

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/zalepa/crimemap/config"
	"github.com/zalepa/crimemap/crime"
	"github.com/zalepa/crimemap/geo"
)

// Report summarises one dataset load.
type Report struct {
	Municipality string `json:"municipality"`
	Path         string `json:"path"`
	Rows         int    `json:"rows"`
	Loaded       int    `json:"loaded"`
	// Malformed rows failed CSV parsing; Undated rows had no parseable date.
	// Both are skipped.
	Malformed int `json:"malformed"`
	Undated   int `json:"undated"`
	// Unlocated incidents were kept but matched no neighborhood.
	Unlocated int `json:"unlocated"`
}

// Skipped is the number of rows dropped from the dataset.
func (r Report) Skipped() int { return r.Malformed + r.Undated }

// Joins are the lookups incidents without a neighborhood column are placed
// with. Either may be nil.
type Joins struct {
	// Blocks maps a census block GEOID to a neighborhood name.
	Blocks map[string]string
	// Index locates incidents that carry coordinates.
	Index *geo.Index
}

// LoadIncidents reads the incident CSV at path using m's column layout.
func LoadIncidents(path string, m config.Municipality, j Joins) ([]crime.Incident, Report, error) {
	rep := Report{Municipality: m.Name, Path: path}
	src := m.Crime

	t, err := openTable(path)
	if err != nil {
		return nil, rep, err
	}
	defer t.Close()

	dateCols := []string{src.DateColumn}
	if src.DateColumn == "" {
		dateCols = []string{src.DayMonthColumn, src.YearColumn}
	}
	required := append(dateCols, src.CrimeColumn, src.NeighborhoodColumn, src.DistrictColumn,
		src.BlockColumn, src.LatitudeColumn, src.LongitudeColumn)
	if err := t.require(required...); err != nil {
		return nil, rep, err
	}

	macros := newLookup(m.Macros)
	aliases := newLookup(m.NeighborhoodAliases)
	title := cases.Title(language.English)
	layouts := src.Layouts()

	var out []crime.Incident
	for {
		rec, err := t.next()
		if err == io.EOF {
			break
		}
		rep.Rows++
		if errors.Is(err, errMalformed) {
			rep.Malformed++
			continue
		}
		if err != nil {
			return nil, rep, fmt.Errorf("%s: %w", path, err)
		}

		inc := crime.Incident{Municipality: m.Name}

		var ok bool
		if src.DateColumn != "" {
			inc.Date, ok = parseDate(rec.get(src.DateColumn), layouts)
		} else {
			inc.Date, ok = parseDayMonthYear(rec.get(src.DayMonthColumn), rec.get(src.YearColumn))
		}
		if !ok {
			rep.Undated++
			continue
		}

		inc.Crime = rec.get(src.CrimeColumn)
		if src.TitleCase {
			inc.Crime = title.String(strings.ToLower(inc.Crime))
		}
		inc.Category = crime.OtherCategory
		if c, ok := macros.get(inc.Crime); ok && c != "" {
			inc.Category = c
		}
		inc.District = rec.get(src.DistrictColumn)

		if src.LatitudeColumn != "" {
			inc.Location, inc.HasLocation = parseLocation(rec.get(src.LatitudeColumn), rec.get(src.LongitudeColumn))
		}

		if n := rec.get(src.NeighborhoodColumn); n != "" {
			inc.Neighborhood = aliases.resolve(n)
		}
		if inc.Neighborhood == "" && src.BlockColumn != "" && j.Blocks != nil {
			inc.Neighborhood = j.Blocks[normalizeBlock(rec.get(src.BlockColumn))]
		}
		if inc.Neighborhood == "" && inc.HasLocation && j.Index != nil {
			inc.Neighborhood, _ = j.Index.Locate(inc.Location)
		}
		if inc.Neighborhood == "" {
			rep.Unlocated++
		}

		out = append(out, inc)
	}
	rep.Loaded = len(out)
	return out, rep, nil
}

func parseLocation(lat, lon string) (orb.Point, bool) {
	la, err1 := strconv.ParseFloat(lat, 64)
	lo, err2 := strconv.ParseFloat(lon, 64)
	if err1 != nil || err2 != nil {
		return orb.Point{}, false
	}
	// Exports use 0,0 or -1,-1 for "not geocoded".
	if la < -90 || la > 90 || lo < -180 || lo > 180 || (la == 0 && lo == 0) || (la == -1 && lo == -1) {
		return orb.Point{}, false
	}
	return orb.Point{lo, la}, true
}

// normalizeBlock undoes the float formatting some exports apply to GEOIDs.
func normalizeBlock(s string) string {
	return strings.TrimSuffix(strings.TrimSpace(s), ".0")
}

// lookup is a name table matched exactly first and case-insensitively second.
type lookup struct {
	exact map[string]string
	fold  map[string]string
}

func newLookup(m map[string]string) lookup {
	l := lookup{exact: m, fold: make(map[string]string, len(m))}
	for k, v := range m {
		l.fold[crime.NormalizeName(k)] = v
	}
	return l
}

func (l lookup) get(k string) (string, bool) {
	if v, ok := l.exact[k]; ok {
		return v, true
	}
	v, ok := l.fold[crime.NormalizeName(k)]
	return v, ok
}

// resolve returns the mapped name, or k itself when unmapped.
func (l lookup) resolve(k string) string {
	if v, ok := l.get(k); ok && v != "" {
		return v
	}
	return k
}
