package loader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/zalepa/crimemap/config"
	"github.com/zalepa/crimemap/geo/geotest"
)

// writeTestFile writes content to dir/name, creating parent directories.
func writeTestFile(t *testing.T, dir, name, content string) {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func csvLines(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

// testConfig lays out small Cambridge, Boston and Somerville datasets under
// a temporary data directory, shaped like the real exports.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	// Cambridge: neighborhood column, population table.
	writeTestFile(t, dir, "cambridge/crime.csv", csvLines(
		"\ufeffCrime Date Time,Crime,Neighborhood,Reporting Area",
		"01/05/2021 13:00 - 01/05/2021 14:00,Larceny from Building,Mid-Cambridge,601",
		"02/11/2021 09:00,Simple Assault,Riverside,702",
		"03/02/2021,Larceny from Building,MID-CAMBRIDGE,603",
		",Larceny from Building,Riverside,702",
		"04/01/2021,Trespassing",
	))
	geotest.WriteShapefile(t, filepath.Join(dir, "cambridge"), "neighborhoods", []string{"NAME"}, []geotest.Polygon{
		{Ring: geotest.Square(-71.12, 42.37, 0.01), Attrs: map[string]string{"NAME": "MID-CAMBRIDGE"}},
		{Ring: geotest.Square(-71.11, 42.37, 0.01), Attrs: map[string]string{"NAME": "Riverside"}},
	}, "")

	// Boston: title-cased crimes, workbook population.
	writeTestFile(t, dir, "boston/crime.csv", csvLines(
		"From Date,Crime,Neighborhood,BPD District",
		"2019-06-01 10:00:00,LARCENY SHOPLIFTING,Back Bay,D4",
		"2019-06-15,VANDALISM,Back Bay,D4",
	))
	geotest.WriteShapefile(t, filepath.Join(dir, "boston"), "neighborhoods", []string{"blockgr202"}, []geotest.Polygon{
		{Ring: geotest.Square(-71.09, 42.34, 0.02), Attrs: map[string]string{"blockgr202": "Back Bay"}},
	}, "")
	writeWorkbook(t, filepath.Join(dir, "boston", "profiles.xlsx"), [][]any{
		{"Boston Neighborhood Profiles"},
		{"Source: ACS"},
		{"Neighborhood", "Total Households", "Total Population"},
		{"Allston", 8000, 19261},
		{"Back Bay", 9000, 18190},
		{"West Roxbury", 12000, 33526},
		{"Boston", 280000, 684379},
	})

	// Somerville: split date columns, block codes joined through census
	// blocks, area-weighted population.
	writeTestFile(t, dir, "somerville/crime.csv", csvLines(
		"Day and Month Reported,Year Reported,Offense Type,Block Code",
		"01/15,2022,SHOPLIFTING,250173501001000.0",
		",2022.0,burglary,250173502002000",
		"02/30,2022,SHOPLIFTING,250173501001000",
		"03/01,,SHOPLIFTING,250173501001000",
		"04/01,2022,SHOPLIFTING,999999999999999",
	))
	geotest.WriteShapefile(t, filepath.Join(dir, "somerville"), "neighborhoods", []string{"NBHD"}, []geotest.Polygon{
		{Ring: geotest.Square(-71.10, 42.38, 0.01), Attrs: map[string]string{"NBHD": "Spring Hill"}},
		{Ring: geotest.Square(-71.09, 42.38, 0.01), Attrs: map[string]string{"NBHD": "Union Square"}},
	}, "")
	if err := os.MkdirAll(filepath.Join(dir, "massachusetts"), 0755); err != nil {
		t.Fatal(err)
	}
	geotest.WriteShapefile(t, filepath.Join(dir, "massachusetts"), "blocks", []string{"GEOID20", "TOWN"}, []geotest.Polygon{
		{Ring: geotest.Square(-71.098, 42.382, 0.002), Attrs: map[string]string{"GEOID20": "250173501001000", "TOWN": "SOMERVILLE"}},
		{Ring: geotest.Square(-71.088, 42.382, 0.002), Attrs: map[string]string{"GEOID20": "250173502002000", "TOWN": "Somerville"}},
		{Ring: geotest.Square(-71.098, 42.385, 0.002), Attrs: map[string]string{"GEOID20": "250173999999999", "TOWN": "CAMBRIDGE"}},
	}, "")

	cfg := config.DefaultConfig()
	cfg.DataDir = dir
	cfg.Municipalities = []config.Municipality{
		{
			Name:           "Cambridge",
			Zoom:           13,
			PopulationYear: "2020",
			Crime: config.CrimeSource{
				Path:               "cambridge/crime.csv",
				DateColumn:         "Crime Date Time",
				CrimeColumn:        "Crime",
				NeighborhoodColumn: "Neighborhood",
				DistrictColumn:     "Reporting Area",
			},
			Boundary: config.BoundarySource{Path: "cambridge/neighborhoods.shp", NameField: "NAME"},
			Population: config.Population{
				Table: map[string]float64{"Mid-Cambridge": 13000, "Riverside": 11000},
			},
			Macros: map[string]string{
				"Larceny from Building": "Property",
				"Simple Assault":        "Violent",
			},
			NeighborhoodAliases: map[string]string{"MID-CAMBRIDGE": "Mid-Cambridge"},
		},
		{
			Name:           "Boston",
			Zoom:           12,
			PopulationYear: "2019",
			Crime: config.CrimeSource{
				Path:               "boston/crime.csv",
				DateColumn:         "From Date",
				CrimeColumn:        "Crime",
				TitleCase:          true,
				NeighborhoodColumn: "Neighborhood",
				DistrictColumn:     "BPD District",
			},
			Boundary: config.BoundarySource{Path: "boston/neighborhoods.shp", NameField: "blockgr202"},
			Population: config.Population{
				Workbook: &config.Workbook{
					Path:        "boston/profiles.xlsx",
					HeaderRow:   2,
					ValueColumn: "Total Population",
					First:       "Allston",
					Last:        "West Roxbury",
				},
			},
			Macros: map[string]string{"Larceny Shoplifting": "Property"},
		},
		{
			Name:           "Somerville",
			Zoom:           13,
			PopulationYear: "2022 (area-weighted)",
			Crime: config.CrimeSource{
				Path:           "somerville/crime.csv",
				DayMonthColumn: "Day and Month Reported",
				YearColumn:     "Year Reported",
				CrimeColumn:    "Offense Type",
				TitleCase:      true,
				BlockColumn:    "Block Code",
			},
			Boundary: config.BoundarySource{Path: "somerville/neighborhoods.shp", NameField: "NBHD"},
			Blocks: &config.BlockSource{
				Path:       "massachusetts/blocks.shp",
				GeoIDField: "GEOID20",
				TownField:  "TOWN",
				Town:       "SOMERVILLE",
			},
			Population: config.Population{Total: 10000},
			Macros:     map[string]string{"SHOPLIFTING": "Property"},
		},
	}
	return cfg
}

func writeWorkbook(t *testing.T, path string, rows [][]any) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
}

func municipality(t *testing.T, cfg *config.Config, name string) config.Municipality {
	t.Helper()
	for _, m := range cfg.Municipalities {
		if m.Name == name {
			return m
		}
	}
	t.Fatalf("no municipality %q", name)
	return config.Municipality{}
}
