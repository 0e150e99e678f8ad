package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zalepa/crimemap/config"
	"github.com/zalepa/crimemap/geo/geotest"
	"github.com/zalepa/crimemap/render"
)

// writeConfig lays out a one-city dataset and returns the config path.
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	data := filepath.Join(dir, "data")
	require.NoError(t, os.MkdirAll(data, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(data, "crime.csv"), []byte(strings.Join([]string{
		"Crime Date Time,Crime,Neighborhood",
		"01/05/2021 13:00,Larceny from Building,Mid-Cambridge",
		"02/11/2021 09:00,Simple Assault,Riverside",
		"03/02/2021,Larceny from Building,Riverside",
	}, "\n")+"\n"), 0644))
	geotest.WriteShapefile(t, data, "neighborhoods", []string{"NAME"}, []geotest.Polygon{
		{Ring: geotest.Square(-71.12, 42.37, 0.01), Attrs: map[string]string{"NAME": "Mid-Cambridge"}},
		{Ring: geotest.Square(-71.11, 42.37, 0.01), Attrs: map[string]string{"NAME": "Riverside"}},
	}, "")

	cfg := config.DefaultConfig()
	cfg.DataDir = data
	cfg.Municipalities = []config.Municipality{{
		Name: "Cambridge",
		Zoom: 13,
		Crime: config.CrimeSource{
			Path:               "crime.csv",
			DateColumn:         "Crime Date Time",
			CrimeColumn:        "Crime",
			NeighborhoodColumn: "Neighborhood",
		},
		Boundary:   config.BoundarySource{Path: "neighborhoods.shp", NameField: "NAME"},
		Population: config.Population{Table: map[string]float64{"Riverside": 10000}},
		Macros: map[string]string{
			"Larceny from Building": "Property",
			"Simple Assault":        "Violent",
		},
	}}
	path := filepath.Join(dir, "crimemap.yaml")
	require.NoError(t, cfg.Save(path))
	return path
}

// run executes the root command with args and returns what it printed.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	// Flag values survive between Execute calls.
	dataDir, verbose = "", false
	summarySel, exportSel = selectionFlags{}, selectionFlags{}
	summaryGroup, summaryTop, summaryPDF = "category", 0, ""
	exportMetric, exportOut, exportPoints = "count", "", false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestSummaryTable(t *testing.T) {
	out, err := run(t, "--config", writeConfig(t), "summary", "-m", "cambridge")
	require.NoError(t, err)
	assert.Contains(t, out, "Cambridge crime incidents by category")
	assert.Contains(t, out, "2021-01 to 2021-03 (3 months)")
	assert.Contains(t, out, "Property")
	assert.Contains(t, out, "Violent")
	assert.Contains(t, out, "Overall")
}

func TestSummaryTotalDrawsChart(t *testing.T) {
	out, err := run(t, "--config", writeConfig(t), "summary", "--group", "total", "--from", "2021-02-01")
	require.NoError(t, err)
	assert.Contains(t, out, "●")
	assert.Contains(t, out, "2021-02")
	assert.NotContains(t, out, "2021-01")
}

func TestSummaryPDF(t *testing.T) {
	pdf := filepath.Join(t.TempDir(), "report.pdf")
	out, err := run(t, "--config", writeConfig(t), "summary", "--pdf", pdf)
	require.NoError(t, err)
	// Summary, two neighborhoods, overall.
	assert.Contains(t, out, "(4 pages)")

	f, err := os.Open(pdf)
	require.NoError(t, err)
	defer f.Close()
	n, err := render.PageCount(f)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestSummaryRejectsBadFlags(t *testing.T) {
	path := writeConfig(t)
	tests := [][]string{
		{"summary", "--group", "weekday"},
		{"summary", "--top", "-1"},
		{"summary", "--from", "2021-13-01"},
		{"summary", "--from", "2021-03-01", "--to", "2021-01-01"},
		{"summary", "-m", "Gotham"},
	}
	for _, args := range tests {
		_, err := run(t, append([]string{"--config", path}, args...)...)
		assert.Error(t, err, strings.Join(args, " "))
	}
}

func TestCheck(t *testing.T) {
	out, err := run(t, "--config", writeConfig(t), "check")
	require.NoError(t, err)
	assert.Contains(t, out, "Cambridge")
	assert.Contains(t, out, "All Metro: 3 incidents, 2021-01-05 to 2021-03-02, 2 categories")
}

func TestExport(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "areas.geojson")
	_, err := run(t, "--config", writeConfig(t), "export", "--category", "Property", "--metric", "rate", "-o", dest)
	require.NoError(t, err)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(data, &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 2)
	assert.Equal(t, "Riverside", fc.Features[1].Properties["neighborhood"])
	assert.Equal(t, 1.0, fc.Features[1].Properties["count"])
	assert.Equal(t, 0.1, fc.Features[1].Properties["rate"])
	assert.Nil(t, fc.Features[0].Properties["rate"])
}

func TestRenderChartEmpty(t *testing.T) {
	var buf bytes.Buffer
	renderChart(&buf, "Nothing", nil, nil)
	assert.Equal(t, "Nothing\n(no incidents)\n", buf.String())
}

func TestRenderTableEmpty(t *testing.T) {
	var buf bytes.Buffer
	renderTable(&buf, "Nothing", render.Trend{})
	assert.Contains(t, buf.String(), "Trend: (no incidents)")
	assert.NotContains(t, buf.String(), "Overall")
}
