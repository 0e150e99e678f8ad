// Package config loads the crimemap YAML configuration: where each
// municipality's datasets live, how their columns are laid out, and how the
// dashboard server runs.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all crimemap configuration.
type Config struct {
	// DataDir is prepended to every relative dataset path.
	DataDir string `yaml:"data_dir"`

	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
	Metro   MetroConfig   `yaml:"metro"`

	Municipalities []Municipality `yaml:"municipalities"`
}

// ServerConfig configures the dashboard HTTP server.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ReadTimeout     string `yaml:"read_timeout"`
	WriteTimeout    string `yaml:"write_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
	// MaxPoints caps the incident point layer returned by /api/map.
	MaxPoints int `yaml:"max_points"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level       string `yaml:"level"` // debug, info, warn, error
	Development bool   `yaml:"development"`
}

// MetroConfig describes the combined view of every municipality.
type MetroConfig struct {
	Name string  `yaml:"name"`
	Zoom float64 `yaml:"zoom"`
}

// Municipality describes one city's datasets.
type Municipality struct {
	Name           string  `yaml:"name"`
	Zoom           float64 `yaml:"zoom"`
	PopulationYear string  `yaml:"population_year"`

	Crime      CrimeSource    `yaml:"crime"`
	Boundary   BoundarySource `yaml:"boundary"`
	Blocks     *BlockSource   `yaml:"blocks,omitempty"`
	Population Population     `yaml:"population"`

	// Macros maps raw crime descriptions to macro categories.
	Macros map[string]string `yaml:"macros,omitempty"`
	// NeighborhoodAliases renames neighborhoods in both the incident table
	// and the boundary file so the two agree.
	NeighborhoodAliases map[string]string `yaml:"neighborhood_aliases,omitempty"`
}

// CrimeSource is the incident CSV and its column layout.
type CrimeSource struct {
	Path string `yaml:"path"`
	URL  string `yaml:"url,omitempty"`

	// Either DateColumn, or DayMonthColumn together with YearColumn.
	DateColumn     string   `yaml:"date_column,omitempty"`
	DayMonthColumn string   `yaml:"day_month_column,omitempty"`
	YearColumn     string   `yaml:"year_column,omitempty"`
	DateLayouts    []string `yaml:"date_layouts,omitempty"`

	CrimeColumn string `yaml:"crime_column"`
	TitleCase   bool   `yaml:"title_case,omitempty"`

	NeighborhoodColumn string `yaml:"neighborhood_column,omitempty"`
	DistrictColumn     string `yaml:"district_column,omitempty"`
	BlockColumn        string `yaml:"block_column,omitempty"`
	LatitudeColumn     string `yaml:"latitude_column,omitempty"`
	LongitudeColumn    string `yaml:"longitude_column,omitempty"`
}

// BoundarySource is a neighborhood polygon shapefile.
type BoundarySource struct {
	Path      string `yaml:"path"`
	URL       string `yaml:"url,omitempty"`
	NameField string `yaml:"name_field"`
}

// BlockSource is a census block shapefile used to place incidents that only
// carry a block code.
type BlockSource struct {
	Path       string `yaml:"path"`
	URL        string `yaml:"url,omitempty"`
	GeoIDField string `yaml:"geoid_field"`
	TownField  string `yaml:"town_field,omitempty"`
	Town       string `yaml:"town,omitempty"`
}

// Population says where neighborhood populations come from. At most one of
// Table, Workbook or Total is used, in that order.
type Population struct {
	Table    map[string]float64 `yaml:"table,omitempty"`
	Workbook *Workbook          `yaml:"workbook,omitempty"`
	// Total is split across neighborhoods by area.
	Total float64 `yaml:"total,omitempty"`
}

// Workbook reads populations from a spreadsheet range.
type Workbook struct {
	Path  string `yaml:"path"`
	URL   string `yaml:"url,omitempty"`
	Sheet string `yaml:"sheet,omitempty"`
	// HeaderRow is the zero-based row holding column headers.
	HeaderRow   int    `yaml:"header_row"`
	ValueColumn string `yaml:"value_column"`
	// First and Last bound the label rows read, inclusive.
	First string `yaml:"first,omitempty"`
	Last  string `yaml:"last,omitempty"`
}

// DefaultDateLayouts are tried in order when a source lists none.
var DefaultDateLayouts = []string{
	"01/02/2006", "1/2/2006", "2006-01-02", "2006/01/02", "01/02/06", "1/2/06",
}

// DefaultConfig returns the layout of the Cambridge, Boston and Somerville
// open-data exports.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "data",
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     "10s",
			WriteTimeout:    "60s",
			ShutdownTimeout: "10s",
			MaxPoints:       5000,
		},
		Logging: LoggingConfig{Level: "info"},
		Metro:   MetroConfig{Name: "All Metro", Zoom: 11.5},
		Municipalities: []Municipality{
			{
				Name:           "Cambridge",
				Zoom:           13,
				PopulationYear: "2020",
				Crime: CrimeSource{
					Path:               "cambridge/Crime_Reports.csv",
					DateColumn:         "Crime Date Time",
					CrimeColumn:        "Crime",
					NeighborhoodColumn: "Neighborhood",
					DistrictColumn:     "Reporting Area",
				},
				Boundary: BoundarySource{
					Path:      "cambridge/BOUNDARY_CDDNeighborhoods.shp",
					NameField: "NAME",
				},
			},
			{
				Name:           "Boston",
				Zoom:           12,
				PopulationYear: "2019",
				Crime: CrimeSource{
					Path:               "boston/crime.csv",
					DateColumn:         "From Date",
					CrimeColumn:        "Crime",
					TitleCase:          true,
					NeighborhoodColumn: "Neighborhood",
					DistrictColumn:     "BPD District",
				},
				Boundary: BoundarySource{
					Path:      "boston/census2020_bg_neighborhoods.shp",
					NameField: "blockgr202",
				},
				Population: Population{
					Workbook: &Workbook{
						Path:        "boston/neighborhood_profiles.xlsm",
						HeaderRow:   2,
						ValueColumn: "Total Population",
						First:       "Allston",
						Last:        "West Roxbury",
					},
				},
			},
			{
				Name:           "Somerville",
				Zoom:           13,
				PopulationYear: "2022 (area-weighted)",
				Crime: CrimeSource{
					Path:           "somerville/Police_Data_Crime_Reports.csv",
					DayMonthColumn: "Day and Month Reported",
					YearColumn:     "Year Reported",
					CrimeColumn:    "Offense Type",
					TitleCase:      true,
					BlockColumn:    "Block Code",
				},
				Boundary: BoundarySource{
					Path:      "somerville/Neighborhoods.shp",
					NameField: "NBHD",
				},
				Blocks: &BlockSource{
					Path:       "massachusetts/CENSUS2020BLOCKS_POLY.shp",
					GeoIDField: "GEOID20",
					TownField:  "TOWN",
					Town:       "SOMERVILLE",
				},
			},
		},
	}
}

// Load reads the config at path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the config as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CRIMEMAP_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("CRIMEMAP_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("CRIMEMAP_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks that every municipality can be loaded.
func (c *Config) Validate() error {
	if len(c.Municipalities) == 0 {
		return errors.New("no municipalities configured")
	}
	seen := map[string]bool{strings.ToLower(c.Metro.Name): true}
	for i, m := range c.Municipalities {
		if m.Name == "" {
			return fmt.Errorf("municipality %d: name is required", i)
		}
		key := strings.ToLower(m.Name)
		if seen[key] {
			return fmt.Errorf("municipality %q: duplicate name", m.Name)
		}
		seen[key] = true

		cs := m.Crime
		switch {
		case cs.Path == "":
			return fmt.Errorf("municipality %q: crime.path is required", m.Name)
		case cs.CrimeColumn == "":
			return fmt.Errorf("municipality %q: crime.crime_column is required", m.Name)
		case cs.DateColumn == "" && (cs.DayMonthColumn == "" || cs.YearColumn == ""):
			return fmt.Errorf("municipality %q: crime needs date_column or day_month_column and year_column", m.Name)
		case (cs.LatitudeColumn == "") != (cs.LongitudeColumn == ""):
			return fmt.Errorf("municipality %q: latitude_column and longitude_column go together", m.Name)
		}
		if cs.BlockColumn != "" && m.Blocks == nil {
			return fmt.Errorf("municipality %q: crime.block_column needs a blocks source", m.Name)
		}
		if m.Boundary.Path == "" || m.Boundary.NameField == "" {
			return fmt.Errorf("municipality %q: boundary.path and boundary.name_field are required", m.Name)
		}
		if m.Blocks != nil && (m.Blocks.Path == "" || m.Blocks.GeoIDField == "") {
			return fmt.Errorf("municipality %q: blocks.path and blocks.geoid_field are required", m.Name)
		}
		if w := m.Population.Workbook; w != nil && (w.Path == "" || w.ValueColumn == "") {
			return fmt.Errorf("municipality %q: population.workbook needs path and value_column", m.Name)
		}
	}
	return nil
}

// Resolve returns p relative to the data directory unless it is absolute.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir, p)
}

// GetReadTimeout returns the server read timeout (default 10s).
func (c *Config) GetReadTimeout() time.Duration {
	return parseDuration(c.Server.ReadTimeout, 10*time.Second)
}

// GetWriteTimeout returns the server write timeout (default 60s).
func (c *Config) GetWriteTimeout() time.Duration {
	return parseDuration(c.Server.WriteTimeout, 60*time.Second)
}

// GetShutdownTimeout returns how long in-flight requests get on shutdown
// (default 10s).
func (c *Config) GetShutdownTimeout() time.Duration {
	return parseDuration(c.Server.ShutdownTimeout, 10*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Layouts returns the date layouts for the source.
func (s CrimeSource) Layouts() []string {
	if len(s.DateLayouts) > 0 {
		return s.DateLayouts
	}
	return DefaultDateLayouts
}
