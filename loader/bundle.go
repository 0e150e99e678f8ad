// Package loader reads each municipality's incident table, boundary
// shapefile and population source into an in-memory Bundle, and groups the
// bundles into a Catalog served read-only for the life of the process.
package loader

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zalepa/crimemap/config"
	"github.com/zalepa/crimemap/crime"
	"github.com/zalepa/crimemap/geo"
)

// ErrUnknownMunicipality is returned by Catalog.Bundle for names that are
// neither a configured municipality nor the metro view.
var ErrUnknownMunicipality = errors.New("unknown municipality")

// Bundle is everything needed to draw one municipality, or the metro view.
type Bundle struct {
	Name           string
	Zoom           float64
	PopulationYear string
	// Metro is set on the combined bundle; its incidents span municipalities.
	Metro bool

	Incidents  []crime.Incident
	Boundaries []geo.Boundary
	Population map[crime.AreaKey]float64
	Reports    []Report
}

// LoadMunicipality loads one municipality's datasets. Missing files and
// missing required columns are returned as errors.
func LoadMunicipality(ctx context.Context, cfg *config.Config, m config.Municipality) (*Bundle, error) {
	features, err := geo.ReadShapefile(cfg.Resolve(m.Boundary.Path), m.Boundary.NameField)
	if err != nil {
		return nil, fmt.Errorf("boundaries: %w", err)
	}
	aliases := newLookup(m.NeighborhoodAliases)
	boundaries := make([]geo.Boundary, 0, len(features))
	for _, f := range features {
		name := aliases.resolve(f.Attributes[m.Boundary.NameField])
		boundaries = append(boundaries, geo.NewBoundary(m.Name, name, f.Geometry))
	}
	index := geo.NewIndex(boundaries)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	joins := Joins{Index: index}
	if m.Blocks != nil {
		blocks, err := blockNeighborhoods(cfg.Resolve(m.Blocks.Path), *m.Blocks, index)
		if err != nil {
			return nil, fmt.Errorf("census blocks: %w", err)
		}
		joins.Blocks = blocks
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	incidents, rep, err := LoadIncidents(cfg.Resolve(m.Crime.Path), m, joins)
	if err != nil {
		return nil, fmt.Errorf("incidents: %w", err)
	}

	population, err := loadPopulation(cfg, m, boundaries)
	if err != nil {
		return nil, fmt.Errorf("population: %w", err)
	}

	return &Bundle{
		Name:           m.Name,
		Zoom:           m.Zoom,
		PopulationYear: m.PopulationYear,
		Incidents:      incidents,
		Boundaries:     boundaries,
		Population:     population,
		Reports:        []Report{rep},
	}, nil
}

// Catalog holds the loaded bundles. It is immutable and safe for concurrent
// readers.
type Catalog struct {
	bundles []*Bundle
	byName  map[string]*Bundle
	metro   *Bundle
}

// NewCatalog combines bundles, in order, into a catalog with a metro view.
func NewCatalog(metro config.MetroConfig, bundles ...*Bundle) *Catalog {
	c := &Catalog{
		bundles: bundles,
		byName:  make(map[string]*Bundle, len(bundles)),
	}
	m := &Bundle{
		Name:       metro.Name,
		Zoom:       metro.Zoom,
		Metro:      true,
		Population: make(map[crime.AreaKey]float64),
	}
	var years []string
	for _, b := range bundles {
		c.byName[strings.ToLower(b.Name)] = b
		m.Incidents = append(m.Incidents, b.Incidents...)
		m.Boundaries = append(m.Boundaries, b.Boundaries...)
		m.Reports = append(m.Reports, b.Reports...)
		for k, v := range b.Population {
			m.Population[k] = v
		}
		if b.PopulationYear != "" {
			years = append(years, b.PopulationYear)
		}
	}
	m.PopulationYear = strings.Join(years, ", ")
	c.metro = m
	return c
}

// Bundle returns the named municipality. An empty name or the metro name
// returns the metro bundle.
func (c *Catalog) Bundle(name string) (*Bundle, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, c.metro.Name) {
		return c.metro, nil
	}
	if b, ok := c.byName[strings.ToLower(name)]; ok {
		return b, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMunicipality, name)
}

// Municipalities returns the individual bundles in configuration order.
func (c *Catalog) Municipalities() []*Bundle { return c.bundles }

// Metro returns the combined bundle.
func (c *Catalog) Metro() *Bundle { return c.metro }

// LoadCatalog loads every configured municipality concurrently. The first
// failure cancels the rest and is returned.
func LoadCatalog(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Catalog, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	bundles := make([]*Bundle, len(cfg.Municipalities))
	g, gctx := errgroup.WithContext(ctx)
	for i, m := range cfg.Municipalities {
		g.Go(func() error {
			start := time.Now()
			b, err := LoadMunicipality(gctx, cfg, m)
			if err != nil {
				return fmt.Errorf("load %s: %w", m.Name, err)
			}
			bundles[i] = b
			for _, r := range b.Reports {
				log.Info("Loaded municipality",
					zap.String("municipality", m.Name),
					zap.Int("incidents", r.Loaded),
					zap.Int("boundaries", len(b.Boundaries)),
					zap.Int("populated_areas", len(b.Population)),
					zap.Duration("took", time.Since(start)))
				if r.Skipped() > 0 || r.Unlocated > 0 {
					log.Warn("Dataset rows skipped or unplaced",
						zap.String("path", r.Path),
						zap.Int("malformed", r.Malformed),
						zap.Int("undated", r.Undated),
						zap.Int("unlocated", r.Unlocated))
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return NewCatalog(cfg.Metro, bundles...), nil
}
