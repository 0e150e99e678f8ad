package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zalepa/crimemap/crime"
	"github.com/zalepa/crimemap/loader"
)

// selectionFlags are the filter flags shared by summary and export.
type selectionFlags struct {
	municipality string
	from, to     string
	categories   []string
	crimes       []string
}

func (f *selectionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.municipality, "municipality", "m", "", "Municipality (default: all metro)")
	cmd.Flags().StringVar(&f.from, "from", "", "First day, YYYY-MM-DD (inclusive)")
	cmd.Flags().StringVar(&f.to, "to", "", "Last day, YYYY-MM-DD (inclusive)")
	cmd.Flags().StringSliceVar(&f.categories, "category", nil, "Macro categories (repeatable or comma-separated)")
	cmd.Flags().StringArrayVar(&f.crimes, "crime", nil, "Raw crime descriptions (repeatable)")
}

// load loads the catalog and resolves the flags against it.
func (f *selectionFlags) load(ctx context.Context) (*loader.Bundle, crime.Selection, error) {
	var sel crime.Selection
	var err error
	if sel.Start, err = parseDayFlag("from", f.from); err != nil {
		return nil, sel, err
	}
	if sel.End, err = parseDayFlag("to", f.to); err != nil {
		return nil, sel, err
	}
	sel.Categories = f.categories
	sel.Crimes = f.crimes
	if err := sel.Validate(); err != nil {
		return nil, sel, err
	}

	catalog, err := loader.LoadCatalog(ctx, cfg, logger)
	if err != nil {
		return nil, sel, err
	}
	b, err := catalog.Bundle(f.municipality)
	if err != nil {
		return nil, sel, err
	}
	if !b.Metro {
		sel.Municipality = b.Name
	}
	return b, sel, nil
}

func parseDayFlag(name, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s %q: want YYYY-MM-DD", name, s)
	}
	return t, nil
}

func groupBy(name string) (crime.GroupBy, error) {
	switch name {
	case "category":
		return crime.ByCategory, nil
	case "neighborhood":
		return crime.ByNeighborhood, nil
	case "total":
		return crime.Total, nil
	}
	return nil, fmt.Errorf("invalid --group %q; valid options: category, neighborhood, total", name)
}
