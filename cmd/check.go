package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zalepa/crimemap/crime"
	"github.com/zalepa/crimemap/loader"
	"github.com/zalepa/crimemap/render"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Load every dataset and report what was read",
	Long: `Load every configured municipality the way "serve" does and print row
counts, skipped rows, incidents outside any neighborhood, boundaries and
population coverage. Exits non-zero when a dataset cannot be loaded.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, err := loader.LoadCatalog(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		printCheck(cmd.OutOrStdout(), catalog)
		return nil
	},
}

func printCheck(w io.Writer, catalog *loader.Catalog) {
	rowFmt := "%-12s %8s %8s %9s %7s %9s %10s %11s\n"
	fmt.Fprintf(w, rowFmt, "Dataset", "Rows", "Loaded", "Malformed", "Undated", "Unlocated", "Boundaries", "Populated")
	fmt.Fprintln(w, strings.Repeat("─", 12+8+8+9+7+9+10+11+7))

	for _, b := range catalog.Municipalities() {
		for _, r := range b.Reports {
			fmt.Fprintf(w, rowFmt, b.Name,
				fmtInt(r.Rows), fmtInt(r.Loaded), fmtInt(r.Malformed), fmtInt(r.Undated), fmtInt(r.Unlocated),
				fmtInt(len(b.Boundaries)), fmtInt(len(b.Population)))
		}
	}

	metro := catalog.Metro()
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s: %s incidents", metro.Name, fmtInt(len(metro.Incidents)))
	if first, last, ok := crime.DateBounds(metro.Incidents); ok {
		fmt.Fprintf(w, ", %s to %s", first.Format(time.DateOnly), last.Format(time.DateOnly))
	}
	fmt.Fprintf(w, ", %d categories\n", len(crime.Categories(metro.Incidents)))
	if metro.PopulationYear != "" {
		fmt.Fprintf(w, "Population year: %s\n", metro.PopulationYear)
	}
}

func fmtInt(n int) string {
	return render.FormatNum(float64(n))
}
