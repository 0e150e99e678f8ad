package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zalepa/crimemap/crime"
	"github.com/zalepa/crimemap/render"
)

var (
	exportSel    selectionFlags
	exportMetric string
	exportOut    string
	exportPoints bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the filtered map as GeoJSON",
	Long: `Write the neighborhood layer of the map for a selection as a GeoJSON
FeatureCollection, the same features the dashboard draws. With --points the
incident point layer is written instead.`,
	Example: `  crimemap export -m Somerville --from 2022-01-01 -o somerville.geojson
  crimemap export --metric rate --category Violent`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		metric, err := render.ParseMetric(exportMetric)
		if err != nil {
			return err
		}
		b, sel, err := exportSel.load(cmd.Context())
		if err != nil {
			return err
		}

		view := render.Map(b, crime.Filter(b.Incidents, sel), metric, cfg.Server.MaxPoints)
		var v any = view.Areas
		if exportPoints {
			v = view.Points
			if view.Truncated {
				logger.Warn("Point layer truncated, raise server.max_points for more",
					zap.Int("points", len(view.Points.Features)))
			}
		}

		if exportOut == "" {
			return writeGeoJSON(cmd.OutOrStdout(), v)
		}
		f, err := os.Create(exportOut)
		if err != nil {
			return err
		}
		if err := writeGeoJSON(f, v); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (%d incidents)\n", exportOut, view.Total)
		return nil
	},
}

func init() {
	exportSel.register(exportCmd)
	exportCmd.Flags().StringVar(&exportMetric, "metric", "count", "Colour areas by: count, rate")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file (default: stdout)")
	exportCmd.Flags().BoolVar(&exportPoints, "points", false, "Export the incident point layer instead of areas")
}

func writeGeoJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
