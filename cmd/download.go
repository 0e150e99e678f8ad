package cmd

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/zalepa/crimemap/loader"
)

var downloadTimeout time.Duration

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Fetch configured datasets that are missing locally",
	Long: `Download every crime CSV, boundary shapefile, census block file and
population workbook that has a url in the config and is not yet under the
data directory. Zip archives are unpacked next to their target path.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := &http.Client{Timeout: downloadTimeout}
		res, err := loader.Download(cmd.Context(), cfg, client, logger)
		fmt.Fprintf(cmd.OutOrStdout(), "Done: %d downloaded, %d skipped, %d failed\n", res.Downloaded, res.Skipped, res.Failed)
		return err
	},
}

func init() {
	downloadCmd.Flags().DurationVar(&downloadTimeout, "timeout", 5*time.Minute, "Per-file download timeout")
}
