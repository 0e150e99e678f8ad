package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zalepa/crimemap/loader"
	"github.com/zalepa/crimemap/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Load the datasets and serve the map dashboard",
	Long: `Load every configured municipality and serve the dashboard until
interrupted. The datasets are read once at startup.`,
	Example: `  crimemap serve
  crimemap serve --addr :9000 --data-dir ./data`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		catalog, err := loader.LoadCatalog(ctx, cfg, logger)
		if err != nil {
			return err
		}
		logger.Info("Datasets loaded",
			zap.Int("municipalities", len(catalog.Municipalities())),
			zap.Int("incidents", len(catalog.Metro().Incidents)))

		srv, err := server.New(cfg, catalog, logger)
		if err != nil {
			return err
		}
		return srv.ListenAndServe(ctx, cfg.Server.Addr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides config, e.g. :8080)")
}
