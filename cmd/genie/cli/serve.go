package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/vladip1/databricks-genie-mcp/internal/api"
	"github.com/vladip1/databricks-genie-mcp/internal/observe"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the OpenAI-compatible chat API",
	Run: func(cmd *cobra.Command, args []string) {
		// The server logs JSON lines so its output can be collected.
		obs := observe.NewJSON(os.Stdout, verbose)
		defer obs.Close()

		cfg, err := loadConfig()
		if err != nil {
			obs.Log().Fatal().Err(err).Msg("Invalid configuration")
		}
		if listenAddr != "" {
			cfg.Server.Addr = listenAddr
		}

		orch, _, cleanup, err := buildOrchestrator(cfg, obs)
		if err != nil {
			obs.Log().Fatal().Err(err).Msg("Failed to build agent")
		}
		defer cleanup()

		server := api.NewServer(orch, obs, cfg.Server.Model)
		if err := server.Run(cfg.Server.Addr); err != nil {
			obs.Log().Fatal().Err(err).Msg("Server stopped")
		}
	},
}

func init() {
	RootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "Listen address (overrides config, default :8000)")
}
