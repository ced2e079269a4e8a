package cli

import (
	"os"
	"os/signal"
	"syscall"

	mcpSdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/vladip1/databricks-genie-mcp/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the Genie tools over MCP on stdio",
	Long: `Starts an MCP server speaking JSON-RPC on standard input/output, for
use as a tool server in MCP-capable clients. Logs go to stderr so the
protocol stream stays clean.`,
	Run: func(cmd *cobra.Command, args []string) {
		obs := newObserver(os.Stderr)
		defer obs.Close()

		cfg, err := loadConfig()
		if err != nil {
			obs.Log().Fatal().Err(err).Msg("Invalid configuration")
		}

		registry, err := buildRegistry(cfg)
		if err != nil {
			obs.Log().Fatal().Err(err).Msg("Failed to build tool registry")
		}

		server, err := mcp.NewServer(mcp.Config{
			Name:    "databricks-genie",
			Version: Version,
		}, registry)
		if err != nil {
			obs.Log().Fatal().Err(err).Msg("Failed to create MCP server")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		obs.Log().Info().Int("tools", registry.Count()).Msg("MCP server listening on stdio")
		if err := server.Run(ctx, &mcpSdk.StdioTransport{}); err != nil {
			obs.Log().Fatal().Err(err).Msg("MCP server stopped")
		}
	},
}

func init() {
	RootCmd.AddCommand(mcpCmd)
}
