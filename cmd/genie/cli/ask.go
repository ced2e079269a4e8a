package cli

import (
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vladip1/databricks-genie-mcp/internal/provider"
	"github.com/vladip1/databricks-genie-mcp/internal/ui"
)

var askSession string

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a one-shot question about your data",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		obs := newObserver(os.Stderr)
		defer obs.Close()

		cfg, err := loadConfig()
		if err != nil {
			obs.Log().Fatal().Err(err).Msg("Invalid configuration")
		}

		orch, _, cleanup, err := buildOrchestrator(cfg, obs)
		if err != nil {
			obs.Log().Fatal().Err(err).Msg("Failed to build agent")
		}
		defer cleanup()

		sessionID := askSession
		if sessionID == "" {
			sessionID = uuid.NewString()
		}

		question := strings.Join(args, " ")
		messages := []provider.Message{{Role: provider.RoleUser, Content: question}}

		sink := ui.TextSink{W: os.Stdout}
		if _, err := orch.Run(cmd.Context(), sessionID, messages, sinkEmit(sink)); err != nil {
			os.Exit(1)
		}
	},
}

func init() {
	RootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVarP(&askSession, "session", "s", "", "Session ID for follow-up questions")
}
