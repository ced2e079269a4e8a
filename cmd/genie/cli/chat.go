package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vladip1/databricks-genie-mcp/internal/provider"
	"github.com/vladip1/databricks-genie-mcp/internal/ui/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Run: func(cmd *cobra.Command, args []string) {
		// The TUI owns the terminal; logs would corrupt it.
		obs := newObserver(io.Discard)
		defer obs.Close()

		cfg, err := loadConfig()
		if err != nil {
			fmt.Printf("Invalid configuration: %v\n", err)
			os.Exit(1)
		}

		orch, registry, cleanup, err := buildOrchestrator(cfg, obs)
		if err != nil {
			fmt.Printf("Failed to build agent: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()

		sessionID := uuid.NewString()
		questions := make(chan string, 1)

		model := tui.NewModel("Databricks Genie", func(q string) {
			questions <- q
		})
		program := tea.NewProgram(model)
		sink := tui.NewTUI(program)
		session := &chatSession{registry: registry, spaceID: cfg.Databricks.SpaceID}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case q := <-questions:
					if session.Handle(ctx, q, sink) {
						continue
					}
					messages := []provider.Message{{Role: provider.RoleUser, Content: q}}
					_, _ = orch.Run(ctx, sessionID, messages, sinkEmit(sink))
				}
			}
		}()

		if _, err := program.Run(); err != nil {
			fmt.Printf("Chat failed: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	RootCmd.AddCommand(chatCmd)
}
