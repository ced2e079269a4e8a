package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is stamped at build time.
var Version = "dev"

var (
	configPath string
	verbose    bool
)

// RootCmd represents the base command when called without any subcommands.
var RootCmd = &cobra.Command{
	Use:   "genie",
	Short: "Conversational analytics over Databricks Genie",
	Long: `Genie answers natural-language questions about your data by driving
Databricks Genie conversations through an AI agent. It serves an
OpenAI-compatible chat API, speaks MCP, and ships an interactive chat.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(Version)
	},
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (YAML)")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	RootCmd.AddCommand(versionCmd)
}
