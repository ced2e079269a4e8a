package cli

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/vladip1/databricks-genie-mcp/internal/credential"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage stored credentials",
	Long: `Stores workspace and provider secrets encrypted on disk, keyed by
names like databricks.token or anthropic.api_key. Stored credentials are
used when the config file and environment do not provide them.`,
}

var configSetCmd = &cobra.Command{
	Use:   "set [name] [value]",
	Short: "Store a credential",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		creds := getCredentials()
		if err := creds.Set(args[0], args[1]); err != nil {
			fmt.Printf("Failed to store credential: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Credential saved: %s\n", args[0])
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get [name]",
	Short: "Show a stored credential (masked)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		creds := getCredentials()
		value, err := creds.Get(args[0])
		if errors.Is(err, credential.ErrNotFound) {
			fmt.Println("(not set)")
			return
		}
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(credential.MaskSecret(value))
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored credential names",
	Run: func(cmd *cobra.Command, args []string) {
		creds := getCredentials()
		names, err := creds.List()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		if len(names) == 0 {
			fmt.Println("(none)")
			return
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Println(name)
		}
	},
}

var configDeleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Remove a stored credential",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		creds := getCredentials()
		if err := creds.Delete(args[0]); err != nil {
			fmt.Printf("Failed to delete credential: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Credential removed: %s\n", args[0])
	},
}

func init() {
	RootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configDeleteCmd)
}
