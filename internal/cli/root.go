package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/relayd-dev/relayd/internal/cli/commands"
)

var version = "dev" // Will be set during build

var rootCmd = &cobra.Command{
	Use:   "relayd",
	Short: "Relayd - Multi-agent chat orchestration",
	Long: `Relayd CLI - Talk to a Relayd server from the terminal.

Relayd runs supervisor-driven agent pipelines over your chat messages,
with circuit-breaker fallback routing to keep costs down.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Add version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("relayd version %s\n", version)
		},
	})

	// Add all subcommands
	rootCmd.AddCommand(commands.NewUseServerCmd())
	rootCmd.AddCommand(commands.NewLoginCmd())
	rootCmd.AddCommand(commands.NewListCmd())
	rootCmd.AddCommand(commands.NewRunsCmd())
	rootCmd.AddCommand(commands.NewCostsCmd())
}

// Execute runs the root command
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
