package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/relayd-dev/relayd/internal/cli/userconfig"
)

// NewUseServerCmd creates the use-server command
func NewUseServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use-server <url>",
		Short: "Set the Relayd server to talk to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := userconfig.SetServer(args[0]); err != nil {
				return fmt.Errorf("failed to save server URL: %w", err)
			}
			fmt.Printf("✓ Server set to %s\n", args[0])
			return nil
		},
	}
}
