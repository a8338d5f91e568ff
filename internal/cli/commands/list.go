package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/relayd-dev/relayd/internal/cli/client"
)

// NewListCmd creates the list command
func NewListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List your conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList()
		},
	}
}

func runList() error {
	serverURL, err := resolveServerURL()
	if err != nil {
		return err
	}

	apiClient := client.New(serverURL)

	conversations, err := apiClient.ListConversations()
	if err != nil {
		return err
	}

	if len(conversations) == 0 {
		fmt.Println("No conversations found.")
		return nil
	}

	// Display conversations in a table
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tUPDATED")
	fmt.Fprintln(w, "──\t─────\t──────\t───────")

	for _, conv := range conversations {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			conv.ID,
			conv.Title,
			conv.Status,
			conv.UpdatedAt,
		)
	}

	w.Flush()

	return nil
}
