package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/relayd-dev/relayd/internal/cli/client"
)

// NewRunsCmd creates the runs command
func NewRunsCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent agent pipeline runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(status)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (pending, running, completed, failed, canceled)")

	return cmd
}

func runRuns(status string) error {
	serverURL, err := resolveServerURL()
	if err != nil {
		return err
	}

	apiClient := client.New(serverURL)

	runs, err := apiClient.ListRuns(status)
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("No runs found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCONVERSATION\tSTATUS\tCREATED\tERROR")
	fmt.Fprintln(w, "──\t────────────\t──────\t───────\t─────")

	for _, run := range runs {
		errText := run.Error
		if len(errText) > 40 {
			errText = errText[:37] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			run.ID,
			run.ConversationID,
			run.Status,
			run.CreatedAt,
			errText,
		)
	}

	w.Flush()

	return nil
}
