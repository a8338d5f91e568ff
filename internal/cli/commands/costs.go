package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/relayd-dev/relayd/internal/cli/client"
)

// NewCostsCmd creates the costs command
func NewCostsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "costs",
		Short: "Show the aggregated cost report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCosts()
		},
	}
}

func runCosts() error {
	serverURL, err := resolveServerURL()
	if err != nil {
		return err
	}

	apiClient := client.New(serverURL)

	report, err := apiClient.GetCostReport()
	if err != nil {
		return err
	}

	fmt.Printf("Runs:     %d\n", report.TotalRuns)
	fmt.Printf("Steps:    %d (%d on fallback model)\n", report.TotalSteps, report.FallbackSteps)
	fmt.Printf("Tokens:   %d in / %d out\n", report.TotalTokensIn, report.TotalTokensOut)
	fmt.Printf("Cost:     $%.4f\n", report.TotalCostUSD)
	fmt.Printf("Savings:  $%.4f\n", report.TotalSavingsUSD)

	if len(report.ByAgent) == 0 {
		return nil
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "AGENT\tSTEPS\tTOKENS IN\tTOKENS OUT\tCOST\tSAVINGS")
	fmt.Fprintln(w, "─────\t─────\t─────────\t──────────\t────\t───────")

	for _, agent := range report.ByAgent {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t$%.4f\t$%.4f\n",
			agent.AgentName,
			agent.Steps,
			agent.TokensIn,
			agent.TokensOut,
			agent.CostUSD,
			agent.SavingsUSD,
		)
	}

	w.Flush()

	return nil
}
