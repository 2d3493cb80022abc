package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/chainsub/internal/control"
)

var outcomesLimit int

var outcomesCmd = &cobra.Command{
	Use:   "outcomes <subscription-id>",
	Short: "Show journaled outcomes of a subscription",
	Args:  cobra.ExactArgs(1),
	Run:   runOutcomes,
}

func init() {
	outcomesCmd.Flags().IntVar(&outcomesLimit, "limit", 50, "maximum outcomes to show")
	rootCmd.AddCommand(outcomesCmd)
}

func runOutcomes(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx := context.Background()
	journal, err := control.OpenJournal(ctx, cfg)
	if err != nil {
		slog.Error("Failed to open journal", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = journal.Close()
	}()

	outcomes, err := journal.ListBySubscription(ctx, args[0], outcomesLimit)
	if err != nil {
		slog.Error("Failed to list outcomes", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ID\tKIND\tEVENT\tTX\tBLOCK\tCONFIRMATIONS\tERROR\tCREATED")

	for _, o := range outcomes {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			o.ID, o.Kind, o.EventName, o.TxHash, o.BlockNumber, o.Confirmations, o.Error,
			o.CreatedAt.Format(time.RFC3339))
	}
	_ = w.Flush()
}
