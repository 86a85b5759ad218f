package commands

import (
	"fmt"
	"strings"

	"runharvest/lib/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(summaryCmd)
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Prints every runner's totals from the stored dataset.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := loadConfig()
		store, closeStore := openStore(ctx, cfg)
		defer closeStore()

		d, err := store.Load(ctx)
		if err != nil {
			serviceutil.Fatal("failed to load the stored dataset", err)
		}

		t := newTable()
		t.AppendHeader(table.Row{"Runner", "Activities", "Miles", "Types", "Latest"})
		for _, name := range d.RunnerNames() {
			runner := d.Runners[name]
			latest := ""
			if n := len(runner.Activities); n > 0 {
				latest = runner.Activities[n-1].Date
			}
			t.AppendRow(table.Row{
				name,
				runner.Stats.TotalActivities,
				fmt.Sprintf("%.2f", runner.Stats.TotalDistance),
				strings.Join(runner.Stats.ActivityTypes, ", "),
				latest,
			})
		}
		t.AppendFooter(table.Row{
			fmt.Sprintf("%d runners", d.Metadata.TotalRunners),
			d.Metadata.TotalActivities,
			"",
			"",
			"updated " + d.Metadata.LastUpdated,
		})
		t.Render()
	},
}
