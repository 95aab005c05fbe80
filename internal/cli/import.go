package cli

import (
	"github.com/spf13/cobra"

	"trading-journal/internal/app"
)

var (
	importAccount string
	importDryRun  bool
)

var importTradesCmd = &cobra.Command{
	Use:   "import-trades FILE.csv",
	Short: "Import trades from a CSV export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ImportTrades(cmd.Context(), app.ImportOptions{
			Path:    args[0],
			Account: importAccount,
			DryRun:  importDryRun,
		})
	},
}

var importNewsCmd = &cobra.Command{
	Use:   "import-news FILE.json",
	Short: "Import news items from a JSON array",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ImportNews(cmd.Context(), app.ImportOptions{
			Path:   args[0],
			DryRun: importDryRun,
		})
	},
}

func init() {
	importTradesCmd.Flags().StringVar(&importAccount, "account", "", "Account for rows that carry none")
	importTradesCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Parse and log without writing to storage")
	importNewsCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Parse and log without writing to storage")
}
