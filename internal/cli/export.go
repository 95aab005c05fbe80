package cli

import (
	"github.com/spf13/cobra"

	"trading-journal/internal/app"
	"trading-journal/internal/journal"
)

var (
	exportFlags     app.FilterFlags
	exportSaved     string
	exportPNGPath   string
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Render the equity curve of filtered trades as a PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExportOptions{
			Saved:     exportSaved,
			PNGPath:   exportPNGPath,
			MaxPoints: exportMaxPoints,
		}
		if exportSaved == "" {
			state, err := exportFlags.State(journal.TradeSchema)
			if err != nil {
				return err
			}
			opts.State = state
		}
		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	bindFilterFlags(exportCmd, &exportFlags)
	exportCmd.Flags().StringVar(&exportSaved, "saved", "", "Use a saved trades filter instead of the filter flags")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum data points to plot (defaults to config)")
}
