package cli

import (
	"github.com/spf13/cobra"

	"trading-journal/internal/app"
)

var watchlistAdd app.WatchlistOptions

var watchlistAddCmd = &cobra.Command{
	Use:   "add SYMBOL",
	Short: "Add a symbol to a watchlist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := watchlistAdd
		opts.Symbol = args[0]
		return getApp().AddWatchlist(cmd.Context(), opts)
	},
}

func init() {
	watchlistAddCmd.Flags().StringVar(&watchlistAdd.Name, "name", "", "Display name")
	watchlistAddCmd.Flags().StringVar(&watchlistAdd.List, "list", "default", "Watchlist name")
	watchlistAddCmd.Flags().StringSliceVar(&watchlistAdd.Tags, "tag", nil, "Tags")
	watchlistAddCmd.Flags().BoolVar(&watchlistAdd.Starred, "starred", false, "Mark the entry as starred")
	watchlistAddCmd.Flags().StringVar(&watchlistAdd.Notes, "notes", "", "Free-form notes")

	watchlistCmd.AddCommand(watchlistAddCmd)
}
