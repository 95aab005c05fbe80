package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"trading-journal/internal/app"
	"trading-journal/internal/filter"
	"trading-journal/internal/journal"
)

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Manage saved filters",
}

var (
	saveFlags  app.FilterFlags
	saveScope  string
	saveNotify bool
)

var filterSaveCmd = &cobra.Command{
	Use:   "save NAME",
	Short: "Save the given filter flags under a name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		schema, err := schemaFor(saveScope)
		if err != nil {
			return err
		}
		state, err := saveFlags.State(schema)
		if err != nil {
			return err
		}
		spec, err := saveFlags.Sort()
		if err != nil {
			return err
		}
		return getApp().SaveFilter(cmd.Context(), app.SaveFilterOptions{
			Name:   args[0],
			Scope:  schema.Name,
			State:  state,
			Sort:   spec,
			Notify: saveNotify,
		})
	},
}

var filterListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved filters",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ListFilters(cmd.Context())
	},
}

var filterLoadCmd = &cobra.Command{
	Use:   "load NAME",
	Short: "Print a saved filter",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().LoadFilter(cmd.Context(), args[0])
	},
}

var filterDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a saved filter",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().DeleteFilter(cmd.Context(), args[0])
	},
}

var checkNotify bool

var checkFilterCmd = &cobra.Command{
	Use:   "check-filter NAME",
	Short: "Evaluate a saved filter now and optionally push the alert",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().CheckFilter(cmd.Context(), args[0], checkNotify)
	},
}

func schemaFor(scope string) (filter.Schema, error) {
	switch scope {
	case filter.ScopeTrades:
		return journal.TradeSchema, nil
	case filter.ScopeNews:
		return journal.NewsSchema, nil
	case filter.ScopeWatchlist:
		return journal.WatchlistSchema, nil
	}
	return filter.Schema{}, fmt.Errorf("unknown scope %q (trades, news, watchlist)", scope)
}

func init() {
	bindFilterFlags(filterSaveCmd, &saveFlags)
	filterSaveCmd.Flags().StringVar(&saveScope, "scope", filter.ScopeTrades, "Collection the filter applies to (trades, news, watchlist)")
	filterSaveCmd.Flags().BoolVar(&saveNotify, "notify", false, "Evaluate this filter on every watch tick and push matches")

	checkFilterCmd.Flags().BoolVar(&checkNotify, "notify", false, "Push the result through the configured notifier")

	filterCmd.AddCommand(filterSaveCmd, filterListCmd, filterLoadCmd, filterDeleteCmd)
}
