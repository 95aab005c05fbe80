package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"trading-journal/internal/app"
	"trading-journal/internal/filter"
	"trading-journal/internal/journal"
)

var (
	tradesCmd    = newQueryCmd(journal.TradeSchema, "trades", "List journal trades through the filter pipeline")
	newsCmd      = newQueryCmd(journal.NewsSchema, "news", "List market news through the filter pipeline")
	watchlistCmd = newQueryCmd(journal.WatchlistSchema, "watchlist", "List watchlist entries through the filter pipeline")
)

func bindFilterFlags(cmd *cobra.Command, f *app.FilterFlags) {
	flags := cmd.Flags()
	flags.StringVar(&f.Search, "search", "", "Free-text search over searchable fields")
	flags.StringArrayVar(&f.In, "in", nil, "Keep records whose field is one of the values (field=a,b)")
	flags.StringArrayVar(&f.Any, "any", nil, "Keep records whose set field shares a value (field=a,b)")
	flags.StringArrayVar(&f.Min, "min", nil, "Lower bound for a numeric field (field=value)")
	flags.StringArrayVar(&f.Max, "max", nil, "Upper bound for a numeric field (field=value)")
	flags.StringSliceVar(&f.Only, "only", nil, "Keep records where the flag field is set")
	flags.StringSliceVar(&f.Keywords, "keyword", nil, "Keep records mentioning any keyword")
	flags.StringSliceVar(&f.Exclude, "exclude", nil, "Drop records mentioning any keyword")
	flags.StringVar(&f.Window, "window", "", "Relative date window (1h, 24h, 7d, 30d, 90d, 1y, all)")
	flags.StringVar(&f.From, "from", "", "Custom window start (RFC3339, inclusive)")
	flags.StringVar(&f.To, "to", "", "Custom window end (RFC3339, inclusive)")
	flags.StringVar(&f.SortKey, "sort", "", "Sort field (defaults to the collection default)")
	flags.StringVar(&f.SortDir, "dir", "", "Sort direction (asc or desc)")
}

func newQueryCmd(schema filter.Schema, use, short string) *cobra.Command {
	var (
		flags app.FilterFlags
		saved string
		limit int
		facet string
	)

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return fmt.Errorf("--limit must not be negative")
			}

			opts := app.QueryOptions{Scope: schema.Name, Saved: saved, Limit: limit, Facet: facet}
			if facet != "" && !schema.Has(facet) {
				return fmt.Errorf("unknown %s field %q", schema.Name, facet)
			}
			if saved == "" && facet == "" {
				state, err := flags.State(schema)
				if err != nil {
					return err
				}
				spec, err := flags.Sort()
				if err != nil {
					return err
				}
				opts.State = state
				opts.Sort = spec
			}

			return getApp().Query(cmd.Context(), opts)
		},
	}

	bindFilterFlags(cmd, &flags)
	cmd.Flags().StringVar(&saved, "saved", "", "Run a saved filter instead of the filter flags")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum rows to print (0 for all)")
	cmd.Flags().StringVar(&facet, "facet", "", "Print value counts for a field instead of rows")
	return cmd
}
