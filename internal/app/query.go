package app

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"trading-journal/internal/filter"
	"trading-journal/internal/journal"
	"trading-journal/internal/service"
)

// Query prints one filtered view of a journal collection.
func (a *App) Query(ctx context.Context, opts QueryOptions) error {
	sess, err := a.openSession(ctx, nil)
	if err != nil {
		return err
	}
	defer sess.Close()

	if opts.Facet != "" {
		counts, err := sess.journal.Facets(ctx, opts.Scope, opts.Facet)
		if err != nil {
			return err
		}
		writeFacets(a.Out, opts.Facet, counts)
		return nil
	}

	var page service.Page
	if opts.Saved != "" {
		var sf filter.SavedFilter
		sf, page, err = sess.journal.RunSaved(ctx, opts.Saved)
		if err != nil {
			return err
		}
		if sf.Scope != opts.Scope {
			return fmt.Errorf("saved filter %q targets %s, not %s", sf.Name, sf.Scope, opts.Scope)
		}
	} else {
		page, err = sess.journal.Query(ctx, opts.Scope, opts.State, opts.Sort)
		if err != nil {
			return err
		}
	}

	writePage(a.Out, page, opts.Limit)
	return nil
}

func writePage(out io.Writer, page service.Page, limit int) {
	if len(page.Records) == 0 {
		fmt.Fprintf(out, "no %s found (%d total, %d active filters)\n", page.Scope, page.Summary.Total, page.Summary.ActiveFilters)
		return
	}

	records := page.Records
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	switch page.Scope {
	case filter.ScopeTrades:
		fmt.Fprintln(writer, "ID\tEntry (UTC)\tSymbol\tSide\tStatus\tQty\tEntry\tExit\tPnL\tR:R\tStrategy\tTags")
	case filter.ScopeNews:
		fmt.Fprintln(writer, "Published (UTC)\tImpact\tScore\tSource\tSymbols\tTitle")
	case filter.ScopeWatchlist:
		fmt.Fprintln(writer, "List\tSymbol\tName\tPrice\tChange%\tStarred\tUpdated (UTC)")
	}

	for _, r := range records {
		switch v := r.(type) {
		case journal.Trade:
			pnl := "-"
			if p, ok := v.PnL(); ok {
				pnl = formatDecimal(p, 2)
			}
			fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				v.ID,
				v.EntryAt.UTC().Format(time.RFC3339),
				v.Symbol,
				v.Side,
				v.Status,
				v.Quantity.String(),
				v.EntryPrice.String(),
				formatNullDecimal(v.ExitPrice, -1),
				pnl,
				formatNullDecimal(v.RiskReward, 2),
				sanitizeInline(v.Strategy),
				strings.Join(v.Tags, ","),
			)
		case journal.NewsItem:
			fmt.Fprintf(writer, "%s\t%s\t%.0f\t%s\t%s\t%s\n",
				v.PublishedAt.UTC().Format(time.RFC3339),
				v.Impact,
				v.Score,
				v.Source,
				strings.Join(v.Symbols, ","),
				sanitizeInline(v.Title),
			)
		case journal.WatchlistEntry:
			updated := "-"
			if !v.UpdatedAt.IsZero() {
				updated = v.UpdatedAt.UTC().Format(time.RFC3339)
			}
			starred := ""
			if v.Starred {
				starred = "*"
			}
			fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				v.List,
				v.Symbol,
				sanitizeInline(v.Name),
				formatNullDecimal(v.Price, -1),
				formatNullDecimal(v.ChangePct, 2),
				starred,
				updated,
			)
		}
	}
	writer.Flush()

	fmt.Fprintf(out, "showing %d of %d matched (%d total, %d active filters)\n",
		len(records), page.Summary.Matched, page.Summary.Total, page.Summary.ActiveFilters)
}

func writeFacets(out io.Writer, field string, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "%s\tCount\n", field)
	for _, k := range keys {
		fmt.Fprintf(writer, "%s\t%d\n", k, counts[k])
	}
	writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}

// formatNullDecimal renders "-" for absent values; negative places keep full precision.
func formatNullDecimal(d decimal.NullDecimal, places int32) string {
	if !d.Valid {
		return "-"
	}
	if places < 0 {
		return d.Decimal.String()
	}
	return formatDecimal(d.Decimal, places)
}
