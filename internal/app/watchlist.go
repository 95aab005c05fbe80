package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"trading-journal/internal/journal"
)

// WatchlistOptions configure `watchlist add`.
type WatchlistOptions struct {
	Symbol  string
	Name    string
	List    string
	Tags    []string
	Starred bool
	Notes   string
}

// AddWatchlist adds a symbol to a watchlist, or updates it when already present.
func (a *App) AddWatchlist(ctx context.Context, opts WatchlistOptions) error {
	symbol := strings.ToUpper(strings.TrimSpace(opts.Symbol))
	if symbol == "" {
		return errors.New("symbol is required")
	}
	list := strings.TrimSpace(opts.List)
	if list == "" {
		list = "default"
	}

	sess, err := a.openSession(ctx, nil)
	if err != nil {
		return err
	}
	defer sess.Close()
	if err := a.requireStore(sess, "update the watchlist"); err != nil {
		return err
	}

	entry := journal.WatchlistEntry{
		Symbol:  symbol,
		Name:    opts.Name,
		List:    list,
		Tags:    splitTags(strings.Join(opts.Tags, ",")),
		Starred: opts.Starred,
		Notes:   opts.Notes,
		AddedAt: time.Now().UTC(),
	}
	if err := sess.store.UpsertWatchlistEntry(ctx, entry); err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "added %s\n", entry.Key())
	return nil
}
