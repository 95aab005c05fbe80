package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"trading-journal/internal/alerting"
	"trading-journal/internal/filter"
	"trading-journal/internal/service"
	"trading-journal/internal/storage"
)

// SaveFilter stores the given state under a new name.
func (a *App) SaveFilter(ctx context.Context, opts SaveFilterOptions) error {
	sess, err := a.openSession(ctx, nil)
	if err != nil {
		return err
	}
	defer sess.Close()

	sf, err := sess.journal.SaveFilter(ctx, opts.Name, opts.Scope, opts.State, opts.Sort, opts.Notify)
	if errors.Is(err, storage.ErrNotConfigured) {
		return errors.New("no saved filter backend configured; set database.dsn or storage.backend=redis")
	}
	if err != nil {
		return err
	}

	active := filter.CountActiveFilters(sf.State, sf.State.Search, sess.journal.Defaults(sf.Scope))
	fmt.Fprintf(a.Out, "saved %q (%s, %d active filters, id %s)\n", sf.Name, sf.Scope, active, sf.ID)
	return nil
}

// ListFilters prints every saved filter, most recently used first.
func (a *App) ListFilters(ctx context.Context) error {
	sess, err := a.openSession(ctx, nil)
	if err != nil {
		return err
	}
	defer sess.Close()

	filters, err := sess.journal.ListFilters(ctx)
	if err != nil {
		return err
	}
	if len(filters) == 0 {
		fmt.Fprintln(a.Out, "no saved filters")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Name\tScope\tActive\tSort\tNotify\tLast used (UTC)")
	for _, sf := range filters {
		sortKey := sf.Sort.Key
		if sortKey == "" {
			sortKey = "default"
		}
		fmt.Fprintf(writer, "%s\t%s\t%d\t%s %s\t%t\t%s\n",
			sf.Name,
			sf.Scope,
			filter.CountActiveFilters(sf.State, sf.State.Search, sess.journal.Defaults(sf.Scope)),
			sortKey,
			sf.Sort.Direction,
			sf.Notify,
			sf.LastUsedAt.UTC().Format(time.RFC3339),
		)
	}
	writer.Flush()
	return nil
}

// LoadFilter prints a saved filter as JSON and marks it used.
func (a *App) LoadFilter(ctx context.Context, name string) error {
	sess, err := a.openSession(ctx, nil)
	if err != nil {
		return err
	}
	defer sess.Close()

	sf, err := sess.journal.LoadFilter(ctx, name)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(a.Out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(sf)
}

// DeleteFilter removes a saved filter.
func (a *App) DeleteFilter(ctx context.Context, name string) error {
	sess, err := a.openSession(ctx, nil)
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.journal.DeleteFilter(ctx, name); err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "deleted %q\n", name)
	return nil
}

// CheckFilter evaluates a saved filter now and optionally pushes the result
// through the configured notifier.
func (a *App) CheckFilter(ctx context.Context, name string, dispatch bool) error {
	notifier := a.newNotifier()
	if dispatch && notifier == nil {
		return errors.New("alerting is disabled; set alerting.enabled to use --notify")
	}

	sess, err := a.openSession(ctx, nil)
	if err != nil {
		return err
	}
	defer sess.Close()

	svc := service.New(a.Config, nil, sess.journal, nil, nil, notifier, nil, a.Logger)
	note, err := svc.CheckFilter(ctx, name, dispatch)
	if err != nil {
		return err
	}

	fmt.Fprint(a.Out, alerting.RenderMessage(note))
	if note.Matched == 0 {
		fmt.Fprintln(a.Out, "nothing matched; no notification sent")
	} else if dispatch {
		fmt.Fprintln(a.Out, "notification sent")
	}
	return nil
}
