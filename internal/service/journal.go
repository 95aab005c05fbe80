package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"trading-journal/internal/config"
	"trading-journal/internal/filter"
	"trading-journal/internal/journal"
	"trading-journal/internal/logging"
	"trading-journal/internal/storage"
)

// ErrUnknownScope is returned for scopes other than trades, news and watchlist.
var ErrUnknownScope = errors.New("unknown scope")

// Stores groups the persistence the journal reads from. Any store may be nil,
// in which case the matching scope is empty.
type Stores struct {
	Trades    storage.TradeStore
	News      storage.NewsStore
	Watchlist storage.WatchlistStore
	Filters   storage.SavedFilterStore
}

// Page is one filtered, sorted view of a scope.
type Page struct {
	Scope   string
	Records []filter.Record
	Summary filter.Summary
}

// Journal answers filter queries over the stored journal and manages saved filters.
type Journal struct {
	stores    Stores
	trades    *filter.Pipeline[journal.Trade]
	news      *filter.Pipeline[journal.NewsItem]
	watchlist *filter.Pipeline[journal.WatchlistEntry]
	lookback  time.Duration
	clock     func() time.Time
	metrics   Metrics
	logger    zerolog.Logger
}

// NewJournal builds the query service. clock may be nil.
func NewJournal(cfg config.FiltersConfig, stores Stores, metrics Metrics, clock func() time.Time, logger zerolog.Logger) (*Journal, error) {
	if clock == nil {
		clock = time.Now
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}

	tradeOpts, err := PipelineOptions(cfg, journal.TradeSchema, clock)
	if err != nil {
		return nil, err
	}
	newsOpts, err := PipelineOptions(cfg, journal.NewsSchema, clock)
	if err != nil {
		return nil, err
	}
	watchOpts, err := PipelineOptions(cfg, journal.WatchlistSchema, clock)
	if err != nil {
		return nil, err
	}

	return &Journal{
		stores:    stores,
		trades:    filter.New[journal.Trade](journal.TradeSchema, tradeOpts),
		news:      filter.New[journal.NewsItem](journal.NewsSchema, newsOpts),
		watchlist: filter.New[journal.WatchlistEntry](journal.WatchlistSchema, watchOpts),
		lookback:  cfg.Lookback,
		clock:     clock,
		metrics:   metrics,
		logger:    logging.Component(logger, "journal"),
	}, nil
}

// Schema returns the schema of scope.
func (j *Journal) Schema(scope string) (filter.Schema, error) {
	switch scope {
	case filter.ScopeTrades:
		return j.trades.Schema(), nil
	case filter.ScopeNews:
		return j.news.Schema(), nil
	case filter.ScopeWatchlist:
		return j.watchlist.Schema(), nil
	}
	return filter.Schema{}, fmt.Errorf("%q: %w", scope, ErrUnknownScope)
}

// Defaults returns the documented filter defaults of scope.
func (j *Journal) Defaults(scope string) filter.Defaults {
	switch scope {
	case filter.ScopeNews:
		return j.news.Defaults()
	case filter.ScopeWatchlist:
		return j.watchlist.Defaults()
	default:
		return j.trades.Defaults()
	}
}

func (j *Journal) since() time.Time {
	if j.lookback <= 0 {
		return time.Time{}
	}
	return j.clock().Add(-j.lookback).UTC()
}

// Trades loads stored trades and runs the trade pipeline over them.
func (j *Journal) Trades(ctx context.Context, state filter.State, spec filter.SortSpec) ([]journal.Trade, filter.Summary, error) {
	var records []journal.Trade
	if j.stores.Trades != nil {
		var err error
		if records, err = j.stores.Trades.ListTrades(ctx, j.since()); err != nil {
			return nil, filter.Summary{}, fmt.Errorf("load trades: %w", err)
		}
	}
	matched, summary := run(j, filter.ScopeTrades, j.trades, records, state, spec)
	return matched, summary, nil
}

// News loads stored news and runs the news pipeline over them.
func (j *Journal) News(ctx context.Context, state filter.State, spec filter.SortSpec) ([]journal.NewsItem, filter.Summary, error) {
	var records []journal.NewsItem
	if j.stores.News != nil {
		var err error
		if records, err = j.stores.News.ListNews(ctx, j.since()); err != nil {
			return nil, filter.Summary{}, fmt.Errorf("load news: %w", err)
		}
	}
	matched, summary := run(j, filter.ScopeNews, j.news, records, state, spec)
	return matched, summary, nil
}

// Watchlist loads the watchlist and runs the watchlist pipeline over it.
func (j *Journal) Watchlist(ctx context.Context, state filter.State, spec filter.SortSpec) ([]journal.WatchlistEntry, filter.Summary, error) {
	var records []journal.WatchlistEntry
	if j.stores.Watchlist != nil {
		var err error
		if records, err = j.stores.Watchlist.ListWatchlist(ctx); err != nil {
			return nil, filter.Summary{}, fmt.Errorf("load watchlist: %w", err)
		}
	}
	matched, summary := run(j, filter.ScopeWatchlist, j.watchlist, records, state, spec)
	return matched, summary, nil
}

// Query runs state over the collection named by scope.
func (j *Journal) Query(ctx context.Context, scope string, state filter.State, spec filter.SortSpec) (Page, error) {
	page := Page{Scope: scope}
	switch scope {
	case filter.ScopeTrades:
		matched, summary, err := j.Trades(ctx, state, spec)
		if err != nil {
			return page, err
		}
		page.Records, page.Summary = asRecords(matched), summary
	case filter.ScopeNews:
		matched, summary, err := j.News(ctx, state, spec)
		if err != nil {
			return page, err
		}
		page.Records, page.Summary = asRecords(matched), summary
	case filter.ScopeWatchlist:
		matched, summary, err := j.Watchlist(ctx, state, spec)
		if err != nil {
			return page, err
		}
		page.Records, page.Summary = asRecords(matched), summary
	default:
		return page, fmt.Errorf("%q: %w", scope, ErrUnknownScope)
	}
	return page, nil
}

// Facets counts the values of field across the whole stored collection of scope.
func (j *Journal) Facets(ctx context.Context, scope, field string) (map[string]int, error) {
	page, err := j.Query(ctx, scope, filter.NewState(), filter.SortSpec{})
	if err != nil {
		return nil, err
	}
	return filter.Facets(page.Records, field), nil
}

// SaveFilter snapshots state under a new unique name.
func (j *Journal) SaveFilter(ctx context.Context, name, scope string, state filter.State, spec filter.SortSpec, notify bool) (filter.SavedFilter, error) {
	if err := j.requireFilters(); err != nil {
		return filter.SavedFilter{}, err
	}
	if _, err := j.Schema(scope); err != nil {
		return filter.SavedFilter{}, err
	}
	sf, err := filter.NewSavedFilter(name, scope, state, spec, notify, j.clock())
	if err != nil {
		return filter.SavedFilter{}, err
	}
	if err := j.stores.Filters.CreateSavedFilter(ctx, sf); err != nil {
		return filter.SavedFilter{}, err
	}
	j.logger.Info().Str("filter", name).Str("scope", scope).Bool("notify", notify).Msg("saved filter created")
	return sf, nil
}

// LoadFilter returns a saved filter and records that it was used.
func (j *Journal) LoadFilter(ctx context.Context, name string) (filter.SavedFilter, error) {
	if err := j.requireFilters(); err != nil {
		return filter.SavedFilter{}, err
	}
	sf, err := j.stores.Filters.GetSavedFilter(ctx, name)
	if err != nil {
		return filter.SavedFilter{}, err
	}
	now := j.clock()
	if err := j.stores.Filters.TouchSavedFilter(ctx, name, now); err != nil {
		j.logger.Warn().Err(err).Str("filter", name).Msg("failed to touch saved filter")
		return sf, nil
	}
	return sf.Touch(now), nil
}

// ListFilters lists saved filters, most recently used first.
func (j *Journal) ListFilters(ctx context.Context) ([]filter.SavedFilter, error) {
	if err := j.requireFilters(); err != nil {
		return nil, err
	}
	return j.stores.Filters.ListSavedFilters(ctx)
}

// DeleteFilter removes a saved filter.
func (j *Journal) DeleteFilter(ctx context.Context, name string) error {
	if err := j.requireFilters(); err != nil {
		return err
	}
	if err := j.stores.Filters.DeleteSavedFilter(ctx, name); err != nil {
		return err
	}
	j.logger.Info().Str("filter", name).Msg("saved filter deleted")
	return nil
}

// RunSaved loads a saved filter and runs it with its stored sort.
func (j *Journal) RunSaved(ctx context.Context, name string) (filter.SavedFilter, Page, error) {
	sf, err := j.LoadFilter(ctx, name)
	if err != nil {
		return filter.SavedFilter{}, Page{}, err
	}
	page, err := j.Query(ctx, sf.Scope, sf.Snapshot(), sf.Sort)
	return sf, page, err
}

func (j *Journal) requireFilters() error {
	if j.stores.Filters == nil {
		return storage.ErrNotConfigured
	}
	return nil
}

func run[R filter.Record](j *Journal, scope string, p *filter.Pipeline[R], in []R, state filter.State, spec filter.SortSpec) ([]R, filter.Summary) {
	start := time.Now()
	matched := p.FilterAndSort(in, state, spec)
	j.metrics.RecordPipeline(scope, len(matched), time.Since(start))
	summary := p.Summarize(in, matched, state)
	j.logger.Debug().Str("scope", scope).
		Int("total", summary.Total).
		Int("matched", summary.Matched).
		Int("active_filters", summary.ActiveFilters).
		Msg("pipeline run")
	return matched, summary
}

func asRecords[R filter.Record](in []R) []filter.Record {
	out := make([]filter.Record, len(in))
	for i, r := range in {
		out[i] = r
	}
	return out
}
