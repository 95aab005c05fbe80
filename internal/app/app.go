package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"trading-journal/internal/alerting"
	"trading-journal/internal/config"
	"trading-journal/internal/fetcher"
	"trading-journal/internal/filter"
	"trading-journal/internal/logging"
	"trading-journal/internal/metrics"
	"trading-journal/internal/scheduler"
	"trading-journal/internal/service"
	"trading-journal/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logging.Component(logger, "app"), Out: os.Stdout}
}

func (a *App) newQuotes() fetcher.QuoteFetcher {
	var vault *fetcher.Vault
	if len(a.Config.Vaults.Contracts) > 0 {
		vault = fetcher.NewVault(fetcher.VaultOptions{
			RPCURL:    a.Config.Vaults.RPCURL,
			Contracts: a.Config.Vaults.Contracts,
			Decimals:  a.Config.Vaults.Decimals,
			Timeout:   a.Config.Vaults.RequestTimeout,
		}, a.Logger)
		a.Logger.Info().Strs("symbols", vault.Symbols()).Msg("vault quotes enabled")
	}

	var quotes fetcher.QuoteFetcher
	if a.Config.Quotes.Token != "" {
		quotes = fetcher.NewHTTPQuotes(fetcher.HTTPQuotesOptions{
			BaseURL:   a.Config.Quotes.BaseURL,
			Token:     a.Config.Quotes.Token,
			Timeout:   a.Config.Quotes.RequestTimeout,
			UserAgent: a.Config.Quotes.UserAgent,
		}, a.Logger)
	}

	if vault == nil && quotes == nil {
		return nil
	}
	return fetcher.NewRouter(vault, quotes)
}

func (a *App) newNotifier() alerting.Notifier {
	if !a.Config.Alerting.Enabled {
		return nil
	}
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return alerting.NewLogNotifier(a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	applied, err := storage.ApplyMigrations(ctx, pool, a.Config.Database.MigrationsPath)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if applied > 0 {
		a.Logger.Debug().Int("files", applied).Msg("schema migrations applied")
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// openFilterStore selects the saved filter backend. The PostgreSQL store is
// reused unless redis is configured.
func (a *App) openFilterStore(ctx context.Context, store *storage.Store) (storage.SavedFilterStore, func(), error) {
	if a.Config.Storage.Backend != config.BackendRedis {
		if store == nil {
			return nil, nil, nil
		}
		return store, nil, nil
	}

	client, err := storage.NewRedisClient(ctx, a.Config.Redis)
	if err != nil {
		return nil, nil, err
	}
	closer := func() {
		_ = client.Close()
	}
	return storage.NewRedisFilterStore(client, a.Config.Redis.Prefix), closer, nil
}

// session bundles the resources a single command needs.
type session struct {
	store   *storage.Store
	journal *service.Journal
	closers []func()
}

func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func (a *App) openSession(ctx context.Context, rec service.Metrics) (*session, error) {
	sess := &session{}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	if closeStore != nil {
		sess.closers = append(sess.closers, closeStore)
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; journal collections are empty")
	}
	sess.store = store

	filters, closeFilters, err := a.openFilterStore(ctx, store)
	if err != nil {
		sess.Close()
		return nil, err
	}
	if closeFilters != nil {
		sess.closers = append(sess.closers, closeFilters)
	}

	stores := service.Stores{Filters: filters}
	if store != nil {
		stores.Trades = store
		stores.News = store
		stores.Watchlist = store
	}

	j, err := service.NewJournal(a.Config.Filters, stores, rec, nil, a.Logger)
	if err != nil {
		sess.Close()
		return nil, err
	}
	sess.journal = j
	return sess, nil
}

func (a *App) requireStore(sess *session, action string) error {
	if sess.store == nil {
		return errors.New("database not configured; cannot " + action)
	}
	return nil
}

// RunOptions configure `run`.
type RunOptions struct {
	// Once processes the current bucket and returns instead of looping.
	Once bool
}

// Run executes the watch service.
func (a *App) Run(ctx context.Context, opts RunOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var rec *metrics.Recorder
	var svcMetrics service.Metrics
	if a.Config.Metrics.Enabled {
		rec = metrics.New(nil)
		svcMetrics = rec
	}

	sess, err := a.openSession(ctx, svcMetrics)
	if err != nil {
		return err
	}
	defer sess.Close()

	if rec != nil {
		srv := a.serveMetrics(rec)
		defer func() {
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelShutdown()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	sched := scheduler.New(scheduler.Options{
		Interval:       a.Config.Scheduler.Interval,
		AlignToStart:   a.Config.Scheduler.AlignToBucket,
		StartupDelay:   a.Config.Scheduler.StartupDelay,
		RunImmediately: a.Config.Scheduler.RunImmediately,
	}, a.Logger)

	var watchlist storage.WatchlistStore
	if sess.store != nil {
		watchlist = sess.store
	}

	svc := service.New(a.Config, sched, sess.journal, watchlist, a.newQuotes(), a.newNotifier(), svcMetrics, a.Logger)

	if opts.Once {
		bucket := time.Now().UTC().Truncate(sched.Interval())
		a.Logger.Info().Time("bucket", bucket).Msg("processing single bucket")
		return svc.ProcessTick(ctx, bucket)
	}

	a.Logger.Info().Dur("interval", sched.Interval()).Msg("starting watch service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("watch service stopped")
	return nil
}

func (a *App) serveMetrics(rec *metrics.Recorder) *http.Server {
	path := a.Config.Metrics.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, rec.Handler())
	srv := &http.Server{Addr: a.Config.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		a.Logger.Info().Str("addr", srv.Addr).Str("path", path).Msg("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error().Err(err).Msg("metrics server failed")
		}
	}()
	return srv
}

// QueryOptions configure the trades, news and watchlist commands.
type QueryOptions struct {
	Scope string
	State filter.State
	Sort  filter.SortSpec
	// Saved runs a saved filter instead of State and Sort.
	Saved string
	Limit int
	Facet string
}

// ExportOptions hold parameters for the equity curve export.
type ExportOptions struct {
	State     filter.State
	Saved     string
	PNGPath   string
	MaxPoints int
}

// ImportOptions configure CSV and JSON imports.
type ImportOptions struct {
	Path    string
	Account string
	DryRun  bool
}

// SaveFilterOptions configure `filter save`.
type SaveFilterOptions struct {
	Name   string
	Scope  string
	State  filter.State
	Sort   filter.SortSpec
	Notify bool
}
