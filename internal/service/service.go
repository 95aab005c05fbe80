package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"trading-journal/internal/alerting"
	"trading-journal/internal/config"
	"trading-journal/internal/fetcher"
	"trading-journal/internal/filter"
	"trading-journal/internal/logging"
	"trading-journal/internal/scheduler"
	"trading-journal/internal/storage"
)

// Service runs the watch loop: refresh watchlist quotes, then evaluate
// notifying saved filters and push their matches.
type Service struct {
	scheduler *scheduler.Scheduler
	journal   *Journal
	watchlist storage.WatchlistStore
	quotes    fetcher.QuoteFetcher
	notifier  alerting.Notifier
	metrics   Metrics
	logger    zerolog.Logger

	channels   []string
	alertsOn   bool
	maxPerPush int
	cooldown   time.Duration
	locker     storage.AdvisoryLocker
	lockKey    int64

	sentMu sync.Mutex
	sent   map[string]time.Time
}

// New constructs the watch service. quotes, notifier and metrics may be nil.
func New(cfg *config.Config, sched *scheduler.Scheduler, j *Journal, watchlist storage.WatchlistStore, quotes fetcher.QuoteFetcher, notifier alerting.Notifier, metrics Metrics, logger zerolog.Logger) *Service {
	if metrics == nil {
		metrics = nopMetrics{}
	}

	var locker storage.AdvisoryLocker
	if l, ok := watchlist.(storage.AdvisoryLocker); ok {
		locker = l
	}

	maxPerPush := cfg.Alerting.MaxPerPush
	if maxPerPush <= 0 {
		maxPerPush = 10
	}

	return &Service{
		scheduler:  sched,
		journal:    j,
		watchlist:  watchlist,
		quotes:     quotes,
		notifier:   notifier,
		metrics:    metrics,
		logger:     logging.Component(logger, "service"),
		channels:   cfg.Alerting.Channels,
		alertsOn:   cfg.Alerting.Enabled,
		maxPerPush: maxPerPush,
		cooldown:   cfg.Alerting.Cooldown,
		locker:     locker,
		lockKey:    cfg.Scheduler.AdvisoryLockKey,
		sent:       make(map[string]time.Time),
	}
}

// Run begins the aligned watch loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessTick)
}

// ProcessTick 执行单个时间桶的刷新与检查逻辑。
func (s *Service) ProcessTick(ctx context.Context, bucket time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("bucket", bucket).Msg("skip bucket because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	return s.executeTick(ctx, bucket)
}

func (s *Service) executeTick(ctx context.Context, bucket time.Time) error {
	refreshed, failed := s.RefreshQuotes(ctx)
	s.logger.Info().Time("bucket", bucket).
		Int("refreshed", refreshed).
		Int("failed", failed).
		Msg("watchlist quotes refreshed")

	if !s.alertsOn || s.notifier == nil || s.journal == nil {
		return nil
	}

	filters, err := s.journal.ListFilters(ctx)
	if err != nil {
		return fmt.Errorf("list saved filters: %w", err)
	}

	from, to := s.window(bucket)
	for _, sf := range filters {
		if !sf.Notify {
			continue
		}
		if s.coolingDown(sf.Name, bucket) {
			s.logger.Debug().Str("filter", sf.Name).Time("bucket", bucket).Msg("skip filter during cooldown")
			continue
		}
		note, ok, err := s.evaluate(ctx, sf, bucket, &from, &to)
		if err != nil {
			s.logger.Error().Err(err).Str("filter", sf.Name).Msg("failed to evaluate saved filter")
			continue
		}
		if !ok {
			continue
		}
		if err := s.dispatch(ctx, note); err != nil {
			s.logger.Error().Err(err).Str("filter", sf.Name).Time("bucket", bucket).Msg("failed to dispatch notification")
			continue
		}
		s.markSent(sf.Name, bucket)
	}

	return nil
}

// RefreshQuotes fetches a quote for every watchlist entry and stores it.
// Individual failures are logged and counted, never fatal.
func (s *Service) RefreshQuotes(ctx context.Context) (refreshed, failed int) {
	if s.watchlist == nil || s.quotes == nil {
		return 0, 0
	}
	entries, err := s.watchlist.ListWatchlist(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list watchlist")
		return 0, 0
	}

	for _, entry := range entries {
		q, err := s.quotes.FetchQuote(ctx, entry.Symbol)
		if err != nil {
			failed++
			s.metrics.RecordQuoteError(entry.Symbol)
			s.logger.Warn().Err(err).Str("symbol", entry.Symbol).Msg("quote refresh failed")
			continue
		}
		updated := entry.ApplyQuote(q.Price, q.ChangePct, q.At)
		if err := s.watchlist.UpdateQuote(ctx, updated); err != nil {
			failed++
			s.logger.Error().Err(err).Str("entry", entry.Key()).Msg("failed to store quote")
			continue
		}
		refreshed++
	}
	return refreshed, failed
}

// CheckFilter evaluates a saved filter over its whole scope and, when dispatch
// is set and something matched, pushes the notification.
func (s *Service) CheckFilter(ctx context.Context, name string, dispatch bool) (alerting.Notification, error) {
	if s.journal == nil {
		return alerting.Notification{}, fmt.Errorf("journal not configured")
	}
	sf, err := s.journal.LoadFilter(ctx, name)
	if err != nil {
		return alerting.Notification{}, err
	}
	note, ok, err := s.evaluate(ctx, sf, time.Now().UTC(), nil, nil)
	if err != nil {
		return alerting.Notification{}, err
	}
	if !ok || !dispatch {
		return note, nil
	}
	if s.notifier == nil {
		return note, fmt.Errorf("no notifier configured")
	}
	return note, s.dispatch(ctx, note)
}

// evaluate runs sf and narrows the result to records whose recency timestamp
// falls in [from, to] when both are given. Watchlist filters are not narrowed:
// they describe a condition on current quotes rather than new records.
func (s *Service) evaluate(ctx context.Context, sf filter.SavedFilter, bucket time.Time, from, to *time.Time) (alerting.Notification, bool, error) {
	page, err := s.journal.Query(ctx, sf.Scope, sf.Snapshot(), sf.Sort)
	if err != nil {
		return alerting.Notification{}, false, err
	}

	matched := page.Records
	if from != nil && to != nil && sf.Scope != filter.ScopeWatchlist {
		matched = withinWindow(s.journal, sf.Scope, matched, *from, *to)
	}

	note := alerting.Notification{
		Bucket:   bucket,
		Filter:   sf.Name,
		Scope:    sf.Scope,
		Total:    page.Summary.Total,
		Matched:  len(matched),
		Channels: s.channels,
	}
	for i, r := range matched {
		if i == s.maxPerPush {
			break
		}
		note.Matches = append(note.Matches, alerting.Match{Key: r.Key(), Summary: describe(r)})
	}
	return note, len(matched) > 0, nil
}

func (s *Service) dispatch(ctx context.Context, note alerting.Notification) error {
	err := s.notifier.Notify(ctx, note)
	s.metrics.RecordNotification(err == nil)
	return err
}

func (s *Service) window(bucket time.Time) (time.Time, time.Time) {
	if s.scheduler == nil {
		return bucket, bucket
	}
	from, to := s.scheduler.Window(bucket)
	// DateWindow bounds are inclusive; stop just short of the next window.
	return from, to.Add(-time.Nanosecond)
}

func (s *Service) coolingDown(name string, bucket time.Time) bool {
	if s.cooldown <= 0 {
		return false
	}
	s.sentMu.Lock()
	defer s.sentMu.Unlock()
	last, ok := s.sent[name]
	return ok && bucket.Sub(last) < s.cooldown
}

func (s *Service) markSent(name string, bucket time.Time) {
	s.sentMu.Lock()
	s.sent[name] = bucket
	s.sentMu.Unlock()
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

// withinWindow keeps records whose recency field lies in [from, to].
func withinWindow(j *Journal, scope string, in []filter.Record, from, to time.Time) []filter.Record {
	schema, err := j.Schema(scope)
	if err != nil || schema.Recency == "" {
		return in
	}
	window := filter.DateWindow{From: &from, To: &to}
	p := filter.New[filter.Record](schema, filter.Options{Missing: filter.MissingFail})
	out := make([]filter.Record, 0, len(in))
	for _, r := range in {
		if p.Evaluate(r, schema.Recency, window) {
			out = append(out, r)
		}
	}
	return out
}

type summarizer interface {
	Summary() string
}

func describe(r filter.Record) string {
	if s, ok := r.(summarizer); ok {
		return s.Summary()
	}
	return r.Key()
}
