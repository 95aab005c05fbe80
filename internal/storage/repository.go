package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"trading-journal/internal/filter"
	"trading-journal/internal/journal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrNotFound is returned when a named row does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrExists is returned when creating a saved filter whose name is taken.
	ErrExists = errors.New("storage: already exists")
)

const uniqueViolation = "23505"

const (
	upsertTradeSQL = `INSERT INTO trades (
        id, symbol, side, status, strategy, broker, account, tags,
        entry_at, exit_at, entry_price, exit_price, quantity, fees,
        stop_loss, take_profit, risk_reward, notes, created_at, updated_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$19
    )
    ON CONFLICT (id) DO UPDATE
    SET
        symbol      = EXCLUDED.symbol,
        side        = EXCLUDED.side,
        status      = EXCLUDED.status,
        strategy    = EXCLUDED.strategy,
        broker      = EXCLUDED.broker,
        account     = EXCLUDED.account,
        tags        = EXCLUDED.tags,
        entry_at    = EXCLUDED.entry_at,
        exit_at     = EXCLUDED.exit_at,
        entry_price = EXCLUDED.entry_price,
        exit_price  = EXCLUDED.exit_price,
        quantity    = EXCLUDED.quantity,
        fees        = EXCLUDED.fees,
        stop_loss   = EXCLUDED.stop_loss,
        take_profit = EXCLUDED.take_profit,
        risk_reward = EXCLUDED.risk_reward,
        notes       = EXCLUDED.notes,
        updated_at  = EXCLUDED.updated_at;`

	listTradesSQL = `SELECT
        id, symbol, side, status, strategy, broker, account, tags,
        entry_at, exit_at, entry_price::text, exit_price::text, quantity::text, fees::text,
        stop_loss::text, take_profit::text, risk_reward::text, notes, created_at, updated_at
    FROM trades
    WHERE entry_at >= $1
    ORDER BY entry_at DESC;`

	upsertNewsSQL = `INSERT INTO news_items (
        id, title, description, source, category, impact, sentiment,
        symbols, tags, score, url, published_at, fetched_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
    )
    ON CONFLICT (id) DO UPDATE
    SET
        title        = EXCLUDED.title,
        description  = EXCLUDED.description,
        impact       = EXCLUDED.impact,
        sentiment    = EXCLUDED.sentiment,
        symbols      = EXCLUDED.symbols,
        tags         = EXCLUDED.tags,
        score        = EXCLUDED.score,
        fetched_at   = EXCLUDED.fetched_at;`

	listNewsSQL = `SELECT
        id, title, description, source, category, impact, sentiment,
        symbols, tags, score, url, published_at, fetched_at
    FROM news_items
    WHERE published_at >= $1
    ORDER BY published_at DESC;`

	upsertWatchlistSQL = `INSERT INTO watchlist_entries (
        list, symbol, name, tags, starred, notes, added_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    ON CONFLICT (list, symbol) DO UPDATE
    SET
        name    = EXCLUDED.name,
        tags    = EXCLUDED.tags,
        starred = EXCLUDED.starred,
        notes   = EXCLUDED.notes;`

	listWatchlistSQL = `SELECT
        list, symbol, name, tags, starred, price::text, change_pct::text, notes, added_at, updated_at
    FROM watchlist_entries
    ORDER BY list, symbol;`

	updateQuoteSQL = `UPDATE watchlist_entries
    SET price = $3, change_pct = $4, updated_at = $5
    WHERE list = $1 AND symbol = $2;`

	insertSavedFilterSQL = `INSERT INTO saved_filters (
        id, name, scope, state, sort, notify, created_at, last_used_at
    ) VALUES (
        $1::text::uuid,$2,$3,$4,$5,$6,$7,$8
    );`

	savedFilterColumns = `id::text, name, scope, state, sort, notify, created_at, last_used_at`

	getSavedFilterSQL = `SELECT ` + savedFilterColumns + ` FROM saved_filters WHERE name = $1;`

	listSavedFiltersSQL = `SELECT ` + savedFilterColumns + ` FROM saved_filters ORDER BY last_used_at DESC, name;`

	touchSavedFilterSQL = `UPDATE saved_filters SET last_used_at = $2 WHERE name = $1;`

	deleteSavedFilterSQL = `DELETE FROM saved_filters WHERE name = $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// TradeStore persists journal trades.
type TradeStore interface {
	UpsertTrade(ctx context.Context, trade journal.Trade) error
	ListTrades(ctx context.Context, since time.Time) ([]journal.Trade, error)
}

// NewsStore persists news items.
type NewsStore interface {
	UpsertNews(ctx context.Context, item journal.NewsItem) error
	ListNews(ctx context.Context, since time.Time) ([]journal.NewsItem, error)
}

// WatchlistStore persists watchlist entries and their latest quotes.
type WatchlistStore interface {
	UpsertWatchlistEntry(ctx context.Context, entry journal.WatchlistEntry) error
	ListWatchlist(ctx context.Context) ([]journal.WatchlistEntry, error)
	UpdateQuote(ctx context.Context, entry journal.WatchlistEntry) error
}

// SavedFilterStore persists named filter snapshots.
type SavedFilterStore interface {
	CreateSavedFilter(ctx context.Context, sf filter.SavedFilter) error
	GetSavedFilter(ctx context.Context, name string) (filter.SavedFilter, error)
	ListSavedFilters(ctx context.Context) ([]filter.SavedFilter, error)
	TouchSavedFilter(ctx context.Context, name string, at time.Time) error
	DeleteSavedFilter(ctx context.Context, name string) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store is the PostgreSQL implementation of every store interface.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// UpsertTrade inserts or replaces a trade by id.
func (s *Store) UpsertTrade(ctx context.Context, t journal.Trade) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	updated := t.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}

	_, execErr := pool.Exec(ctx, upsertTradeSQL,
		t.ID,
		t.Symbol,
		string(t.Side),
		string(t.Status),
		t.Strategy,
		t.Broker,
		t.Account,
		nonNilStrings(t.Tags),
		t.EntryAt,
		t.ExitAt,
		t.EntryPrice.String(),
		nullDecimalArg(t.ExitPrice),
		t.Quantity.String(),
		t.Fees.String(),
		nullDecimalArg(t.StopLoss),
		nullDecimalArg(t.TakeProfit),
		nullDecimalArg(t.RiskReward),
		t.Notes,
		updated,
	)
	if execErr != nil {
		return fmt.Errorf("upsert trade %s: %w", t.ID, execErr)
	}
	return nil
}

// ListTrades lists trades entered at or after since, newest first.
func (s *Store) ListTrades(ctx context.Context, since time.Time) ([]journal.Trade, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listTradesSQL, since)
	if queryErr != nil {
		return nil, fmt.Errorf("list trades: %w", queryErr)
	}
	defer rows.Close()

	trades := make([]journal.Trade, 0)
	for rows.Next() {
		trade, scanErr := scanTrade(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		trades = append(trades, trade)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return trades, nil
}

// UpsertNews inserts or refreshes a news item by id.
func (s *Store) UpsertNews(ctx context.Context, n journal.NewsItem) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	fetched := n.FetchedAt
	if fetched.IsZero() {
		fetched = time.Now().UTC()
	}

	if _, execErr := pool.Exec(ctx, upsertNewsSQL,
		n.ID,
		n.Title,
		n.Description,
		n.Source,
		n.Category,
		n.Impact,
		n.Sentiment,
		nonNilStrings(n.Symbols),
		nonNilStrings(n.Tags),
		n.Score,
		n.URL,
		n.PublishedAt,
		fetched,
	); execErr != nil {
		return fmt.Errorf("upsert news %s: %w", n.ID, execErr)
	}
	return nil
}

// ListNews lists news published at or after since, newest first.
func (s *Store) ListNews(ctx context.Context, since time.Time) ([]journal.NewsItem, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listNewsSQL, since)
	if queryErr != nil {
		return nil, fmt.Errorf("list news: %w", queryErr)
	}
	defer rows.Close()

	items := make([]journal.NewsItem, 0)
	for rows.Next() {
		var n journal.NewsItem
		if err := rows.Scan(
			&n.ID,
			&n.Title,
			&n.Description,
			&n.Source,
			&n.Category,
			&n.Impact,
			&n.Sentiment,
			&n.Symbols,
			&n.Tags,
			&n.Score,
			&n.URL,
			&n.PublishedAt,
			&n.FetchedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

// UpsertWatchlistEntry adds an entry or updates its descriptive fields.
// Quotes are only written by UpdateQuote.
func (s *Store) UpsertWatchlistEntry(ctx context.Context, w journal.WatchlistEntry) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	added := w.AddedAt
	if added.IsZero() {
		added = time.Now().UTC()
	}

	if _, execErr := pool.Exec(ctx, upsertWatchlistSQL,
		w.List,
		w.Symbol,
		w.Name,
		nonNilStrings(w.Tags),
		w.Starred,
		w.Notes,
		added,
	); execErr != nil {
		return fmt.Errorf("upsert watchlist entry %s: %w", w.Key(), execErr)
	}
	return nil
}

// ListWatchlist returns every entry ordered by list and symbol.
func (s *Store) ListWatchlist(ctx context.Context) ([]journal.WatchlistEntry, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listWatchlistSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list watchlist: %w", queryErr)
	}
	defer rows.Close()

	entries := make([]journal.WatchlistEntry, 0)
	for rows.Next() {
		var (
			w         journal.WatchlistEntry
			price     sql.NullString
			changePct sql.NullString
			updated   sql.NullTime
		)
		if err := rows.Scan(
			&w.List,
			&w.Symbol,
			&w.Name,
			&w.Tags,
			&w.Starred,
			&price,
			&changePct,
			&w.Notes,
			&w.AddedAt,
			&updated,
		); err != nil {
			return nil, err
		}
		if w.Price, err = parseNullDecimal(price, "price"); err != nil {
			return nil, err
		}
		if w.ChangePct, err = parseNullDecimal(changePct, "change pct"); err != nil {
			return nil, err
		}
		if updated.Valid {
			w.UpdatedAt = updated.Time
		}
		entries = append(entries, w)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return entries, nil
}

// UpdateQuote stores the latest price fields of an entry.
func (s *Store) UpdateQuote(ctx context.Context, w journal.WatchlistEntry) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, updateQuoteSQL,
		w.List,
		w.Symbol,
		nullDecimalArg(w.Price),
		nullDecimalArg(w.ChangePct),
		w.UpdatedAt,
	)
	if execErr != nil {
		return fmt.Errorf("update quote %s: %w", w.Key(), execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateSavedFilter stores a new saved filter. Names are unique.
func (s *Store) CreateSavedFilter(ctx context.Context, sf filter.SavedFilter) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	state, err := json.Marshal(sf.State)
	if err != nil {
		return fmt.Errorf("encode filter state: %w", err)
	}
	sort, err := json.Marshal(sf.Sort)
	if err != nil {
		return fmt.Errorf("encode filter sort: %w", err)
	}

	_, execErr := pool.Exec(ctx, insertSavedFilterSQL,
		sf.ID,
		sf.Name,
		sf.Scope,
		state,
		sort,
		sf.Notify,
		sf.CreatedAt,
		sf.LastUsedAt,
	)
	if execErr != nil {
		var pgErr *pgconn.PgError
		if errors.As(execErr, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("saved filter %q: %w", sf.Name, ErrExists)
		}
		return fmt.Errorf("insert saved filter: %w", execErr)
	}
	return nil
}

// GetSavedFilter loads a saved filter by name.
func (s *Store) GetSavedFilter(ctx context.Context, name string) (filter.SavedFilter, error) {
	pool, err := s.getPool()
	if err != nil {
		return filter.SavedFilter{}, err
	}

	sf, scanErr := scanSavedFilter(pool.QueryRow(ctx, getSavedFilterSQL, name))
	if errors.Is(scanErr, pgx.ErrNoRows) {
		return filter.SavedFilter{}, fmt.Errorf("saved filter %q: %w", name, ErrNotFound)
	}
	if scanErr != nil {
		return filter.SavedFilter{}, fmt.Errorf("get saved filter: %w", scanErr)
	}
	return sf, nil
}

// ListSavedFilters lists saved filters, most recently used first.
func (s *Store) ListSavedFilters(ctx context.Context) ([]filter.SavedFilter, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSavedFiltersSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list saved filters: %w", queryErr)
	}
	defer rows.Close()

	filters := make([]filter.SavedFilter, 0)
	for rows.Next() {
		sf, scanErr := scanSavedFilter(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		filters = append(filters, sf)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return filters, nil
}

// TouchSavedFilter records that a saved filter was loaded at the given time.
func (s *Store) TouchSavedFilter(ctx context.Context, name string, at time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, touchSavedFilterSQL, name, at)
	if execErr != nil {
		return fmt.Errorf("touch saved filter: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("saved filter %q: %w", name, ErrNotFound)
	}
	return nil
}

// DeleteSavedFilter removes a saved filter by name.
func (s *Store) DeleteSavedFilter(ctx context.Context, name string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, deleteSavedFilterSQL, name)
	if execErr != nil {
		return fmt.Errorf("delete saved filter: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("saved filter %q: %w", name, ErrNotFound)
	}
	return nil
}

func scanTrade(rows pgx.Rows) (journal.Trade, error) {
	var (
		t          journal.Trade
		side       string
		status     string
		exitAt     sql.NullTime
		entryPrice string
		exitPrice  sql.NullString
		quantity   string
		fees       string
		stopLoss   sql.NullString
		takeProfit sql.NullString
		riskReward sql.NullString
	)

	if err := rows.Scan(
		&t.ID,
		&t.Symbol,
		&side,
		&status,
		&t.Strategy,
		&t.Broker,
		&t.Account,
		&t.Tags,
		&t.EntryAt,
		&exitAt,
		&entryPrice,
		&exitPrice,
		&quantity,
		&fees,
		&stopLoss,
		&takeProfit,
		&riskReward,
		&t.Notes,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		return journal.Trade{}, err
	}

	t.Side = journal.Side(side)
	t.Status = journal.Status(status)
	if exitAt.Valid {
		at := exitAt.Time
		t.ExitAt = &at
	}

	var err error
	if t.EntryPrice, err = decimal.NewFromString(entryPrice); err != nil {
		return journal.Trade{}, fmt.Errorf("parse entry price: %w", err)
	}
	if t.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return journal.Trade{}, fmt.Errorf("parse quantity: %w", err)
	}
	if t.Fees, err = decimal.NewFromString(fees); err != nil {
		return journal.Trade{}, fmt.Errorf("parse fees: %w", err)
	}
	if t.ExitPrice, err = parseNullDecimal(exitPrice, "exit price"); err != nil {
		return journal.Trade{}, err
	}
	if t.StopLoss, err = parseNullDecimal(stopLoss, "stop loss"); err != nil {
		return journal.Trade{}, err
	}
	if t.TakeProfit, err = parseNullDecimal(takeProfit, "take profit"); err != nil {
		return journal.Trade{}, err
	}
	if t.RiskReward, err = parseNullDecimal(riskReward, "risk reward"); err != nil {
		return journal.Trade{}, err
	}

	return t, nil
}

func scanSavedFilter(row pgx.Row) (filter.SavedFilter, error) {
	var (
		sf    filter.SavedFilter
		state []byte
		sort  []byte
	)
	if err := row.Scan(
		&sf.ID,
		&sf.Name,
		&sf.Scope,
		&state,
		&sort,
		&sf.Notify,
		&sf.CreatedAt,
		&sf.LastUsedAt,
	); err != nil {
		return filter.SavedFilter{}, err
	}
	if err := json.Unmarshal(state, &sf.State); err != nil {
		return filter.SavedFilter{}, fmt.Errorf("decode filter state: %w", err)
	}
	if err := json.Unmarshal(sort, &sf.Sort); err != nil {
		return filter.SavedFilter{}, fmt.Errorf("decode filter sort: %w", err)
	}
	return sf, nil
}

func parseNullDecimal(v sql.NullString, what string) (decimal.NullDecimal, error) {
	if !v.Valid {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(v.String)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("parse %s: %w", what, err)
	}
	return decimal.NewNullDecimal(d), nil
}

func nullDecimalArg(d decimal.NullDecimal) interface{} {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

var (
	_ TradeStore       = (*Store)(nil)
	_ NewsStore        = (*Store)(nil)
	_ WatchlistStore   = (*Store)(nil)
	_ SavedFilterStore = (*Store)(nil)
	_ AdvisoryLocker   = (*Store)(nil)
)
