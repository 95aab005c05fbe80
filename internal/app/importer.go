package app

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"trading-journal/internal/journal"
)

// importNamespace derives stable ids for imported rows that carry none, so a
// re-import updates instead of duplicating.
var importNamespace = uuid.MustParse("6f1c1c64-3b7e-4c55-9a43-0d8d0c3b8e21")

var requiredTradeColumns = []string{"symbol", "side", "entry_at", "entry_price", "quantity"}

// ImportTrades loads trades from a CSV file and upserts them.
func (a *App) ImportTrades(ctx context.Context, opts ImportOptions) error {
	file, err := os.Open(opts.Path)
	if err != nil {
		return err
	}
	defer file.Close()

	trades, err := ParseTradesCSV(file, opts.Account, time.Now().UTC())
	if err != nil {
		return err
	}
	if opts.DryRun {
		for _, t := range trades {
			a.Logger.Info().Str("id", t.ID).Str("trade", t.Summary()).Msg("dry-run: trade parsed")
		}
		fmt.Fprintf(a.Out, "parsed %d trades (dry-run, nothing written)\n", len(trades))
		return nil
	}

	sess, err := a.openSession(ctx, nil)
	if err != nil {
		return err
	}
	defer sess.Close()
	if err := a.requireStore(sess, "import trades"); err != nil {
		return err
	}

	for _, t := range trades {
		if err := sess.store.UpsertTrade(ctx, t); err != nil {
			return err
		}
	}
	fmt.Fprintf(a.Out, "imported %d trades\n", len(trades))
	return nil
}

// ParseTradesCSV reads trades from CSV with a header row. Columns are matched
// by name; unknown columns are ignored. account fills rows without one.
func ParseTradesCSV(r io.Reader, account string, now time.Time) ([]journal.Trade, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("csv is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredTradeColumns {
		if _, ok := columns[name]; !ok {
			return nil, fmt.Errorf("csv missing column %q", name)
		}
	}

	var trades []journal.Trade
	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		get := func(name string) string {
			idx, ok := columns[name]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}

		t, err := parseTradeRow(get, account, now)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		trades = append(trades, t)
	}
	return trades, nil
}

func parseTradeRow(get func(string) string, account string, now time.Time) (journal.Trade, error) {
	t := journal.Trade{
		ID:        get("id"),
		Symbol:    strings.ToUpper(get("symbol")),
		Strategy:  get("strategy"),
		Broker:    get("broker"),
		Account:   get("account"),
		Tags:      splitTags(get("tags")),
		Notes:     get("notes"),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if t.Symbol == "" {
		return journal.Trade{}, errors.New("symbol is empty")
	}
	if t.Account == "" {
		t.Account = account
	}

	switch side := journal.Side(strings.ToLower(get("side"))); side {
	case journal.Long, journal.Short:
		t.Side = side
	case "buy":
		t.Side = journal.Long
	case "sell":
		t.Side = journal.Short
	default:
		return journal.Trade{}, fmt.Errorf("unknown side %q", get("side"))
	}

	var err error
	if t.EntryAt, err = parseTimestamp(get("entry_at")); err != nil {
		return journal.Trade{}, fmt.Errorf("entry_at: %w", err)
	}
	if raw := get("exit_at"); raw != "" {
		exit, err := parseTimestamp(raw)
		if err != nil {
			return journal.Trade{}, fmt.Errorf("exit_at: %w", err)
		}
		t.ExitAt = &exit
	}

	if t.EntryPrice, err = decimal.NewFromString(get("entry_price")); err != nil {
		return journal.Trade{}, fmt.Errorf("entry_price: %w", err)
	}
	if t.Quantity, err = decimal.NewFromString(get("quantity")); err != nil {
		return journal.Trade{}, fmt.Errorf("quantity: %w", err)
	}
	if !t.Quantity.IsPositive() {
		return journal.Trade{}, errors.New("quantity must be positive")
	}
	if raw := get("fees"); raw != "" {
		if t.Fees, err = decimal.NewFromString(raw); err != nil {
			return journal.Trade{}, fmt.Errorf("fees: %w", err)
		}
	}

	for name, dst := range map[string]*decimal.NullDecimal{
		"exit_price":  &t.ExitPrice,
		"stop_loss":   &t.StopLoss,
		"take_profit": &t.TakeProfit,
		"risk_reward": &t.RiskReward,
	} {
		raw := get(name)
		if raw == "" {
			continue
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return journal.Trade{}, fmt.Errorf("%s: %w", name, err)
		}
		*dst = decimal.NewNullDecimal(d)
	}

	switch status := journal.Status(strings.ToLower(get("status"))); status {
	case journal.StatusOpen, journal.StatusClosed:
		t.Status = status
	case "":
		t.Status = journal.StatusOpen
		if t.ExitPrice.Valid && t.ExitAt != nil {
			t.Status = journal.StatusClosed
		}
	default:
		return journal.Trade{}, fmt.Errorf("unknown status %q", get("status"))
	}
	if t.Status == journal.StatusClosed && (!t.ExitPrice.Valid || t.ExitAt == nil) {
		return journal.Trade{}, errors.New("closed trade needs exit_at and exit_price")
	}

	if t.ID == "" {
		seed := strings.Join([]string{t.Account, t.Symbol, string(t.Side), t.EntryAt.UTC().Format(time.RFC3339Nano), t.EntryPrice.String()}, "|")
		t.ID = uuid.NewSHA1(importNamespace, []byte(seed)).String()
	}
	return t, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp %q", raw)
}

func splitTags(raw string) []string {
	raw = strings.NewReplacer("|", ",", ";", ",").Replace(raw)
	return splitList(raw)
}

// newsDocument is the JSON shape accepted by import-news.
type newsDocument struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Source      string   `json:"source"`
	Category    string   `json:"category"`
	Impact      string   `json:"impact"`
	Sentiment   string   `json:"sentiment"`
	Symbols     []string `json:"symbols"`
	Tags        []string `json:"tags"`
	Score       float64  `json:"score"`
	URL         string   `json:"url"`
	PublishedAt string   `json:"published_at"`
}

// ImportNews loads news items from a JSON array and upserts them.
func (a *App) ImportNews(ctx context.Context, opts ImportOptions) error {
	file, err := os.Open(opts.Path)
	if err != nil {
		return err
	}
	defer file.Close()

	items, err := ParseNewsJSON(file, time.Now().UTC())
	if err != nil {
		return err
	}
	if opts.DryRun {
		for _, n := range items {
			a.Logger.Info().Str("id", n.ID).Str("news", n.Summary()).Msg("dry-run: news parsed")
		}
		fmt.Fprintf(a.Out, "parsed %d news items (dry-run, nothing written)\n", len(items))
		return nil
	}

	sess, err := a.openSession(ctx, nil)
	if err != nil {
		return err
	}
	defer sess.Close()
	if err := a.requireStore(sess, "import news"); err != nil {
		return err
	}

	for _, n := range items {
		if err := sess.store.UpsertNews(ctx, n); err != nil {
			return err
		}
	}
	fmt.Fprintf(a.Out, "imported %d news items\n", len(items))
	return nil
}

// ParseNewsJSON decodes a JSON array of news documents.
func ParseNewsJSON(r io.Reader, now time.Time) ([]journal.NewsItem, error) {
	var docs []newsDocument
	if err := json.NewDecoder(r).Decode(&docs); err != nil {
		return nil, fmt.Errorf("decode news: %w", err)
	}

	items := make([]journal.NewsItem, 0, len(docs))
	for i, d := range docs {
		if strings.TrimSpace(d.Title) == "" {
			return nil, fmt.Errorf("item %d: title is empty", i)
		}
		published, err := parseTimestamp(d.PublishedAt)
		if err != nil {
			return nil, fmt.Errorf("item %d: published_at: %w", i, err)
		}
		if d.Score < 0 || d.Score > 100 {
			return nil, fmt.Errorf("item %d: score %.1f outside 0-100", i, d.Score)
		}

		id := d.ID
		if id == "" {
			id = uuid.NewSHA1(importNamespace, []byte(d.Source+"|"+d.URL+"|"+d.Title)).String()
		}
		impact := strings.ToLower(d.Impact)
		if impact == "" {
			impact = journal.ImpactLow
		}

		items = append(items, journal.NewsItem{
			ID:          id,
			Title:       d.Title,
			Description: d.Description,
			Source:      d.Source,
			Category:    d.Category,
			Impact:      impact,
			Sentiment:   strings.ToLower(d.Sentiment),
			Symbols:     upperAll(d.Symbols),
			Tags:        d.Tags,
			Score:       d.Score,
			URL:         d.URL,
			PublishedAt: published,
			FetchedAt:   now,
		})
	}
	return items, nil
}

func upperAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToUpper(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}
