package journal

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"trading-journal/internal/filter"
)

var now = time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return now }

func rr(v float64) decimal.NullDecimal { return decimal.NewNullDecimal(decimal.NewFromFloat(v)) }

func TestTradePnL(t *testing.T) {
	exit := now
	long := Trade{
		ID: "1", Side: Long, Status: StatusClosed,
		EntryPrice: decimal.NewFromInt(100),
		ExitPrice:  decimal.NewNullDecimal(decimal.NewFromInt(110)),
		Quantity:   decimal.NewFromInt(2),
		Fees:       decimal.NewFromInt(1),
		EntryAt:    now.Add(-time.Hour),
		ExitAt:     &exit,
	}
	pnl, ok := long.PnL()
	if !ok || !pnl.Equal(decimal.NewFromInt(19)) {
		t.Fatalf("long pnl 期望 19, 实际 %s (ok=%v)", pnl, ok)
	}

	short := long
	short.Side = Short
	pnl, _ = short.PnL()
	if !pnl.Equal(decimal.NewFromInt(-21)) {
		t.Fatalf("short pnl 期望 -21, 实际 %s", pnl)
	}

	pct, ok := long.ReturnPct()
	if !ok || !pct.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("return pct 期望 10, 实际 %s", pct)
	}

	held, ok := long.HoldingTime()
	if !ok || held != time.Hour {
		t.Fatalf("holding time 期望 1h, 实际 %s", held)
	}
	if v, ok := long.Field("holdingHours"); !ok || v.Num() != 1 {
		t.Fatalf("holdingHours 字段期望 1, 实际 %v", v.Num())
	}

	open := Trade{ID: "2", Status: StatusOpen, EntryPrice: decimal.NewFromInt(1)}
	if _, ok := open.PnL(); ok {
		t.Fatal("open trade 不应有 pnl")
	}
	if _, ok := open.Field("pnl"); ok {
		t.Fatal("open trade 的 pnl 字段应缺失")
	}
}

func TestTradeMinRiskRewardExcludesMissing(t *testing.T) {
	trades := []Trade{
		{ID: "t1", Symbol: "EURUSD", EntryAt: now.Add(-3 * time.Hour), RiskReward: rr(1.5)},
		{ID: "t2", Symbol: "GBPUSD", EntryAt: now.Add(-2 * time.Hour)},
		{ID: "t3", Symbol: "XAUUSD", EntryAt: now.Add(-1 * time.Hour), RiskReward: rr(3.0)},
	}
	p := filter.New[Trade](TradeSchema, filter.Options{Clock: fixedClock})

	got := p.FilterAndSort(trades, filter.NewState().With("riskReward", filter.AtLeast(2.0)), filter.SortSpec{})
	if len(got) != 1 || got[0].ID != "t3" {
		t.Fatalf("期望仅保留 t3, 实际 %+v", got)
	}
}

func TestTradeDefaultSortNewestFirst(t *testing.T) {
	trades := []Trade{
		{ID: "a", EntryAt: now.Add(-48 * time.Hour)},
		{ID: "b", EntryAt: now.Add(-1 * time.Hour)},
		{ID: "c", EntryAt: now.Add(-5 * time.Hour)},
	}
	p := filter.New[Trade](TradeSchema, filter.Options{Clock: fixedClock})

	got := p.FilterAndSort(trades, filter.NewState(), filter.SortSpec{Key: "unknown"})
	want := []string{"b", "c", "a"}
	for i, tr := range got {
		if tr.ID != want[i] {
			t.Fatalf("位置 %d 期望 %s, 实际 %s", i, want[i], tr.ID)
		}
	}
}

func TestNewsHighImpactTieBreak(t *testing.T) {
	news := []NewsItem{
		{ID: "n1", Title: "Rates", Impact: ImpactHigh, Score: 80, PublishedAt: now.Add(-2 * time.Hour)},
		{ID: "n2", Title: "Jobs", Impact: ImpactMedium, Score: 90, PublishedAt: now.Add(-time.Hour)},
		{ID: "n3", Title: "CPI", Impact: ImpactHigh, Score: 80, PublishedAt: now.Add(-30 * time.Minute)},
		{ID: "n4", Title: "Retail", Impact: ImpactLow, Score: 20, PublishedAt: now},
	}
	p := filter.New[NewsItem](NewsSchema, filter.Options{Clock: fixedClock})
	state := filter.NewState().With("impact", filter.Inclusion{Values: []string{ImpactHigh}})

	got := p.FilterAndSort(news, state, filter.SortSpec{})
	if len(got) != 2 || got[0].ID != "n3" || got[1].ID != "n1" {
		t.Fatalf("期望 [n3 n1], 实际 %+v", got)
	}
}

func TestNewsExcludeKeyword(t *testing.T) {
	news := []NewsItem{
		{ID: "n1", Title: "Bitcoin ETF inflows", Impact: ImpactHigh},
		{ID: "n2", Title: "Oil slides", Description: "BITCOIN miners unaffected", Impact: ImpactHigh},
		{ID: "n3", Title: "Oil slides again", Impact: ImpactHigh},
	}
	p := filter.New[NewsItem](NewsSchema, filter.Options{Clock: fixedClock})
	state := filter.NewState().
		With("impact", filter.Inclusion{Values: []string{ImpactHigh}}).
		With("excludeKeywords", filter.Keyword{Terms: []string{"bitcoin"}, Exclude: true})

	got := p.Filter(news, state)
	if len(got) != 1 || got[0].ID != "n3" {
		t.Fatalf("期望仅保留 n3, 实际 %+v", got)
	}
}

func TestWatchlistEntry(t *testing.T) {
	w := WatchlistEntry{Symbol: "aapl", List: "core", Tags: []string{"tech"}}
	if w.Key() != "CORE:AAPL" {
		t.Fatalf("key 不正确: %s", w.Key())
	}
	if _, ok := w.Field("price"); ok {
		t.Fatal("未刷新的 price 应缺失")
	}

	updated := w.ApplyQuote(decimal.NewFromFloat(190.5), decimal.NewFromFloat(-1.2), now)
	v, ok := updated.Field("price")
	if !ok || v.Num() != 190.5 {
		t.Fatalf("price 应为 190.5, 实际 %v", v.Num())
	}
	if w.Price.Valid {
		t.Fatal("ApplyQuote 不应修改原值")
	}

	p := filter.New[WatchlistEntry](WatchlistSchema, filter.Options{Clock: fixedClock})
	entries := []WatchlistEntry{updated, {Symbol: "msft", List: "core", Starred: true}}
	got := p.Filter(entries, filter.NewState().With("starred", filter.Flag{Only: true}))
	if len(got) != 1 || got[0].Symbol != "msft" {
		t.Fatalf("starred 过滤失败: %+v", got)
	}
}

func TestSummaries(t *testing.T) {
	exit := now
	tr := Trade{
		ID: "1", Symbol: "EURUSD", Side: Long, Status: StatusClosed,
		EntryPrice: decimal.NewFromInt(100),
		ExitPrice:  decimal.NewNullDecimal(decimal.NewFromInt(110)),
		Quantity:   decimal.NewFromInt(2),
		ExitAt:     &exit,
	}
	if got := tr.Summary(); got != "LONG 2 EURUSD @ 100 pnl 20.00" {
		t.Fatalf("trade summary 不正确: %q", got)
	}

	n := NewsItem{Title: "CPI beats", Impact: ImpactHigh, Score: 87}
	if got := n.Summary(); got != "[high 87] CPI beats" {
		t.Fatalf("news summary 不正确: %q", got)
	}

	w := WatchlistEntry{Symbol: "aapl", List: "core"}
	if got := w.Summary(); got != "CORE:AAPL (no quote)" {
		t.Fatalf("watchlist summary 不正确: %q", got)
	}
}
