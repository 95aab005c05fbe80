package journal

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"trading-journal/internal/filter"
)

// WatchlistEntry is a symbol the trader follows.
type WatchlistEntry struct {
	Symbol    string
	Name      string
	List      string
	Tags      []string
	Starred   bool
	Price     decimal.NullDecimal
	ChangePct decimal.NullDecimal
	Notes     string
	AddedAt   time.Time
	// UpdatedAt is the time of the last quote refresh.
	UpdatedAt time.Time
}

// Key is the upper-cased symbol qualified by list name.
func (w WatchlistEntry) Key() string {
	return strings.ToUpper(w.List) + ":" + strings.ToUpper(w.Symbol)
}

func (w WatchlistEntry) Field(name string) (filter.Value, bool) {
	switch name {
	case "symbol":
		return filter.String(w.Symbol), true
	case "name":
		return optionalString(w.Name)
	case "list":
		return optionalString(w.List)
	case "tags":
		return filter.Set(w.Tags...), true
	case "starred":
		return filter.Bool(w.Starred), true
	case "price":
		return nullNumber(w.Price)
	case "changePct":
		return nullNumber(w.ChangePct)
	case "addedAt":
		return filter.Time(w.AddedAt), true
	case "updatedAt":
		if w.UpdatedAt.IsZero() {
			return filter.Value{}, false
		}
		return filter.Time(w.UpdatedAt), true
	}
	return filter.Value{}, false
}

func (w WatchlistEntry) Searchable() []string {
	return []string{w.Symbol, w.Name, w.Notes}
}

// Summary renders the entry with its last quote, if any.
func (w WatchlistEntry) Summary() string {
	if !w.Price.Valid {
		return w.Key() + " (no quote)"
	}
	change := decimal.Zero
	if w.ChangePct.Valid {
		change = w.ChangePct.Decimal
	}
	return fmt.Sprintf("%s %s (%s%%)", w.Key(), w.Price.Decimal.String(), change.StringFixed(2))
}

// ApplyQuote returns a copy of the entry carrying a fresh quote.
func (w WatchlistEntry) ApplyQuote(price, changePct decimal.Decimal, at time.Time) WatchlistEntry {
	out := w
	out.Tags = append([]string(nil), w.Tags...)
	out.Price = decimal.NewNullDecimal(price)
	out.ChangePct = decimal.NewNullDecimal(changePct)
	out.UpdatedAt = at.UTC()
	return out
}

// WatchlistSchema orders entries alphabetically by symbol.
var WatchlistSchema = filter.Schema{
	Name: filter.ScopeWatchlist,
	Fields: map[string]filter.Kind{
		"symbol":    filter.KindString,
		"name":      filter.KindString,
		"list":      filter.KindString,
		"tags":      filter.KindSet,
		"starred":   filter.KindBool,
		"price":     filter.KindNumber,
		"changePct": filter.KindNumber,
		"addedAt":   filter.KindTime,
		"updatedAt": filter.KindTime,
	},
	DefaultSort: filter.SortSpec{Key: "symbol", Direction: filter.Asc},
	Recency:     "updatedAt",
}
