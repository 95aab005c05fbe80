package journal

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"trading-journal/internal/filter"
)

// Side is the direction of a trade.
type Side string

const (
	Long  Side = "long"
	Short Side = "short"
)

// Status is the lifecycle state of a trade.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Trade is one journal entry.
type Trade struct {
	ID         string
	Symbol     string
	Side       Side
	Status     Status
	Strategy   string
	Broker     string
	Account    string
	Tags       []string
	EntryAt    time.Time
	ExitAt     *time.Time
	EntryPrice decimal.Decimal
	ExitPrice  decimal.NullDecimal
	Quantity   decimal.Decimal
	Fees       decimal.Decimal
	StopLoss   decimal.NullDecimal
	TakeProfit decimal.NullDecimal
	// RiskReward is the ratio recorded by the trader; it stays invalid when not captured.
	RiskReward decimal.NullDecimal
	Notes      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// PnL returns realised profit for closed trades net of fees.
func (t Trade) PnL() (decimal.Decimal, bool) {
	if t.Status != StatusClosed || !t.ExitPrice.Valid {
		return decimal.Zero, false
	}
	move := t.ExitPrice.Decimal.Sub(t.EntryPrice)
	if t.Side == Short {
		move = move.Neg()
	}
	return move.Mul(t.Quantity).Sub(t.Fees), true
}

// ReturnPct returns the price move in percent of entry, signed by side.
func (t Trade) ReturnPct() (decimal.Decimal, bool) {
	if !t.ExitPrice.Valid || t.EntryPrice.IsZero() {
		return decimal.Zero, false
	}
	pct := t.ExitPrice.Decimal.Sub(t.EntryPrice).Div(t.EntryPrice).Mul(decimal.NewFromInt(100))
	if t.Side == Short {
		pct = pct.Neg()
	}
	return pct, true
}

// HoldingTime returns how long a closed trade was held.
func (t Trade) HoldingTime() (time.Duration, bool) {
	if t.ExitAt == nil {
		return 0, false
	}
	return t.ExitAt.Sub(t.EntryAt), true
}

// Key implements filter.Record.
func (t Trade) Key() string { return t.ID }

// Field implements filter.Record.
func (t Trade) Field(name string) (filter.Value, bool) {
	switch name {
	case "symbol":
		return filter.String(t.Symbol), true
	case "side":
		return filter.String(string(t.Side)), true
	case "status":
		return filter.String(string(t.Status)), true
	case "strategy":
		return optionalString(t.Strategy)
	case "broker":
		return optionalString(t.Broker)
	case "account":
		return optionalString(t.Account)
	case "tags":
		return filter.Set(t.Tags...), true
	case "entryAt":
		return filter.Time(t.EntryAt), true
	case "exitAt":
		if t.ExitAt == nil {
			return filter.Value{}, false
		}
		return filter.Time(*t.ExitAt), true
	case "entryPrice":
		return filter.Number(t.EntryPrice.InexactFloat64()), true
	case "quantity":
		return filter.Number(t.Quantity.InexactFloat64()), true
	case "riskReward":
		return nullNumber(t.RiskReward)
	case "pnl":
		pnl, ok := t.PnL()
		if !ok {
			return filter.Value{}, false
		}
		return filter.Number(pnl.InexactFloat64()), true
	case "returnPct":
		pct, ok := t.ReturnPct()
		if !ok {
			return filter.Value{}, false
		}
		return filter.Number(pct.InexactFloat64()), true
	case "holdingHours":
		held, ok := t.HoldingTime()
		if !ok {
			return filter.Value{}, false
		}
		return filter.Number(held.Hours()), true
	case "winner":
		pnl, ok := t.PnL()
		if !ok {
			return filter.Value{}, false
		}
		return filter.Bool(pnl.IsPositive()), true
	case "notes":
		return optionalString(t.Notes)
	}
	return filter.Value{}, false
}

// Searchable implements filter.Record.
func (t Trade) Searchable() []string {
	return []string{t.Symbol, t.Strategy, t.Notes, strings.Join(t.Tags, " ")}
}

// Summary renders the trade on one line.
func (t Trade) Summary() string {
	line := fmt.Sprintf("%s %s %s @ %s", strings.ToUpper(string(t.Side)), t.Quantity, t.Symbol, t.EntryPrice)
	if pnl, ok := t.PnL(); ok {
		line += fmt.Sprintf(" pnl %s", pnl.StringFixed(2))
	} else {
		line += " (" + string(t.Status) + ")"
	}
	return line
}

// TradeSchema describes trade fields. Trades default to newest entry first.
var TradeSchema = filter.Schema{
	Name: filter.ScopeTrades,
	Fields: map[string]filter.Kind{
		"symbol":       filter.KindString,
		"side":         filter.KindString,
		"status":       filter.KindString,
		"strategy":     filter.KindString,
		"broker":       filter.KindString,
		"account":      filter.KindString,
		"tags":         filter.KindSet,
		"entryAt":      filter.KindTime,
		"exitAt":       filter.KindTime,
		"entryPrice":   filter.KindNumber,
		"quantity":     filter.KindNumber,
		"riskReward":   filter.KindNumber,
		"pnl":          filter.KindNumber,
		"returnPct":    filter.KindNumber,
		"holdingHours": filter.KindNumber,
		"winner":       filter.KindBool,
		"notes":        filter.KindString,
	},
	DefaultSort: filter.SortSpec{Key: "entryAt", Direction: filter.Desc},
	Recency:     "entryAt",
}

func optionalString(s string) (filter.Value, bool) {
	if s == "" {
		return filter.Value{}, false
	}
	return filter.String(s), true
}

func nullNumber(d decimal.NullDecimal) (filter.Value, bool) {
	if !d.Valid {
		return filter.Value{}, false
	}
	return filter.Number(d.Decimal.InexactFloat64()), true
}
