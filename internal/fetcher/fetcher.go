package fetcher

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is the latest price observation for a watchlist symbol.
type Quote struct {
	Symbol    string
	Price     decimal.Decimal
	ChangePct decimal.Decimal
	At        time.Time
	Source    string
	// Block is set by on-chain sources only.
	Block uint64
}

// QuoteFetcher retrieves the current quote of a symbol.
type QuoteFetcher interface {
	FetchQuote(ctx context.Context, symbol string) (Quote, error)
}
