package fetcher

import (
	"context"
	"errors"
	"strings"
)

// Router sends vault symbols on-chain and everything else to the HTTP API.
type Router struct {
	vault    *Vault
	fallback QuoteFetcher
}

// NewRouter combines the vault fetcher with a fallback. Either may be nil.
func NewRouter(vault *Vault, fallback QuoteFetcher) *Router {
	return &Router{vault: vault, fallback: fallback}
}

// FetchQuote dispatches by symbol.
func (r *Router) FetchQuote(ctx context.Context, symbol string) (Quote, error) {
	if r.vault != nil && r.vault.Handles(symbol) {
		return r.vault.FetchQuote(ctx, symbol)
	}
	if r.fallback == nil {
		return Quote{}, errors.New("no quote source configured for " + strings.ToUpper(symbol))
	}
	return r.fallback.FetchQuote(ctx, symbol)
}

var _ QuoteFetcher = (*Router)(nil)
