package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const quotePath = "/quote"

// ErrUnknownSymbol is returned when the quote API has no data for a symbol.
var ErrUnknownSymbol = errors.New("unknown symbol")

// HTTPQuotesOptions parameterise the HTTP quote fetcher.
type HTTPQuotesOptions struct {
	BaseURL   string
	Token     string
	Timeout   time.Duration
	UserAgent string
}

// HTTPQuotes fetches equity and FX quotes from a Finnhub-compatible API.
type HTTPQuotes struct {
	opts    HTTPQuotesOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewHTTPQuotes constructs an HTTP quote fetcher.
func NewHTTPQuotes(opts HTTPQuotesOptions, logger zerolog.Logger) *HTTPQuotes {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://finnhub.io/api/v1"
	}

	return &HTTPQuotes{
		opts:    opts,
		logger:  logger.With().Str("component", "quote_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchQuote retrieves the current price and daily change of symbol.
func (h *HTTPQuotes) FetchQuote(ctx context.Context, symbol string) (Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return Quote{}, errors.New("symbol required")
	}
	if h.opts.Token == "" {
		return Quote{}, errors.New("quotes token not configured")
	}

	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("token", h.opts.Token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+quotePath+"?"+query.Encode(), nil)
	if err != nil {
		return Quote{}, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(h.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "tjournal/1.0")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return Quote{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Quote{}, err
	}

	if resp.StatusCode != http.StatusOK {
		return Quote{}, parseHTTPError(resp.StatusCode, payload)
	}

	var res quoteResponse
	if err := json.Unmarshal(payload, &res); err != nil {
		return Quote{}, fmt.Errorf("decode quote: %w", err)
	}

	// The API answers unknown symbols with an all-zero body.
	if res.Current.IsZero() && res.Timestamp == 0 {
		return Quote{}, fmt.Errorf("%s: %w", symbol, ErrUnknownSymbol)
	}

	at := time.Now().UTC()
	if res.Timestamp > 0 {
		at = time.Unix(res.Timestamp, 0).UTC()
	}

	h.logger.Debug().Str("symbol", symbol).Str("price", res.Current.String()).Msg("quote fetched")

	return Quote{
		Symbol:    symbol,
		Price:     res.Current,
		ChangePct: res.ChangePct,
		At:        at,
		Source:    "http",
	}, nil
}

type quoteResponse struct {
	Current       decimal.Decimal `json:"c"`
	Change        decimal.Decimal `json:"d"`
	ChangePct     decimal.Decimal `json:"dp"`
	High          decimal.Decimal `json:"h"`
	Low           decimal.Decimal `json:"l"`
	Open          decimal.Decimal `json:"o"`
	PreviousClose decimal.Decimal `json:"pc"`
	Timestamp     int64           `json:"t"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Error != "" {
			return fmt.Errorf("quote api error (%d): %s", status, apiErr.Error)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("quote api error (%d): %s", status, apiErr.Message)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("quote api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("quote api error (%d)", status)
}

var _ QuoteFetcher = (*HTTPQuotes)(nil)
