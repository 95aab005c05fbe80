package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func noopLogger() zerolog.Logger { return zerolog.Nop() }

func TestHTTPQuotesMissingToken(t *testing.T) {
	h := NewHTTPQuotes(HTTPQuotesOptions{}, noopLogger())
	if _, err := h.FetchQuote(context.Background(), "AAPL"); err == nil {
		t.Fatal("缺少 token 时应返回错误")
	}
}

func TestHTTPQuotesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "API limit reached"})
	}))
	defer srv.Close()

	h := NewHTTPQuotes(HTTPQuotesOptions{BaseURL: srv.URL, Token: "t", Timeout: time.Second}, noopLogger())
	if _, err := h.FetchQuote(context.Background(), "AAPL"); err == nil {
		t.Fatal("HTTP 429 应返回错误")
	}
}

func TestHTTPQuotesUnknownSymbol(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"c":0,"d":null,"dp":null,"h":0,"l":0,"o":0,"pc":0,"t":0}`))
	}))
	defer srv.Close()

	h := NewHTTPQuotes(HTTPQuotesOptions{BaseURL: srv.URL, Token: "t"}, noopLogger())
	if _, err := h.FetchQuote(context.Background(), "NOPE"); !errors.Is(err, ErrUnknownSymbol) {
		t.Fatalf("全零响应应视为未知代码, 实际 %v", err)
	}
}

func TestHTTPQuotesSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/quote" {
			t.Errorf("路径不正确: %s", r.URL.Path)
		}
		if r.URL.Query().Get("symbol") != "AAPL" || r.URL.Query().Get("token") != "secret" {
			t.Errorf("查询参数不正确: %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"c":190.5,"d":-2.3,"dp":-1.19,"h":193,"l":189.9,"o":192,"pc":192.8,"t":1717340400}`))
	}))
	defer srv.Close()

	h := NewHTTPQuotes(HTTPQuotesOptions{BaseURL: srv.URL + "/", Token: "secret", UserAgent: "test"}, noopLogger())
	q, err := h.FetchQuote(context.Background(), " aapl ")
	if err != nil {
		t.Fatalf("成功响应不应报错: %v", err)
	}
	if !q.Price.Equal(decimal.RequireFromString("190.5")) {
		t.Fatalf("期望价格 190.5, 实际 %s", q.Price)
	}
	if !q.ChangePct.Equal(decimal.RequireFromString("-1.19")) {
		t.Fatalf("期望涨跌幅 -1.19, 实际 %s", q.ChangePct)
	}
	if q.Symbol != "AAPL" || q.At.Unix() != 1717340400 || q.Source != "http" {
		t.Fatalf("quote 元数据不正确: %+v", q)
	}
}

func TestVaultMissingConfig(t *testing.T) {
	v := NewVault(VaultOptions{}, noopLogger())
	if _, err := v.FetchQuote(context.Background(), "SUSDE"); err == nil {
		t.Fatal("未配置 RPC 时应报错")
	}

	v = NewVault(VaultOptions{RPCURL: "http://localhost"}, noopLogger())
	if _, err := v.FetchQuote(context.Background(), "SUSDE"); !errors.Is(err, ErrUnknownSymbol) {
		t.Fatalf("未配置的合约应返回 ErrUnknownSymbol, 实际 %v", err)
	}
}

func TestSharePrice(t *testing.T) {
	half := new(big.Int).Div(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil), big.NewInt(2))
	price, err := sharePrice(half, 18)
	if err != nil {
		t.Fatalf("不应报错: %v", err)
	}
	if !price.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("0.5 share/asset 应得价格 2, 实际 %s", price)
	}
	if _, err := sharePrice(big.NewInt(0), 18); err == nil {
		t.Fatal("零份额应报错")
	}
}

func TestVaultObserveChange(t *testing.T) {
	v := NewVault(VaultOptions{}, noopLogger())
	if pct := v.observe("SUSDE", decimal.NewFromInt(2)); !pct.IsZero() {
		t.Fatalf("首次观测涨跌幅应为 0, 实际 %s", pct)
	}
	pct := v.observe("SUSDE", decimal.RequireFromString("2.2"))
	if !pct.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("期望 10%%, 实际 %s", pct)
	}
}

type stubFetcher struct{ calls []string }

func (s *stubFetcher) FetchQuote(_ context.Context, symbol string) (Quote, error) {
	s.calls = append(s.calls, symbol)
	return Quote{Symbol: symbol, Source: "stub"}, nil
}

func TestRouterDispatch(t *testing.T) {
	vault := NewVault(VaultOptions{Contracts: map[string]string{"susde": "0x9D39A5DE30e57443BfF2A8307A4256c8797A3497"}}, noopLogger())
	fallback := &stubFetcher{}
	r := NewRouter(vault, fallback)

	if !vault.Handles("SUSDE") {
		t.Fatal("vault 应处理 SUSDE (配置键大小写无关)")
	}
	q, err := r.FetchQuote(context.Background(), "MSFT")
	if err != nil || q.Source != "stub" {
		t.Fatalf("非 vault 代码应走 fallback: %+v %v", q, err)
	}
	if _, err := r.FetchQuote(context.Background(), "susde"); err == nil {
		t.Fatal("vault 未配置 RPC 时应报错, 且不应走 fallback")
	}
	if len(fallback.calls) != 1 {
		t.Fatalf("fallback 调用次数期望 1, 实际 %d", len(fallback.calls))
	}

	if _, err := NewRouter(nil, nil).FetchQuote(context.Background(), "X"); err == nil {
		t.Fatal("无数据源时应报错")
	}
}
