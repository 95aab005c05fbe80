package fetcher

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	erc4626ABIJSON = `[{"inputs":[{"internalType":"uint256","name":"assets","type":"uint256"}],"name":"previewDeposit","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`
)

var (
	erc4626ABI abi.ABI
)

func init() {
	parsed, err := abi.JSON(strings.NewReader(erc4626ABIJSON))
	if err != nil {
		panic("failed to parse ERC-4626 ABI: " + err.Error())
	}
	erc4626ABI = parsed
}

// VaultOptions parameterise the on-chain vault fetcher.
type VaultOptions struct {
	RPCURL string
	// Contracts maps a watchlist symbol to its ERC-4626 vault address.
	Contracts map[string]string
	Decimals  int32
	Timeout   time.Duration
}

// Vault prices ERC-4626 vault shares in units of the underlying asset.
type Vault struct {
	opts      VaultOptions
	contracts map[string]common.Address
	logger    zerolog.Logger

	client    *ethclient.Client
	clientMux sync.Mutex

	lastMu sync.Mutex
	last   map[string]decimal.Decimal
}

// NewVault builds a new vault fetcher.
func NewVault(opts VaultOptions, logger zerolog.Logger) *Vault {
	if opts.Decimals <= 0 {
		opts.Decimals = 18
	}
	contracts := make(map[string]common.Address, len(opts.Contracts))
	for symbol, addr := range opts.Contracts {
		contracts[strings.ToUpper(symbol)] = common.HexToAddress(addr)
	}
	return &Vault{
		opts:      opts,
		contracts: contracts,
		logger:    logger.With().Str("component", "vault_fetcher").Logger(),
		last:      make(map[string]decimal.Decimal),
	}
}

// Handles reports whether symbol is a configured vault.
func (v *Vault) Handles(symbol string) bool {
	_, ok := v.contracts[strings.ToUpper(symbol)]
	return ok
}

// Symbols lists the configured vault symbols.
func (v *Vault) Symbols() []string {
	out := make([]string, 0, len(v.contracts))
	for symbol := range v.contracts {
		out = append(out, symbol)
	}
	return out
}

// FetchQuote prices one vault share. ChangePct is relative to the previous
// observation made by this fetcher and zero on the first call.
func (v *Vault) FetchQuote(ctx context.Context, symbol string) (Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if v.opts.RPCURL == "" {
		return Quote{}, errors.New("ethereum rpc url not configured")
	}
	addr, ok := v.contracts[symbol]
	if !ok {
		return Quote{}, fmt.Errorf("%s: %w", symbol, ErrUnknownSymbol)
	}

	timeout := v.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := v.getClient(ctx)
	if err != nil {
		return Quote{}, err
	}

	assets := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(v.opts.Decimals)), nil)

	payload, err := erc4626ABI.Pack("previewDeposit", assets)
	if err != nil {
		return Quote{}, err
	}

	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: payload}, nil)
	if err != nil {
		return Quote{}, err
	}

	outputs, err := erc4626ABI.Unpack("previewDeposit", res)
	if err != nil {
		return Quote{}, err
	}

	if len(outputs) != 1 {
		return Quote{}, errors.New("unexpected previewDeposit response")
	}

	shares, ok := outputs[0].(*big.Int)
	if !ok {
		return Quote{}, errors.New("failed to decode previewDeposit output")
	}

	price, err := sharePrice(shares, v.opts.Decimals)
	if err != nil {
		return Quote{}, fmt.Errorf("%s: %w", symbol, err)
	}

	blockNumber, err := client.BlockNumber(ctx)
	if err != nil {
		return Quote{}, err
	}

	return Quote{
		Symbol:    symbol,
		Price:     price,
		ChangePct: v.observe(symbol, price),
		At:        time.Now().UTC(),
		Source:    "vault",
		Block:     blockNumber,
	}, nil
}

// sharePrice inverts previewDeposit(1 asset) into assets per share.
func sharePrice(shares *big.Int, decimals int32) (decimal.Decimal, error) {
	perAsset := decimal.NewFromBigInt(shares, -decimals)
	if !perAsset.IsPositive() {
		return decimal.Decimal{}, errors.New("previewDeposit returned zero shares")
	}
	return decimal.NewFromInt(1).DivRound(perAsset, 18), nil
}

func (v *Vault) observe(symbol string, price decimal.Decimal) decimal.Decimal {
	v.lastMu.Lock()
	defer v.lastMu.Unlock()

	prev, ok := v.last[symbol]
	v.last[symbol] = price
	if !ok || prev.IsZero() {
		return decimal.Zero
	}
	return price.Sub(prev).Div(prev).Mul(decimal.NewFromInt(100))
}

func (v *Vault) getClient(ctx context.Context) (*ethclient.Client, error) {
	v.clientMux.Lock()
	defer v.clientMux.Unlock()

	if v.client != nil {
		return v.client, nil
	}

	client, err := ethclient.DialContext(ctx, v.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	v.client = client
	return client, nil
}

var _ QuoteFetcher = (*Vault)(nil)
