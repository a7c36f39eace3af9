// Package polygon reads wallet balances over Ethereum JSON-RPC.
package polygon

import (
	"context"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"sync/atomic"

	"card-trader-go/internal/config"
	"card-trader-go/internal/market"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	gasDecimals    = 18
	stableDecimals = 6
	// balanceOf(address)
	balanceOfSelector = "0x70a08231"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result string    `json:"result"`
	Error  *rpcError `json:"error"`
}

// Client reads native and stable token balances.
// It implements market.WalletBalanceProvider.
type Client struct {
	client         *resty.Client
	stableContract string
	logger         *zap.Logger
	limiter        *rate.Limiter
	nextID         atomic.Int64
}

var _ market.WalletBalanceProvider = (*Client)(nil)

// NewClient creates a JSON-RPC client for the configured endpoint.
func NewClient(cfg *config.Polygon, logger *zap.Logger) *Client {
	return &Client{
		client:         resty.New().SetBaseURL(cfg.RPCURL).SetHeader("Content-Type", "application/json"),
		stableContract: cfg.StableContract,
		logger:         logger.Named("polygon"),
		limiter:        rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst),
	}
}

// GetBalances returns the gas token balance and the stable token balance of
// address. A failed token call reports a stable balance of 0.
func (c *Client) GetBalances(ctx context.Context, address string) (market.Balances, error) {
	if !addressPattern.MatchString(address) {
		return market.Balances{}, fmt.Errorf("invalid address %q", address)
	}

	rawGas, err := c.call(ctx, "eth_getBalance", address, "latest")
	if err != nil {
		return market.Balances{}, fmt.Errorf("failed to get gas balance: %w", err)
	}
	gas, err := scaleHex(rawGas, gasDecimals)
	if err != nil {
		return market.Balances{}, fmt.Errorf("failed to parse gas balance: %w", err)
	}

	balances := market.Balances{GasToken: gas}

	data := balanceOfSelector + strings.Repeat("0", 24) + strings.ToLower(address[2:])
	rawStable, err := c.call(ctx, "eth_call", map[string]string{"to": c.stableContract, "data": data}, "latest")
	if err != nil {
		c.logger.Warn("Stable token balance unavailable, assuming zero", zap.String("address", address), zap.Error(err))
		return balances, nil
	}
	stable, err := scaleHex(rawStable, stableDecimals)
	if err != nil {
		c.logger.Warn("Could not parse stable token balance, assuming zero", zap.String("raw", rawStable), zap.Error(err))
		return balances, nil
	}
	balances.StableToken = stable
	return balances, nil
}

func (c *Client) call(ctx context.Context, method string, params ...interface{}) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait failed: %w", err)
	}

	body := rpcRequest{JSONRPC: "2.0", ID: c.nextID.Add(1), Method: method, Params: params}
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&rpcResponse{}).
		Post("")
	if err != nil {
		return "", fmt.Errorf("%s: %w", method, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%s: request failed with status %s", method, resp.Status())
	}

	result := resp.Result().(*rpcResponse)
	if result.Error != nil {
		return "", fmt.Errorf("%s: rpc error %d: %s", method, result.Error.Code, result.Error.Message)
	}
	return result.Result, nil
}

// scaleHex converts a 0x-prefixed integer into a float with the given number
// of token decimals.
func scaleHex(raw string, decimals int32) (float64, error) {
	digits := strings.TrimPrefix(strings.TrimPrefix(raw, "0x"), "0X")
	if digits == "" {
		return 0, nil
	}
	n, ok := new(big.Int).SetString(digits, 16)
	if !ok {
		return 0, fmt.Errorf("not a hex quantity: %q", raw)
	}
	return decimal.NewFromBigInt(n, -decimals).InexactFloat64(), nil
}
