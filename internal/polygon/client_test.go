package polygon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"card-trader-go/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testAddress = "0x55bbaE00Eebad7e3bBab0Da5C98C8F4011cEfe64"

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(&config.Polygon{
		RPCURL:         server.URL,
		StableContract: "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174",
		RateLimit:      1000,
		RateLimitBurst: 10,
	}, zap.NewNop())
}

func decodeRPC(t *testing.T, r *http.Request) rpcRequest {
	var req rpcRequest
	require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
	return req
}

func TestGetBalances(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeRPC(t, r)
		w.Header().Set("Content-Type", "application/json")
		switch req.Method {
		case "eth_getBalance":
			assert.Equal(t, testAddress, req.Params[0])
			// 1.5 * 10^18
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0x14d1120d7b160000"}`))
		case "eth_call":
			call := req.Params[0].(map[string]interface{})
			assert.Equal(t, "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174", call["to"])
			assert.Equal(t, "0x70a08231000000000000000000000000"+"55bbae00eebad7e3bbab0da5c98c8f4011cefe64", call["data"])
			// 250.5 * 10^6
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":2,"result":"0x000000000000000000000000000000000000000000000000000000000eee53a0"}`))
		default:
			t.Errorf("unexpected method %s", req.Method)
		}
	})

	b, err := c.GetBalances(context.Background(), testAddress)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, b.GasToken, 1e-12)
	assert.InDelta(t, 250.5, b.StableToken, 1e-12)
}

func TestGetBalances_StableFailureDegradesToZero(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeRPC(t, r)
		w.Header().Set("Content-Type", "application/json")
		if req.Method == "eth_call" {
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":2,"error":{"code":-32000,"message":"execution reverted"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0x0"}`))
	})

	b, err := c.GetBalances(context.Background(), testAddress)
	require.NoError(t, err)
	assert.Zero(t, b.GasToken)
	assert.Zero(t, b.StableToken)
}

func TestGetBalances_Errors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.GetBalances(context.Background(), testAddress)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "eth_getBalance")

	_, err = c.GetBalances(context.Background(), "not-an-address")
	assert.Error(t, err)
}

func TestScaleHex(t *testing.T) {
	v, err := scaleHex("0x", 6)
	require.NoError(t, err)
	assert.Zero(t, v)

	v, err = scaleHex("0xf4240", 6)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	_, err = scaleHex("0xzz", 6)
	assert.Error(t, err)
}
