package app

import (
	"context"
	"testing"
	"time"

	"card-trader-go/internal/config"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() config.Config {
	return config.Config{
		Trading:  config.Trading{Category: "pokemon", RequestTimeout: time.Second},
		Market:   config.Market{Provider: "fake"},
		Wallet:   config.Wallet{Address: "0x55bbaE00Eebad7e3bBab0Da5C98C8F4011cEfe64"},
		Redis:    config.Redis{TTL: time.Minute},
		Database: config.Database{DSN: "file::memory:"},
	}
}

func TestNewMarket_Fake(t *testing.T) {
	ctx := context.Background()
	m, err := NewMarket(ctx, testConfig(), zap.NewNop())
	require.NoError(t, err)
	defer m.Close()

	listings, err := m.Data.ListListings(ctx, "pokemon", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, listings)

	b, err := m.Balances.GetBalances(ctx, m.Address)
	require.NoError(t, err)
	assert.Equal(t, 500.0, b.StableToken)
	assert.Equal(t, "0x55bbaE00Eebad7e3bBab0Da5C98C8F4011cEfe64", m.Address)
}

func TestNewMarket_RedisCache(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.Redis.URL = "redis://" + mr.Addr()

	m, err := NewMarket(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	defer m.Close()

	_, err = m.Data.GetPriceStats(ctx, "base-set-4-charizard")
	require.NoError(t, err)
	assert.True(t, mr.Exists("pricestats:base-set-4-charizard"))
}

func TestNewMarket_UnreachableRedisIsNotFatal(t *testing.T) {
	cfg := testConfig()
	cfg.Redis.URL = "redis://127.0.0.1:1"

	m, err := NewMarket(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer m.Close()
	assert.NotNil(t, m.Data)
}

func TestNewMarket_UnknownProvider(t *testing.T) {
	cfg := testConfig()
	cfg.Market.Provider = "ebay"
	_, err := NewMarket(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestOpenLedger(t *testing.T) {
	l, closeFn, err := OpenLedger(config.Database{DSN: "file::memory:"})
	require.NoError(t, err)
	defer closeFn()

	stats, err := l.GetStats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalTrades)
}
