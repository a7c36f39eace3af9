// Package app assembles the components shared by the binaries from config.
package app

import (
	"context"
	"fmt"
	"time"

	"card-trader-go/internal/config"
	"card-trader-go/internal/courtyard"
	"card-trader-go/internal/database"
	"card-trader-go/internal/ledger"
	"card-trader-go/internal/market"
	"card-trader-go/internal/polygon"
	"card-trader-go/internal/wallet"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// OpenLedger opens and migrates the database and returns a ledger over it
// together with a function that closes the connection.
func OpenLedger(cfg config.Database) (*ledger.Ledger, func(), error) {
	db, err := database.NewDatabase(cfg.DSN)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}
	return ledger.New(db), closeFn, nil
}

// Market is the market data and balance providers the binaries read from.
type Market struct {
	Data     market.MarketDataProvider
	Balances market.WalletBalanceProvider
	Address  string
	close    func()
}

// Close releases the cache connection, if any.
func (m *Market) Close() {
	if m.close != nil {
		m.close()
	}
}

// NewMarket builds the providers selected by market.provider. Every call is
// bounded by trading.request_timeout. Price stats are cached in Redis when
// redis.url is set and reachable.
func NewMarket(ctx context.Context, cfg config.Config, log *zap.Logger) (*Market, error) {
	m := &Market{}

	var data market.MarketDataProvider
	var balances market.WalletBalanceProvider
	switch cfg.Market.Provider {
	case "fake":
		log.Warn("Using the built-in demo market; no network calls will be made")
		demo := market.NewDemoProvider(cfg.Trading.Category)
		data, balances = demo, demo
	case "courtyard":
		data = courtyard.NewClient(&cfg.Courtyard, log)
		balances = polygon.NewClient(&cfg.Polygon, log)
	default:
		return nil, fmt.Errorf("unknown market provider %q", cfg.Market.Provider)
	}

	if cfg.Redis.URL != "" {
		rdb, err := newRedis(ctx, cfg.Redis.URL)
		if err != nil {
			log.Warn("Price stats cache disabled", zap.Error(err))
		} else {
			log.Info("Caching price stats in Redis", zap.Duration("ttl", cfg.Redis.TTL))
			data = market.NewCachedProvider(data, rdb, cfg.Redis.TTL)
			m.close = func() { rdb.Close() }
		}
	}

	m.Data = market.WithTimeout(data, cfg.Trading.RequestTimeout)
	m.Balances = market.BalancesWithTimeout(balances, cfg.Trading.RequestTimeout)

	address, err := wallet.ResolveAddress(cfg.Wallet.Address, cfg.Wallet.Path)
	if err != nil {
		log.Warn("No wallet address; balances will not be read", zap.Error(err))
	} else {
		m.Address = address
		log.Info("Wallet", zap.String("address", address))
	}
	return m, nil
}

func newRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis unreachable: %w", err)
	}
	return rdb, nil
}
