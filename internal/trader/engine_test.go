package trader

import (
	"context"
	"errors"
	"testing"
	"time"

	"card-trader-go/internal/config"
	"card-trader-go/internal/ledger"
	"card-trader-go/internal/market"
	"card-trader-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockMarket is a mock implementation of market.MarketDataProvider.
type MockMarket struct {
	mock.Mock
}

func (m *MockMarket) ListListings(ctx context.Context, category string, limit int) ([]market.Listing, error) {
	args := m.Called(category, limit)
	return args.Get(0).([]market.Listing), args.Error(1)
}

func (m *MockMarket) GetPriceStats(ctx context.Context, cardID string) (*market.PriceStats, error) {
	args := m.Called(cardID)
	stats, _ := args.Get(0).(*market.PriceStats)
	return stats, args.Error(1)
}

func engineTrading() config.Trading {
	cfg := defaultTrading()
	cfg.TradeInterval = time.Hour
	cfg.Category = "pokemon"
	cfg.ListingLimit = 100
	cfg.CandidateLimit = 20
	return cfg
}

// seedHolding opens a position the way an executed buy would.
func seedHolding(t *testing.T, l *ledger.Ledger, id string, price float64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, l.InTx(ctx, func(tx *ledger.Ledger) error {
		if err := tx.OpenHolding(ctx, ledger.HoldingInput{CardID: id, CardName: id, BuyPrice: price}); err != nil {
			return err
		}
		_, err := tx.RecordTrade(ctx, ledger.TradeInput{Direction: models.DirectionBuy, CardID: id, CardName: id, PriceUSD: price, Simulated: true})
		return err
	}))
}

func TestEngine_RankedBudgetExhaustion(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	cfg := engineTrading()
	cfg.MaxPositionSize = 500

	fake := market.NewFakeProvider()
	fake.SetListings("pokemon",
		market.Listing{CardID: "pricey", CardName: "Pricey", Price: 450},
		market.Listing{CardID: "cheap", CardName: "Cheap", Price: 90},
	)
	fake.SetPriceStats(market.PriceStats{CardID: "pricey", AvgPrice: 562.5})
	fake.SetPriceStats(market.PriceStats{CardID: "cheap", AvgPrice: 150})

	e := NewEngine(zap.NewNop(), cfg, l, fake, NewSimulatedExecutor(l, zap.NewNop()))
	summary, err := e.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Buys)
	assert.Equal(t, 1, summary.Holds)

	holdings, err := l.ListHoldings(ctx)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, "cheap", holdings[0].CardID)

	stats, err := l.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalTrades)
	assert.InDelta(t, 90.0, stats.PortfolioValue, 1e-9)
}

func TestEngine_SellsOnProfitTarget(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	seedHolding(t, l, "held", 100)
	seedHolding(t, l, "flat", 100)

	fake := market.NewFakeProvider()
	fake.SetPriceStats(market.PriceStats{CardID: "held", AvgPrice: 110, LastSale: 112})
	fake.SetPriceStats(market.PriceStats{CardID: "flat", AvgPrice: 100, LastSale: 103})

	e := NewEngine(zap.NewNop(), engineTrading(), l, fake, NewSimulatedExecutor(l, zap.NewNop()))
	summary, err := e.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Sells)

	_, err = l.GetHolding(ctx, "held")
	assert.ErrorIs(t, err, ledger.ErrHoldingNotFound)

	flat, err := l.GetHolding(ctx, "flat")
	require.NoError(t, err)
	require.NotNil(t, flat.CurrentPrice)
	assert.Equal(t, 103.0, *flat.CurrentPrice)

	trades, err := l.ListTrades(ctx, 1)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, models.DirectionSell, trades[0].Direction)
	require.NotNil(t, trades[0].ProfitUSD)
	assert.InDelta(t, 12.0, *trades[0].ProfitUSD, 1e-9)
	assert.NoError(t, l.VerifyStats(ctx))
}

func TestEngine_StopLoss(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	seedHolding(t, l, "falling", 100)

	fake := market.NewFakeProvider()
	fake.SetPriceStats(market.PriceStats{CardID: "falling", LastSale: 78})

	e := NewEngine(zap.NewNop(), engineTrading(), l, fake, NewSimulatedExecutor(l, zap.NewNop()))
	_, err := e.RunCycle(ctx)
	require.NoError(t, err)

	trades, err := l.ListTrades(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, trades[0].ProfitUSD)
	assert.InDelta(t, -22.0, *trades[0].ProfitUSD, 1e-9)
	assert.Contains(t, trades[0].Notes, ReasonStopLoss)
}

func TestEngine_MissingDataHolds(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	seedHolding(t, l, "held", 100)

	m := new(MockMarket)
	m.On("GetPriceStats", "held").Return(nil, market.ErrDataUnavailable)
	m.On("ListListings", "pokemon", 100).Return([]market.Listing{{CardID: "new", Price: 10}}, nil)
	m.On("GetPriceStats", "new").Return(nil, errors.New("boom"))

	e := NewEngine(zap.NewNop(), engineTrading(), l, m, NewSimulatedExecutor(l, zap.NewNop()))
	summary, err := e.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Buys)
	assert.Equal(t, 0, summary.Sells)
	assert.Equal(t, 2, summary.Holds)
	m.AssertExpectations(t)

	stats, err := l.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalTrades)
	assert.Equal(t, 1, stats.HoldingsCount)
}

func TestEngine_ListingFailureKeepsSells(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	seedHolding(t, l, "held", 100)

	m := new(MockMarket)
	m.On("GetPriceStats", "held").Return(&market.PriceStats{CardID: "held", LastSale: 120}, nil)
	m.On("ListListings", "pokemon", 100).Return([]market.Listing(nil), market.ErrDataUnavailable)

	e := NewEngine(zap.NewNop(), engineTrading(), l, m, NewSimulatedExecutor(l, zap.NewNop()))
	summary, err := e.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Sells)
	m.AssertExpectations(t)
}

func TestEngine_TimeoutDegradesToHold(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	seedHolding(t, l, "held", 100)

	m := new(MockMarket)
	m.On("GetPriceStats", "held").Return(nil, context.DeadlineExceeded).After(50 * time.Millisecond)
	m.On("ListListings", "pokemon", 100).Return([]market.Listing{}, nil)

	e := NewEngine(zap.NewNop(), engineTrading(), l, market.WithTimeout(m, 10*time.Millisecond), NewSimulatedExecutor(l, zap.NewNop()))
	summary, err := e.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Holds)
	assert.Equal(t, 0, summary.Sells)
}

func TestEngine_CycleInProgress(t *testing.T) {
	l := newTestLedger(t)
	e := NewEngine(zap.NewNop(), engineTrading(), l, market.NewFakeProvider(), NewSimulatedExecutor(l, zap.NewNop()))

	e.running.Store(true)
	_, err := e.RunCycle(context.Background())
	assert.ErrorIs(t, err, ErrCycleInProgress)

	e.running.Store(false)
	_, err = e.RunCycle(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, int64(1), e.Status().Cycles)
}

func TestEngine_LiveSettlementCooldown(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	cfg := engineTrading()
	cfg.DryRun = false

	fake := market.NewFakeProvider()
	fake.SetListings("pokemon", market.Listing{CardID: "c1", Price: 80})
	fake.SetPriceStats(market.PriceStats{CardID: "c1", AvgPrice: 100})
	fake.SetBalances(market.Balances{StableToken: 500})

	exec := NewExecutor(cfg, l, nil, zap.NewNop())
	e := NewEngine(zap.NewNop(), cfg, l, fake, exec, WithBalances(fake, "0xabc"))

	first, err := e.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Failures)
	require.NotNil(t, first.Balances)
	assert.Equal(t, 500.0, first.Balances.StableToken)

	second, err := e.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Failures)
	assert.Equal(t, 1, second.Skipped)

	third, err := e.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, third.Failures)

	stats, err := l.GetStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalTrades)
}

func TestEngine_LiveCashCap(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	cfg := engineTrading()
	cfg.DryRun = false

	fake := market.NewFakeProvider()
	fake.SetListings("pokemon", market.Listing{CardID: "c1", Price: 80})
	fake.SetPriceStats(market.PriceStats{CardID: "c1", AvgPrice: 100})
	fake.SetBalances(market.Balances{StableToken: 20})

	settler := new(MockSettler)
	e := NewEngine(zap.NewNop(), cfg, l, fake, NewLiveExecutor(l, settler, zap.NewNop()), WithBalances(fake, "0xabc"))

	summary, err := e.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Buys)
	assert.Equal(t, 1, summary.Holds)
	settler.AssertNotCalled(t, "Settle", mock.Anything, mock.Anything)
}

func TestEngine_RunStopsOnCancel(t *testing.T) {
	l := newTestLedger(t)
	e := NewEngine(zap.NewNop(), engineTrading(), l, market.NewDemoProvider(), NewSimulatedExecutor(l, zap.NewNop()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return e.Status().Cycles == 1 && !e.Status().Running }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("engine did not stop")
	}

	status := e.Status()
	assert.Equal(t, ModeSimulated, status.Mode)
	assert.NotEmpty(t, status.UUID)
	require.NotNil(t, status.LastCycle)
	assert.Greater(t, status.LastCycle.Buys, 0)
}
