package trader

import (
	"testing"

	"card-trader-go/internal/config"
	"card-trader-go/internal/ledger"
	"card-trader-go/internal/market"
	"card-trader-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultTrading() config.Trading {
	return config.Trading{
		MinDiscount:      0.15,
		ProfitTarget:     0.10,
		StopLoss:         0.20,
		MaxPositionSize:  100,
		MaxPortfolioSize: 500,
		DryRun:           true,
	}
}

func candidate(id string, price, fair float64) Candidate {
	d := NewDecisionEngine(defaultTrading())
	return d.Score(market.Listing{CardID: id, CardName: id, Price: price}, &market.PriceStats{CardID: id, AvgPrice: fair})
}

func TestScore(t *testing.T) {
	d := NewDecisionEngine(defaultTrading())

	c := d.Score(market.Listing{CardID: "a", Price: 80}, &market.PriceStats{AvgPrice: 100})
	require.NoError(t, c.Err)
	assert.Equal(t, 100.0, c.FairValue)
	assert.InDelta(t, 0.20, c.Discount, 1e-12)

	c = d.Score(market.Listing{CardID: "a", Price: 80}, &market.PriceStats{AvgPrice: 0})
	assert.ErrorIs(t, c.Err, market.ErrDataUnavailable)
	assert.Zero(t, c.Discount)

	c = d.Score(market.Listing{CardID: "a", Price: 80}, nil)
	assert.ErrorIs(t, c.Err, market.ErrDataUnavailable)
}

func TestEvaluateBuy(t *testing.T) {
	d := NewDecisionEngine(defaultTrading())

	testCases := []struct {
		name      string
		candidate Candidate
		portfolio *Portfolio
		action    Action
		reason    string
		err       error
	}{
		{"Discount 20% buys", candidate("a", 80, 100), NewPortfolio(nil), ActionBuy, ReasonUndervalued, nil},
		{"Discount 10% holds", candidate("a", 90, 100), NewPortfolio(nil), ActionHold, ReasonLowDiscount, nil},
		{"Exactly at threshold buys", candidate("a", 85, 100), NewPortfolio(nil), ActionBuy, ReasonUndervalued, nil},
		{"Zero fair value has no data", candidate("a", 80, 0), NewPortfolio(nil), ActionHold, ReasonNoPriceData, market.ErrDataUnavailable},
		{"Already held", candidate("a", 80, 100), NewPortfolio([]models.Holding{{CardID: "a", BuyPrice: 70}}), ActionHold, ReasonAlreadyHeld, ledger.ErrDuplicateHolding},
		{"Above position size", candidate("a", 120, 200), NewPortfolio(nil), ActionHold, ReasonOverPosition, ErrInsufficientBudget},
		{"Above portfolio budget", candidate("a", 80, 100), &Portfolio{Value: 450, Held: map[string]bool{}}, ActionHold, ReasonOverPortfolio, ErrInsufficientBudget},
		{"Budget exactly filled", candidate("a", 80, 100), &Portfolio{Value: 420, Held: map[string]bool{}}, ActionBuy, ReasonUndervalued, nil},
		{"Above cash", candidate("a", 80, 100), NewPortfolio(nil).WithCash(50), ActionHold, ReasonOverCash, ErrInsufficientBudget},
		{"Invalid price", candidate("a", 0, 100), NewPortfolio(nil), ActionHold, ReasonInvalidPrice, nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dec := d.EvaluateBuy(tc.candidate, tc.portfolio)
			assert.Equal(t, tc.action, dec.Action)
			assert.Equal(t, tc.reason, dec.Reason)
			if tc.err != nil {
				assert.ErrorIs(t, dec.Err, tc.err)
			} else {
				assert.NoError(t, dec.Err)
			}
		})
	}
}

func TestEvaluateBuy_TargetSellPrice(t *testing.T) {
	d := NewDecisionEngine(defaultTrading())
	dec := d.EvaluateBuy(candidate("base-set-4", 80, 100), NewPortfolio(nil))

	require.Equal(t, ActionBuy, dec.Action)
	assert.Equal(t, "base-set-4", dec.CardID)
	assert.Equal(t, 80.0, dec.Price)
	assert.Equal(t, 88.0, dec.TargetSellPrice)
}

func TestEvaluateSell(t *testing.T) {
	d := NewDecisionEngine(defaultTrading())
	h := models.Holding{CardID: "a", CardName: "A", BuyPrice: 100}

	testCases := []struct {
		name    string
		current float64
		action  Action
		reason  string
	}{
		{"Profit target", 112, ActionSell, ReasonProfitTarget},
		{"Exactly at target", 110, ActionSell, ReasonProfitTarget},
		{"Stop loss", 78, ActionSell, ReasonStopLoss},
		{"Exactly at stop", 80, ActionSell, ReasonStopLoss},
		{"Within range up", 105, ActionHold, ReasonInRange},
		{"Within range down", 85, ActionHold, ReasonInRange},
		{"No price", 0, ActionHold, ReasonNoPriceData},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dec := d.EvaluateSell(h, tc.current)
			assert.Equal(t, tc.action, dec.Action)
			assert.Equal(t, tc.reason, dec.Reason)
		})
	}

	dec := d.EvaluateSell(h, 112)
	assert.InDelta(t, 0.12, dec.ProfitPct, 1e-12)
	dec = d.EvaluateSell(h, 78)
	assert.InDelta(t, -0.22, dec.ProfitPct, 1e-12)
}

func TestRankCandidates_Stable(t *testing.T) {
	in := []Candidate{
		{Listing: market.Listing{CardID: "low"}, Discount: 0.1},
		{Listing: market.Listing{CardID: "tie-1"}, Discount: 0.3},
		{Listing: market.Listing{CardID: "high"}, Discount: 0.5},
		{Listing: market.Listing{CardID: "tie-2"}, Discount: 0.3},
	}
	ranked := RankCandidates(in)

	ids := make([]string, len(ranked))
	for i, c := range ranked {
		ids[i] = c.Listing.CardID
	}
	assert.Equal(t, []string{"high", "tie-1", "tie-2", "low"}, ids)
	assert.Equal(t, "low", in[0].Listing.CardID, "input must not be reordered")
}

func TestPlanBuys_BudgetExhaustion(t *testing.T) {
	cfg := defaultTrading()
	cfg.MaxPositionSize = 500
	d := NewDecisionEngine(cfg)

	cheap := d.Score(market.Listing{CardID: "cheap", Price: 90}, &market.PriceStats{AvgPrice: 128.57142857142858})
	pricey := d.Score(market.Listing{CardID: "pricey", Price: 450}, &market.PriceStats{AvgPrice: 562.5})
	require.InDelta(t, 0.30, cheap.Discount, 1e-9)
	require.InDelta(t, 0.20, pricey.Discount, 1e-9)

	portfolio := NewPortfolio(nil)
	decisions := d.PlanBuys([]Candidate{pricey, cheap}, *portfolio)

	require.Len(t, decisions, 2)
	assert.Equal(t, "cheap", decisions[0].CardID)
	assert.Equal(t, ActionBuy, decisions[0].Action)
	assert.Equal(t, "pricey", decisions[1].CardID)
	assert.Equal(t, ActionHold, decisions[1].Action)
	assert.Equal(t, ReasonOverPortfolio, decisions[1].Reason)
	assert.ErrorIs(t, decisions[1].Err, ErrInsufficientBudget)

	assert.Zero(t, portfolio.Value, "PlanBuys must not change the caller's portfolio")
	assert.Empty(t, portfolio.Held)
}

func TestPortfolio(t *testing.T) {
	current := 120.0
	p := NewPortfolio([]models.Holding{
		{CardID: "a", BuyPrice: 100, CurrentPrice: &current},
		{CardID: "b", BuyPrice: 30.1},
	})
	assert.InDelta(t, 150.1, p.Value, 1e-9)
	assert.True(t, p.Held["a"])
	assert.Nil(t, p.Cash)

	p.WithCash(100)
	p.Add("c", 40.2)
	assert.InDelta(t, 190.3, p.Value, 1e-9)
	assert.True(t, p.Held["c"])
	require.NotNil(t, p.Cash)
	assert.InDelta(t, 59.8, *p.Cash, 1e-9)
}
