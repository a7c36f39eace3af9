package trader

import (
	"fmt"
	"sort"

	"card-trader-go/internal/config"
	"card-trader-go/internal/fairvalue"
	"card-trader-go/internal/ledger"
	"card-trader-go/internal/market"
	"card-trader-go/internal/models"
	"github.com/shopspring/decimal"
)

// Action is what the decision engine wants done with a card.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Decision reasons. They are stable so they can be used as metric labels.
const (
	ReasonUndervalued   = "undervalued"
	ReasonProfitTarget  = "profit target reached"
	ReasonStopLoss      = "stop loss triggered"
	ReasonInRange       = "within trading range"
	ReasonNoPriceData   = "no price data"
	ReasonInvalidPrice  = "invalid listing price"
	ReasonAlreadyHeld   = "already held"
	ReasonLowDiscount   = "discount below threshold"
	ReasonOverPosition  = "exceeds max position size"
	ReasonOverPortfolio = "exceeds portfolio budget"
	ReasonOverCash      = "exceeds available balance"
)

// Decision is the outcome of evaluating one card. Rejected buys are HOLD
// decisions carrying the rejection in Err.
type Decision struct {
	Action          Action
	Reason          string
	CardID          string
	CardName        string
	CardImage       string
	Price           float64
	FairValue       float64
	Discount        float64
	TargetSellPrice float64
	ProfitPct       float64
	Err             error
}

// Candidate is a listing scored against its fair value.
type Candidate struct {
	Listing   market.Listing
	FairValue float64
	Discount  float64
	// Err is set when no usable fair value could be found.
	Err error
}

// Portfolio is the running view of what is held, used to enforce budgets
// while a cycle accepts buys one after another.
type Portfolio struct {
	Value float64
	Held  map[string]bool
	// Cash caps spending when set. Only live trading spends real funds.
	Cash *float64
}

// NewPortfolio builds a Portfolio from the open holdings.
func NewPortfolio(holdings []models.Holding) *Portfolio {
	p := &Portfolio{Held: make(map[string]bool, len(holdings))}
	value := decimal.Zero
	for _, h := range holdings {
		p.Held[h.CardID] = true
		value = value.Add(decimal.NewFromFloat(h.Value()))
	}
	p.Value = value.InexactFloat64()
	return p
}

// WithCash sets the spendable cash cap.
func (p *Portfolio) WithCash(cash float64) *Portfolio {
	p.Cash = &cash
	return p
}

// Add accounts for an accepted buy.
func (p *Portfolio) Add(cardID string, price float64) {
	if p.Held == nil {
		p.Held = make(map[string]bool)
	}
	p.Held[cardID] = true
	p.Value = decimal.NewFromFloat(p.Value).Add(decimal.NewFromFloat(price)).InexactFloat64()
	if p.Cash != nil {
		left := decimal.NewFromFloat(*p.Cash).Sub(decimal.NewFromFloat(price)).InexactFloat64()
		p.Cash = &left
	}
}

func (p *Portfolio) clone() *Portfolio {
	cp := &Portfolio{Value: p.Value, Held: make(map[string]bool, len(p.Held))}
	for id := range p.Held {
		cp.Held[id] = true
	}
	if p.Cash != nil {
		cash := *p.Cash
		cp.Cash = &cash
	}
	return cp
}

// DecisionEngine applies the configured thresholds to listings and holdings.
type DecisionEngine struct {
	cfg config.Trading
}

// NewDecisionEngine creates a decision engine from the trading thresholds.
func NewDecisionEngine(cfg config.Trading) *DecisionEngine {
	return &DecisionEngine{cfg: cfg}
}

// Score computes the fair value and discount of a listing. A nil stats or a
// fair value that is not positive leaves the candidate without price data.
func (d *DecisionEngine) Score(listing market.Listing, stats *market.PriceStats) Candidate {
	c := Candidate{Listing: listing}
	fair := fairvalue.FromStats(stats)
	if fair <= 0 {
		c.Err = fmt.Errorf("%s: %w", listing.CardID, market.ErrDataUnavailable)
		return c
	}
	c.FairValue = fair
	c.Discount = discount(fair, listing.Price)
	return c
}

// Undervalued reports whether a scored candidate clears the discount threshold.
func (d *DecisionEngine) Undervalued(c Candidate) bool {
	return c.Err == nil && c.FairValue > 0 && c.Listing.Price > 0 && c.Discount >= d.cfg.MinDiscount
}

func discount(fair, price float64) float64 {
	f := decimal.NewFromFloat(fair)
	return f.Sub(decimal.NewFromFloat(price)).Div(f).InexactFloat64()
}

// EvaluateBuy decides whether to buy a candidate given the current portfolio.
// The portfolio is not modified.
func (d *DecisionEngine) EvaluateBuy(c Candidate, p *Portfolio) Decision {
	l := c.Listing
	dec := Decision{
		Action:    ActionHold,
		CardID:    l.CardID,
		CardName:  l.CardName,
		CardImage: l.Image,
		Price:     l.Price,
		FairValue: c.FairValue,
		Discount:  c.Discount,
	}

	price := decimal.NewFromFloat(l.Price)
	switch {
	case c.Err != nil || c.FairValue <= 0:
		dec.Reason = ReasonNoPriceData
		dec.Err = c.Err
		if dec.Err == nil {
			dec.Err = market.ErrDataUnavailable
		}
	case l.Price <= 0:
		dec.Reason = ReasonInvalidPrice
	case p.Held[l.CardID]:
		dec.Reason = ReasonAlreadyHeld
		dec.Err = ledger.ErrDuplicateHolding
	case c.Discount < d.cfg.MinDiscount:
		dec.Reason = ReasonLowDiscount
	case l.Price > d.cfg.MaxPositionSize:
		dec.Reason = ReasonOverPosition
		dec.Err = fmt.Errorf("%w: price %.2f above position limit %.2f", ErrInsufficientBudget, l.Price, d.cfg.MaxPositionSize)
	case decimal.NewFromFloat(p.Value).Add(price).GreaterThan(decimal.NewFromFloat(d.cfg.MaxPortfolioSize)):
		dec.Reason = ReasonOverPortfolio
		dec.Err = fmt.Errorf("%w: portfolio %.2f + %.2f above %.2f", ErrInsufficientBudget, p.Value, l.Price, d.cfg.MaxPortfolioSize)
	case p.Cash != nil && price.GreaterThan(decimal.NewFromFloat(*p.Cash)):
		dec.Reason = ReasonOverCash
		dec.Err = fmt.Errorf("%w: price %.2f above balance %.2f", ErrInsufficientBudget, l.Price, *p.Cash)
	default:
		dec.Action = ActionBuy
		dec.Reason = ReasonUndervalued
		dec.TargetSellPrice = price.Mul(decimal.NewFromFloat(1 + d.cfg.ProfitTarget)).Round(2).InexactFloat64()
	}
	return dec
}

// EvaluateSell decides whether to close a holding at currentPrice. A
// currentPrice that is not positive means no price data.
func (d *DecisionEngine) EvaluateSell(h models.Holding, currentPrice float64) Decision {
	dec := Decision{
		Action:   ActionHold,
		CardID:   h.CardID,
		CardName: h.CardName,
		Price:    currentPrice,
	}
	if currentPrice <= 0 || h.BuyPrice <= 0 {
		dec.Reason = ReasonNoPriceData
		dec.Err = market.ErrDataUnavailable
		return dec
	}

	buy := decimal.NewFromFloat(h.BuyPrice)
	dec.ProfitPct = decimal.NewFromFloat(currentPrice).Sub(buy).Div(buy).InexactFloat64()
	switch {
	case dec.ProfitPct >= d.cfg.ProfitTarget:
		dec.Action = ActionSell
		dec.Reason = ReasonProfitTarget
	case dec.ProfitPct <= -d.cfg.StopLoss:
		dec.Action = ActionSell
		dec.Reason = ReasonStopLoss
	default:
		dec.Reason = ReasonInRange
	}
	return dec
}

// RankCandidates returns the candidates ordered by descending discount.
// Candidates with equal discounts keep their input order.
func RankCandidates(candidates []Candidate) []Candidate {
	ranked := make([]Candidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Discount > ranked[j].Discount
	})
	return ranked
}

// PlanBuys ranks the candidates and evaluates them in order against a copy of
// p, so each accepted buy consumes budget for the ones after it.
func (d *DecisionEngine) PlanBuys(candidates []Candidate, p Portfolio) []Decision {
	running := p.clone()
	ranked := RankCandidates(candidates)
	decisions := make([]Decision, 0, len(ranked))
	for _, c := range ranked {
		dec := d.EvaluateBuy(c, running)
		if dec.Action == ActionBuy {
			running.Add(dec.CardID, dec.Price)
		}
		decisions = append(decisions, dec)
	}
	return decisions
}
