// Package trader decides, executes and schedules card trades against the ledger.
package trader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"card-trader-go/internal/config"
	"card-trader-go/internal/ledger"
	"card-trader-go/internal/market"
	"card-trader-go/internal/metrics"
	"card-trader-go/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CycleSummary describes one finished trade cycle.
type CycleSummary struct {
	Number    int64            `json:"number"`
	StartedAt time.Time        `json:"started_at"`
	Duration  time.Duration    `json:"duration_ns"`
	Balances  *market.Balances `json:"balances,omitempty"`
	Sells     int              `json:"sells"`
	Buys      int              `json:"buys"`
	Holds     int              `json:"holds"`
	Skipped   int              `json:"skipped"`
	Failures  int              `json:"failures"`
	Error     string           `json:"error,omitempty"`
}

// Status is a snapshot of the engine for the status endpoint.
type Status struct {
	UUID      string        `json:"uuid"`
	Mode      Mode          `json:"mode"`
	StartTime string        `json:"start_time"`
	Uptime    string        `json:"uptime"`
	Running   bool          `json:"running"`
	Cycles    int64         `json:"cycles"`
	LastCycle *CycleSummary `json:"last_cycle,omitempty"`
}

// EngineOption customises an Engine.
type EngineOption func(*Engine)

// WithBalances makes the engine read the wallet balance at the start of each
// cycle. In live mode the stable balance caps spending.
func WithBalances(p market.WalletBalanceProvider, address string) EngineOption {
	return func(e *Engine) {
		e.balances = p
		e.address = address
	}
}

// Engine runs the periodic trade cycle: sell what hit its targets, then buy
// the most discounted listings the budget allows.
type Engine struct {
	UUID      string
	StartTime time.Time

	logger   *zap.Logger
	cfg      config.Trading
	ledger   *ledger.Ledger
	market   market.MarketDataProvider
	balances market.WalletBalanceProvider
	address  string
	decider  *DecisionEngine
	executor Executor

	running atomic.Bool

	mu       sync.Mutex
	cycles   int64
	last     *CycleSummary
	cooldown map[string]int64 // card id -> last cycle it is skipped in
}

// NewEngine creates a new trading engine.
func NewEngine(logger *zap.Logger, cfg config.Trading, l *ledger.Ledger, md market.MarketDataProvider, exec Executor, opts ...EngineOption) *Engine {
	e := &Engine{
		UUID:      uuid.NewString(),
		StartTime: time.Now(),
		logger:    logger.Named("engine"),
		cfg:       cfg,
		ledger:    l,
		market:    md,
		decider:   NewDecisionEngine(cfg),
		executor:  exec,
		cooldown:  make(map[string]int64),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run starts the trading engine's main loop. The first cycle runs immediately.
func (e *Engine) Run(ctx context.Context) {
	interval := e.cfg.TradeInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	e.logger.Info("Starting trade loop",
		zap.String("uuid", e.UUID),
		zap.String("mode", string(e.executor.Mode())),
		zap.Duration("interval", interval))

	e.runOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Stopping trading engine...")
			return
		case <-ticker.C:
			e.runOnce(ctx)
		}
	}
}

func (e *Engine) runOnce(ctx context.Context) {
	if _, err := e.RunCycle(ctx); err != nil {
		if errors.Is(err, ErrCycleInProgress) {
			e.logger.Warn("Previous cycle still running, skipping tick")
			return
		}
		e.logger.Error("Trade cycle failed", zap.Error(err))
	}
}

// RunCycle runs one full cycle. Only one cycle runs at a time; a concurrent
// call returns ErrCycleInProgress. Ledger writes are not cancelled by ctx,
// so a shutdown lets the trade being committed finish.
func (e *Engine) RunCycle(ctx context.Context) (CycleSummary, error) {
	if !e.running.CompareAndSwap(false, true) {
		return CycleSummary{}, ErrCycleInProgress
	}
	defer e.running.Store(false)

	e.mu.Lock()
	e.cycles++
	summary := CycleSummary{Number: e.cycles, StartedAt: time.Now()}
	e.mu.Unlock()

	log := e.logger.With(zap.Int64("cycle", summary.Number))
	log.Info("Trade cycle started")

	err := e.cycle(ctx, log, &summary)

	summary.Duration = time.Since(summary.StartedAt)
	if err != nil {
		summary.Error = err.Error()
	}
	metrics.CycleDuration.Observe(summary.Duration.Seconds())

	e.mu.Lock()
	last := summary
	e.last = &last
	e.mu.Unlock()

	log.Info("Trade cycle complete",
		zap.Int("sells", summary.Sells),
		zap.Int("buys", summary.Buys),
		zap.Int("holds", summary.Holds),
		zap.Int("failures", summary.Failures),
		zap.Duration("duration", summary.Duration))
	return summary, err
}

func (e *Engine) cycle(ctx context.Context, log *zap.Logger, summary *CycleSummary) error {
	writeCtx := context.WithoutCancel(ctx)

	summary.Balances = e.readBalances(ctx, log)

	holdings, err := e.ledger.ListHoldings(ctx)
	if err != nil {
		return fmt.Errorf("could not load holdings: %w", err)
	}
	e.sellPhase(ctx, writeCtx, log, holdings, summary)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	// Sells change the portfolio, so reload before budgeting buys.
	holdings, err = e.ledger.ListHoldings(ctx)
	if err != nil {
		return fmt.Errorf("could not reload holdings: %w", err)
	}
	portfolio := NewPortfolio(holdings)
	if e.executor.Mode() == ModeLive && summary.Balances != nil {
		portfolio.WithCash(summary.Balances.StableToken)
	}
	e.buyPhase(ctx, writeCtx, log, portfolio, summary)
	return ctx.Err()
}

func (e *Engine) readBalances(ctx context.Context, log *zap.Logger) *market.Balances {
	if e.balances == nil || e.address == "" {
		return nil
	}
	b, err := e.balances.GetBalances(ctx, e.address)
	if err != nil {
		metrics.ProviderErrors.WithLabelValues("balances").Inc()
		log.Warn("Could not read wallet balances", zap.Error(err))
		return nil
	}
	log.Info("Wallet balances",
		zap.Float64("gas_token", b.GasToken),
		zap.Float64("stable_token", b.StableToken))
	return &b
}

func (e *Engine) sellPhase(ctx, writeCtx context.Context, log *zap.Logger, holdings []models.Holding, summary *CycleSummary) {
	for _, h := range holdings {
		if ctx.Err() != nil {
			return
		}

		current := 0.0
		stats, err := e.market.GetPriceStats(ctx, h.CardID)
		if err != nil {
			metrics.ProviderErrors.WithLabelValues("price_stats").Inc()
			log.Warn("No price data for holding", zap.String("card_id", h.CardID), zap.Error(err))
		} else {
			current = currentPrice(stats)
		}
		if current > 0 {
			if err := e.ledger.UpdateCurrentPrice(writeCtx, h.CardID, current); err != nil {
				log.Error("Failed to refresh holding price", zap.String("card_id", h.CardID), zap.Error(err))
			}
			h.CurrentPrice = &current
		}

		d := e.decider.EvaluateSell(h, current)
		e.observe(log, d)
		if d.Action != ActionSell {
			summary.Holds++
			continue
		}
		if e.coolingDown(h.CardID, summary.Number) {
			summary.Skipped++
			continue
		}
		if _, err := e.executor.ExecuteSell(writeCtx, d, h); err != nil {
			e.failed(log, d, err, summary)
			continue
		}
		summary.Sells++
	}
}

func (e *Engine) buyPhase(ctx, writeCtx context.Context, log *zap.Logger, portfolio *Portfolio, summary *CycleSummary) {
	listings, err := e.market.ListListings(ctx, e.cfg.Category, e.cfg.ListingLimit)
	if err != nil {
		metrics.ProviderErrors.WithLabelValues("listings").Inc()
		log.Warn("Could not list listings", zap.String("category", e.cfg.Category), zap.Error(err))
		return
	}
	if e.cfg.CandidateLimit > 0 && len(listings) > e.cfg.CandidateLimit {
		listings = listings[:e.cfg.CandidateLimit]
	}

	ranked := RankCandidates(e.scoreAll(ctx, log, listings))
	for _, c := range ranked {
		if ctx.Err() != nil {
			return
		}
		d := e.decider.EvaluateBuy(c, portfolio)
		e.observe(log, d)
		if d.Action != ActionBuy {
			summary.Holds++
			continue
		}
		if e.coolingDown(d.CardID, summary.Number) {
			summary.Skipped++
			continue
		}
		if _, err := e.executor.ExecuteBuy(writeCtx, d); err != nil {
			e.failed(log, d, err, summary)
			continue
		}
		portfolio.Add(d.CardID, d.Price)
		summary.Buys++
	}
}

type scored struct {
	idx       int
	candidate Candidate
}

// scoreAll fetches price stats for every listing concurrently. The result
// keeps the listing order so ties in discount rank deterministically.
func (e *Engine) scoreAll(ctx context.Context, log *zap.Logger, listings []market.Listing) []Candidate {
	var wg sync.WaitGroup
	results := make(chan scored, len(listings))

	for i, l := range listings {
		wg.Add(1)
		go func(idx int, listing market.Listing) {
			defer wg.Done()
			stats, err := e.market.GetPriceStats(ctx, listing.CardID)
			if err != nil {
				metrics.ProviderErrors.WithLabelValues("price_stats").Inc()
				log.Debug("No price data for listing", zap.String("card_id", listing.CardID), zap.Error(err))
				stats = nil
			}
			results <- scored{idx: idx, candidate: e.decider.Score(listing, stats)}
		}(i, l)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	candidates := make([]Candidate, len(listings))
	for r := range results {
		candidates[r.idx] = r.candidate
	}
	return candidates
}

func (e *Engine) observe(log *zap.Logger, d Decision) {
	metrics.DecisionsTotal.WithLabelValues(string(d.Action), d.Reason).Inc()
	fields := []zap.Field{
		zap.String("action", string(d.Action)),
		zap.String("reason", d.Reason),
		zap.String("card_id", d.CardID),
		zap.Float64("price", d.Price),
	}
	if d.FairValue > 0 {
		fields = append(fields, zap.Float64("fair_value", d.FairValue), zap.Float64("discount", d.Discount))
	}
	if d.Err != nil {
		fields = append(fields, zap.Error(d.Err))
	}
	if d.Action == ActionHold {
		log.Debug("Decision", fields...)
		return
	}
	log.Info("Decision", fields...)
}

// failed logs an execution failure. Cards whose live settlement failed sit
// out the next cycle.
func (e *Engine) failed(log *zap.Logger, d Decision, err error, summary *CycleSummary) {
	summary.Failures++
	log.Error("Trade execution failed",
		zap.String("action", string(d.Action)),
		zap.String("card_id", d.CardID),
		zap.Error(err))

	var ee *ExecutionError
	if e.executor.Mode() == ModeLive && errors.As(err, &ee) && !ee.Settled {
		e.mu.Lock()
		e.cooldown[d.CardID] = summary.Number + 1
		e.mu.Unlock()
	}
}

func (e *Engine) coolingDown(cardID string, cycle int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	until, ok := e.cooldown[cardID]
	if !ok {
		return false
	}
	if cycle > until {
		delete(e.cooldown, cardID)
		return false
	}
	return true
}

// Status returns a snapshot of the engine.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Status{
		UUID:      e.UUID,
		Mode:      e.executor.Mode(),
		StartTime: e.StartTime.Format(time.RFC3339),
		Uptime:    time.Since(e.StartTime).Round(time.Second).String(),
		Running:   e.running.Load(),
		Cycles:    e.cycles,
	}
	if e.last != nil {
		last := *e.last
		s.LastCycle = &last
	}
	return s
}

// currentPrice is the mark used for sell decisions: the last sale, or the
// average when no sale is reported.
func currentPrice(stats *market.PriceStats) float64 {
	if stats.LastSale > 0 {
		return stats.LastSale
	}
	return stats.AvgPrice
}
