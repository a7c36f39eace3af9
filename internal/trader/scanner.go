package trader

import (
	"context"
	"sort"
	"time"

	"card-trader-go/internal/config"
	"card-trader-go/internal/ledger"
	"card-trader-go/internal/market"
	"card-trader-go/internal/metrics"
	"go.uber.org/zap"
)

const (
	topOpportunities    = 5
	defaultScanInterval = time.Minute
)

// Opportunity is a watched listing priced below fair value.
type Opportunity struct {
	Set       string  `json:"set"`
	CardID    string  `json:"card_id"`
	CardName  string  `json:"card_name"`
	Price     float64 `json:"price"`
	FairValue float64 `json:"fair_value"`
	Discount  float64 `json:"discount"`
	Image     string  `json:"image,omitempty"`
}

// Scanner watches a fixed list of sets for discounted listings and records
// the prices it finds. It never trades.
type Scanner struct {
	logger  *zap.Logger
	cfg     config.Monitor
	decider *DecisionEngine
	market  market.MarketDataProvider
	ledger  *ledger.Ledger
}

// NewScanner creates a price monitor.
func NewScanner(logger *zap.Logger, cfg config.Monitor, decider *DecisionEngine, md market.MarketDataProvider, l *ledger.Ledger) *Scanner {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = defaultScanInterval
	}
	return &Scanner{
		logger:  logger.Named("scanner"),
		cfg:     cfg,
		decider: decider,
		market:  md,
		ledger:  l,
	}
}

// Run scans immediately and then every scan interval until ctx is done.
func (s *Scanner) Run(ctx context.Context) {
	s.logger.Info("Starting price monitor",
		zap.Duration("interval", s.cfg.ScanInterval),
		zap.Float64("max_price", s.cfg.MaxPrice),
		zap.Strings("sets", s.sets()))

	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		if _, err := s.Scan(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("Scan failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping price monitor...")
			return
		case <-ticker.C:
		}
	}
}

func (s *Scanner) sets() []string {
	sets := s.cfg.WatchedSets
	if s.cfg.SetLimit > 0 && len(sets) > s.cfg.SetLimit {
		sets = sets[:s.cfg.SetLimit]
	}
	return sets
}

// Scan walks the watched sets once and returns the opportunities found,
// most discounted first. Each opportunity's price is appended to the
// price history. A set that cannot be listed is logged and skipped.
func (s *Scanner) Scan(ctx context.Context) ([]Opportunity, error) {
	var opportunities []Opportunity
	seen := make(map[string]bool)

	for _, set := range s.sets() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		listings, err := s.market.ListListings(ctx, set, s.cfg.ListingLimit)
		if err != nil {
			metrics.ProviderErrors.WithLabelValues("listings").Inc()
			s.logger.Warn("Could not scan set", zap.String("set", set), zap.Error(err))
			continue
		}
		s.logger.Debug("Scanned set", zap.String("set", set), zap.Int("listings", len(listings)))

		for _, l := range listings {
			if seen[l.CardID] || (s.cfg.MaxPrice > 0 && l.Price > s.cfg.MaxPrice) {
				continue
			}
			stats, err := s.market.GetPriceStats(ctx, l.CardID)
			if err != nil {
				metrics.ProviderErrors.WithLabelValues("price_stats").Inc()
				s.logger.Debug("No price data for listing", zap.String("set", set), zap.String("card_id", l.CardID), zap.Error(err))
				continue
			}
			c := s.decider.Score(l, stats)
			if !s.decider.Undervalued(c) {
				continue
			}
			seen[l.CardID] = true
			opportunities = append(opportunities, Opportunity{
				Set:       set,
				CardID:    l.CardID,
				CardName:  l.CardName,
				Price:     l.Price,
				FairValue: c.FairValue,
				Discount:  c.Discount,
				Image:     l.Image,
			})
			s.logger.Info("Opportunity",
				zap.String("card_id", l.CardID),
				zap.String("card_name", l.CardName),
				zap.Float64("price", l.Price),
				zap.Float64("fair_value", c.FairValue),
				zap.Float64("discount", c.Discount))
		}
	}

	sort.SliceStable(opportunities, func(i, j int) bool {
		return opportunities[i].Discount > opportunities[j].Discount
	})
	metrics.Opportunities.Add(float64(len(opportunities)))
	s.logger.Info("Scan complete", zap.Int("opportunities", len(opportunities)))

	writeCtx := context.WithoutCancel(ctx)
	for i, o := range opportunities {
		if i < topOpportunities {
			s.logger.Info("Top opportunity",
				zap.Int("rank", i+1),
				zap.String("card_name", o.CardName),
				zap.Float64("price", o.Price),
				zap.Float64("discount", o.Discount))
		}
		if err := s.ledger.RecordPriceObservation(writeCtx, o.CardID, o.Price); err != nil {
			s.logger.Error("Failed to record price", zap.String("card_id", o.CardID), zap.Error(err))
		}
	}
	return opportunities, nil
}
