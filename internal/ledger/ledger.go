// Package ledger is the single writer of trades, holdings, running stats and
// price history.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"card-trader-go/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultTradeLimit is used by ListTrades when no positive limit is given.
const DefaultTradeLimit = 50

// Ledger persists trades and positions. Construct one per process with New
// and hand it to whatever needs it.
type Ledger struct {
	db  *gorm.DB
	now func() time.Time
}

// New creates a Ledger over an already migrated database.
func New(db *gorm.DB) *Ledger {
	return &Ledger{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// TradeInput describes a trade to append.
type TradeInput struct {
	Direction models.Direction
	CardID    string
	CardName  string
	PriceUSD  float64
	ProfitUSD *float64 // sell only
	PriceGas  *float64 // settlement price in the gas token, when known
	Simulated bool
	TxHash    string
	Notes     string
}

func (in TradeInput) validate() error {
	switch {
	case in.Direction != models.DirectionBuy && in.Direction != models.DirectionSell:
		return fmt.Errorf("%w: unknown direction %q", ErrInvalidTrade, in.Direction)
	case in.CardID == "":
		return fmt.Errorf("%w: empty card id", ErrInvalidTrade)
	case in.PriceUSD < 0 || math.IsNaN(in.PriceUSD) || math.IsInf(in.PriceUSD, 0):
		return fmt.Errorf("%w: price %v", ErrInvalidTrade, in.PriceUSD)
	case in.ProfitUSD != nil && in.Direction != models.DirectionSell:
		return fmt.Errorf("%w: profit on a %s trade", ErrInvalidTrade, in.Direction)
	}
	return nil
}

// HoldingInput describes a position to open.
type HoldingInput struct {
	CardID    string
	CardName  string
	CardImage string
	BuyPrice  float64
}

// InTx runs fn against a Ledger bound to a single transaction. Every write fn
// makes is rolled back if fn returns an error.
func (l *Ledger) InTx(ctx context.Context, fn func(tx *Ledger) error) error {
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Ledger{db: tx, now: l.now})
	})
}

// RecordTrade appends a trade and bumps the running counters in the same
// transaction.
func (l *Ledger) RecordTrade(ctx context.Context, in TradeInput) (*models.Trade, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	now := l.now()
	trade := models.Trade{
		Timestamp: now,
		Direction: in.Direction,
		CardID:    in.CardID,
		CardName:  in.CardName,
		PriceUSD:  in.PriceUSD,
		ProfitUSD: in.ProfitUSD,
		PriceGas:  in.PriceGas,
		Status:    models.TradeStatusCompleted,
		Simulated: in.Simulated,
		TxHash:    in.TxHash,
		Notes:     in.Notes,
	}

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&trade).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{
			"total_trades": gorm.Expr("total_trades + ?", 1),
			"total_volume": gorm.Expr("total_volume + ?", in.PriceUSD),
			"updated_at":   now,
		}
		if in.Direction == models.DirectionSell && in.ProfitUSD != nil {
			updates["total_profit"] = gorm.Expr("total_profit + ?", *in.ProfitUSD)
			if *in.ProfitUSD > 0 {
				updates["winning_trades"] = gorm.Expr("winning_trades + ?", 1)
			}
		}

		res := tx.Model(&models.StatsCounter{}).Where("id = ?", models.StatsRowID).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return errors.New("stats row missing")
		}
		return nil
	})
	if err != nil {
		return nil, writeErr("record_trade", err)
	}
	return &trade, nil
}

// OpenHolding opens a position. It fails with ErrDuplicateHolding when the
// card is already held.
func (l *Ledger) OpenHolding(ctx context.Context, in HoldingInput) error {
	if in.CardID == "" {
		return fmt.Errorf("%w: empty card id", ErrInvalidTrade)
	}
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Holding{}).Where("card_id = ?", in.CardID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateHolding
		}
		h := l.newHolding(in)
		return tx.Create(&h).Error
	})
	if errors.Is(err, ErrDuplicateHolding) {
		return fmt.Errorf("open %s: %w", in.CardID, ErrDuplicateHolding)
	}
	return writeErr("open_holding", err)
}

// ReplaceHolding opens a position, overwriting any existing one for the card.
func (l *Ledger) ReplaceHolding(ctx context.Context, in HoldingInput) error {
	if in.CardID == "" {
		return fmt.Errorf("%w: empty card id", ErrInvalidTrade)
	}
	h := l.newHolding(in)
	err := l.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "card_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"card_name", "card_image", "buy_price", "buy_date", "current_price", "quantity"}),
	}).Create(&h).Error
	return writeErr("replace_holding", err)
}

func (l *Ledger) newHolding(in HoldingInput) models.Holding {
	return models.Holding{
		CardID:    in.CardID,
		CardName:  in.CardName,
		CardImage: in.CardImage,
		BuyPrice:  in.BuyPrice,
		BuyDate:   l.now(),
		Quantity:  1,
	}
}

// CloseHolding removes the position for cardID. Closing a card that is not
// held is a no-op.
func (l *Ledger) CloseHolding(ctx context.Context, cardID string) error {
	err := l.db.WithContext(ctx).Where("card_id = ?", cardID).Delete(&models.Holding{}).Error
	return writeErr("close_holding", err)
}

// UpdateCurrentPrice refreshes the mark of an open position. Unknown cards are ignored.
func (l *Ledger) UpdateCurrentPrice(ctx context.Context, cardID string, price float64) error {
	err := l.db.WithContext(ctx).Model(&models.Holding{}).
		Where("card_id = ?", cardID).
		Update("current_price", price).Error
	return writeErr("update_current_price", err)
}

// GetHolding returns the open position for cardID or ErrHoldingNotFound.
func (l *Ledger) GetHolding(ctx context.Context, cardID string) (*models.Holding, error) {
	var h models.Holding
	err := l.db.WithContext(ctx).Where("card_id = ?", cardID).First(&h).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrHoldingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("could not get holding %s: %w", cardID, err)
	}
	return &h, nil
}

// ListHoldings returns all open positions ordered by card id.
func (l *Ledger) ListHoldings(ctx context.Context) ([]models.Holding, error) {
	var holdings []models.Holding
	if err := l.db.WithContext(ctx).Order("card_id asc").Find(&holdings).Error; err != nil {
		return nil, fmt.Errorf("could not list holdings: %w", err)
	}
	return holdings, nil
}

// ListTrades returns up to limit trades, most recent first.
func (l *Ledger) ListTrades(ctx context.Context, limit int) ([]models.Trade, error) {
	if limit <= 0 {
		limit = DefaultTradeLimit
	}
	var trades []models.Trade
	if err := l.db.WithContext(ctx).Order("timestamp desc, id desc").Limit(limit).Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("could not list trades: %w", err)
	}
	return trades, nil
}

// GetStats combines the stored counters with a fold over the current holdings.
func (l *Ledger) GetStats(ctx context.Context) (models.Stats, error) {
	var counter models.StatsCounter
	if err := l.db.WithContext(ctx).First(&counter, models.StatsRowID).Error; err != nil {
		return models.Stats{}, fmt.Errorf("could not read stats: %w", err)
	}
	holdings, err := l.ListHoldings(ctx)
	if err != nil {
		return models.Stats{}, err
	}

	stats := models.Stats{
		TotalTrades:   counter.TotalTrades,
		WinningTrades: counter.WinningTrades,
		TotalProfit:   counter.TotalProfit,
		TotalVolume:   counter.TotalVolume,
		HoldingsCount: len(holdings),
		UpdatedAt:     counter.UpdatedAt,
	}
	for _, h := range holdings {
		stats.PortfolioValue += h.Value()
	}
	if counter.TotalTrades > 0 {
		stats.WinRate = float64(counter.WinningTrades) / float64(counter.TotalTrades)
	}
	return stats, nil
}

// RecordPriceObservation appends a price sample for a card.
func (l *Ledger) RecordPriceObservation(ctx context.Context, cardID string, price float64) error {
	obs := models.PriceObservation{CardID: cardID, PriceUSD: price, Timestamp: l.now()}
	return writeErr("record_price", l.db.WithContext(ctx).Create(&obs).Error)
}

// PriceHistory returns up to limit samples for a card, most recent first.
func (l *Ledger) PriceHistory(ctx context.Context, cardID string, limit int) ([]models.PriceObservation, error) {
	if limit <= 0 {
		limit = DefaultTradeLimit
	}
	var obs []models.PriceObservation
	err := l.db.WithContext(ctx).
		Where("card_id = ?", cardID).
		Order("timestamp desc, id desc").
		Limit(limit).
		Find(&obs).Error
	if err != nil {
		return nil, fmt.Errorf("could not read price history for %s: %w", cardID, err)
	}
	return obs, nil
}

type tradeFold struct {
	TotalTrades   int64
	WinningTrades int64
	TotalProfit   float64
	TotalVolume   float64
}

// VerifyStats recomputes the counters from the trade history and returns
// ErrStatsDrift when they disagree with the stored row.
func (l *Ledger) VerifyStats(ctx context.Context) error {
	var fold tradeFold
	err := l.db.WithContext(ctx).Model(&models.Trade{}).Select(
		"COUNT(*) AS total_trades, " +
			"COALESCE(SUM(CASE WHEN type = 'sell' AND profit_usd > 0 THEN 1 ELSE 0 END), 0) AS winning_trades, " +
			"COALESCE(SUM(CASE WHEN type = 'sell' THEN profit_usd ELSE 0 END), 0) AS total_profit, " +
			"COALESCE(SUM(price_usd), 0) AS total_volume",
	).Scan(&fold).Error
	if err != nil {
		return fmt.Errorf("could not fold trade history: %w", err)
	}

	var counter models.StatsCounter
	if err := l.db.WithContext(ctx).First(&counter, models.StatsRowID).Error; err != nil {
		return fmt.Errorf("could not read stats: %w", err)
	}

	const eps = 1e-6
	if fold.TotalTrades != counter.TotalTrades ||
		fold.WinningTrades != counter.WinningTrades ||
		math.Abs(fold.TotalProfit-counter.TotalProfit) > eps ||
		math.Abs(fold.TotalVolume-counter.TotalVolume) > eps {
		return fmt.Errorf("%w: history=%+v counters={TotalTrades:%d WinningTrades:%d TotalProfit:%v TotalVolume:%v}",
			ErrStatsDrift, fold, counter.TotalTrades, counter.WinningTrades, counter.TotalProfit, counter.TotalVolume)
	}
	return nil
}
