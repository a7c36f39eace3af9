package trader

import (
	"context"
	"errors"
	"fmt"

	"card-trader-go/internal/config"
	"card-trader-go/internal/ledger"
	"card-trader-go/internal/metrics"
	"card-trader-go/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Mode names how an executor settles trades.
type Mode string

const (
	ModeSimulated Mode = "simulated"
	ModeLive      Mode = "live"
)

const simulatedPrefix = "[SIMULATED] "

// Executor turns BUY and SELL decisions into ledger state. Each call commits
// the holding change and the trade together or not at all.
type Executor interface {
	Mode() Mode
	ExecuteBuy(ctx context.Context, d Decision) (*models.Trade, error)
	ExecuteSell(ctx context.Context, d Decision, h models.Holding) (*models.Trade, error)
}

// NewExecutor picks the executor for cfg.DryRun. A nil settler means live
// trades are refused.
func NewExecutor(cfg config.Trading, l *ledger.Ledger, settler Settler, logger *zap.Logger) Executor {
	if cfg.DryRun {
		return NewSimulatedExecutor(l, logger)
	}
	if settler == nil {
		settler = UnsupportedSettler{}
	}
	return NewLiveExecutor(l, settler, logger)
}

// SimulatedExecutor records trades in the ledger without moving funds.
type SimulatedExecutor struct {
	ledger *ledger.Ledger
	logger *zap.Logger
}

// NewSimulatedExecutor creates a dry-run executor.
func NewSimulatedExecutor(l *ledger.Ledger, logger *zap.Logger) *SimulatedExecutor {
	return &SimulatedExecutor{ledger: l, logger: logger.Named("executor")}
}

func (e *SimulatedExecutor) Mode() Mode { return ModeSimulated }

func (e *SimulatedExecutor) ExecuteBuy(ctx context.Context, d Decision) (*models.Trade, error) {
	trade, err := commitBuy(ctx, e.ledger, d, true, Settlement{})
	if err != nil {
		return nil, err
	}
	e.logger.Info("Simulated buy",
		zap.String("card_id", d.CardID),
		zap.Float64("price", d.Price),
		zap.Float64("target", d.TargetSellPrice))
	return trade, nil
}

func (e *SimulatedExecutor) ExecuteSell(ctx context.Context, d Decision, h models.Holding) (*models.Trade, error) {
	trade, err := commitSell(ctx, e.ledger, d, h, true, Settlement{})
	if err != nil {
		return nil, err
	}
	e.logger.Info("Simulated sell",
		zap.String("card_id", d.CardID),
		zap.Float64("price", d.Price),
		zap.Float64p("profit", trade.ProfitUSD))
	return trade, nil
}

// LiveExecutor settles through a Settler before committing to the ledger.
type LiveExecutor struct {
	ledger  *ledger.Ledger
	settler Settler
	logger  *zap.Logger
}

// NewLiveExecutor creates an executor that spends real funds.
func NewLiveExecutor(l *ledger.Ledger, settler Settler, logger *zap.Logger) *LiveExecutor {
	return &LiveExecutor{ledger: l, settler: settler, logger: logger.Named("executor")}
}

func (e *LiveExecutor) Mode() Mode { return ModeLive }

func (e *LiveExecutor) ExecuteBuy(ctx context.Context, d Decision) (*models.Trade, error) {
	s, err := e.settler.Settle(ctx, models.DirectionBuy, d)
	if err != nil {
		metrics.ExecutionFailures.WithLabelValues(string(models.DirectionBuy)).Inc()
		return nil, &ExecutionError{CardID: d.CardID, Side: models.DirectionBuy, Err: err}
	}
	trade, err := commitBuy(ctx, e.ledger, d, false, s)
	if err != nil {
		e.markSettled(err, s)
		return nil, err
	}
	return trade, nil
}

func (e *LiveExecutor) ExecuteSell(ctx context.Context, d Decision, h models.Holding) (*models.Trade, error) {
	s, err := e.settler.Settle(ctx, models.DirectionSell, d)
	if err != nil {
		metrics.ExecutionFailures.WithLabelValues(string(models.DirectionSell)).Inc()
		return nil, &ExecutionError{CardID: d.CardID, Side: models.DirectionSell, Err: err}
	}
	trade, err := commitSell(ctx, e.ledger, d, h, false, s)
	if err != nil {
		e.markSettled(err, s)
		return nil, err
	}
	return trade, nil
}

// markSettled flags a commit failure that happened after funds moved. The
// ledger no longer matches the wallet and needs manual reconciliation.
func (e *LiveExecutor) markSettled(err error, s Settlement) {
	var ee *ExecutionError
	if errors.As(err, &ee) {
		ee.Settled = true
		e.logger.Error("Settled trade could not be recorded",
			zap.String("card_id", ee.CardID),
			zap.String("side", string(ee.Side)),
			zap.String("tx_hash", s.TxHash),
			zap.Error(ee.Err))
	}
}

func commitBuy(ctx context.Context, l *ledger.Ledger, d Decision, simulated bool, s Settlement) (*models.Trade, error) {
	if d.Action != ActionBuy {
		return nil, &ExecutionError{CardID: d.CardID, Side: models.DirectionBuy, Err: fmt.Errorf("decision is %s", d.Action)}
	}
	notes := fmt.Sprintf("%s: %.1f%% below fair value %.2f, target %.2f", d.Reason, d.Discount*100, d.FairValue, d.TargetSellPrice)
	if simulated {
		notes = simulatedPrefix + notes
	}

	var trade *models.Trade
	err := l.InTx(ctx, func(tx *ledger.Ledger) error {
		if err := tx.OpenHolding(ctx, ledger.HoldingInput{
			CardID:    d.CardID,
			CardName:  d.CardName,
			CardImage: d.CardImage,
			BuyPrice:  d.Price,
		}); err != nil {
			return err
		}
		var err error
		trade, err = tx.RecordTrade(ctx, ledger.TradeInput{
			Direction: models.DirectionBuy,
			CardID:    d.CardID,
			CardName:  d.CardName,
			PriceUSD:  d.Price,
			Simulated: simulated,
			PriceGas:  s.PriceGas,
			TxHash:    s.TxHash,
			Notes:     notes,
		})
		return err
	})
	if err != nil {
		metrics.ExecutionFailures.WithLabelValues(string(models.DirectionBuy)).Inc()
		return nil, &ExecutionError{CardID: d.CardID, Side: models.DirectionBuy, Err: err}
	}
	metrics.TradesTotal.WithLabelValues(string(models.DirectionBuy), modeLabel(simulated)).Inc()
	return trade, nil
}

func commitSell(ctx context.Context, l *ledger.Ledger, d Decision, h models.Holding, simulated bool, s Settlement) (*models.Trade, error) {
	if d.Action != ActionSell || d.CardID != h.CardID {
		return nil, &ExecutionError{CardID: d.CardID, Side: models.DirectionSell, Err: fmt.Errorf("decision %s for %s does not close holding %s", d.Action, d.CardID, h.CardID)}
	}
	profit := decimal.NewFromFloat(d.Price).Sub(decimal.NewFromFloat(h.BuyPrice)).InexactFloat64()
	notes := fmt.Sprintf("%s: bought at %.2f, %+.1f%%", d.Reason, h.BuyPrice, d.ProfitPct*100)
	if simulated {
		notes = simulatedPrefix + notes
	}

	var trade *models.Trade
	err := l.InTx(ctx, func(tx *ledger.Ledger) error {
		var err error
		trade, err = tx.RecordTrade(ctx, ledger.TradeInput{
			Direction: models.DirectionSell,
			CardID:    h.CardID,
			CardName:  h.CardName,
			PriceUSD:  d.Price,
			ProfitUSD: &profit,
			Simulated: simulated,
			PriceGas:  s.PriceGas,
			TxHash:    s.TxHash,
			Notes:     notes,
		})
		if err != nil {
			return err
		}
		return tx.CloseHolding(ctx, h.CardID)
	})
	if err != nil {
		metrics.ExecutionFailures.WithLabelValues(string(models.DirectionSell)).Inc()
		return nil, &ExecutionError{CardID: d.CardID, Side: models.DirectionSell, Err: err}
	}
	metrics.TradesTotal.WithLabelValues(string(models.DirectionSell), modeLabel(simulated)).Inc()
	return trade, nil
}

func modeLabel(simulated bool) string {
	if simulated {
		return string(ModeSimulated)
	}
	return string(ModeLive)
}
