package trader

import (
	"context"
	"fmt"

	"card-trader-go/internal/models"
)

// Settlement is the receipt of a live transfer.
type Settlement struct {
	TxHash   string
	PriceGas *float64 // price paid or received in the gas token, if the settler knows it
}

// Settler moves real funds or cards for a decided trade. A LiveExecutor only
// writes to the ledger after Settle succeeds.
type Settler interface {
	Settle(ctx context.Context, side models.Direction, d Decision) (Settlement, error)
}

// UnsupportedSettler refuses every settlement. It is the only settler shipped
// until on-chain execution exists.
type UnsupportedSettler struct{}

func (UnsupportedSettler) Settle(_ context.Context, side models.Direction, d Decision) (Settlement, error) {
	return Settlement{}, fmt.Errorf("%s %s: %w", side, d.CardID, ErrSettlementUnsupported)
}
