package trader

import (
	"errors"
	"fmt"

	"card-trader-go/internal/models"
)

var (
	// ErrInsufficientBudget rejects a buy that would exceed the position,
	// portfolio or cash limit.
	ErrInsufficientBudget = errors.New("insufficient budget")
	// ErrCycleInProgress is returned when a cycle is requested while another is running.
	ErrCycleInProgress = errors.New("trade cycle already in progress")
	// ErrSettlementUnsupported is returned by UnsupportedSettler.
	ErrSettlementUnsupported = errors.New("live settlement is not implemented")
)

// ExecutionError reports a trade that was decided but could not be carried out.
// When Settled is false nothing was written to the ledger.
type ExecutionError struct {
	CardID  string
	Side    models.Direction
	Settled bool
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Side, e.CardID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
