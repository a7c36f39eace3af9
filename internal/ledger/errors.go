package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateHolding is returned when opening a position on a card that is already held.
	ErrDuplicateHolding = errors.New("card is already held")
	// ErrHoldingNotFound is returned by GetHolding when the card is not held.
	ErrHoldingNotFound = errors.New("holding not found")
	// ErrInvalidTrade is returned for trades that can never be valid.
	ErrInvalidTrade = errors.New("invalid trade")
	// ErrStatsDrift is returned by VerifyStats when the counters disagree with the trade history.
	ErrStatsDrift = errors.New("stats counters drifted from trade history")
)

// LedgerWriteError wraps a persistence failure during a ledger write.
type LedgerWriteError struct {
	Op  string
	Err error
}

func (e *LedgerWriteError) Error() string {
	return fmt.Sprintf("ledger %s failed: %v", e.Op, e.Err)
}

func (e *LedgerWriteError) Unwrap() error {
	return e.Err
}

func writeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var lwe *LedgerWriteError
	if errors.As(err, &lwe) {
		return err
	}
	return &LedgerWriteError{Op: op, Err: err}
}
