package market

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// timeoutProvider bounds every call to the wrapped provider.
type timeoutProvider struct {
	next    MarketDataProvider
	timeout time.Duration
}

// WithTimeout wraps p so each call gets its own deadline. Deadline overruns
// are reported as ErrDataUnavailable.
func WithTimeout(p MarketDataProvider, timeout time.Duration) MarketDataProvider {
	return &timeoutProvider{next: p, timeout: timeout}
}

func (p *timeoutProvider) ListListings(ctx context.Context, category string, limit int) ([]Listing, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	listings, err := p.next.ListListings(ctx, category, limit)
	if err != nil {
		return nil, classify(ctx, "list listings", err)
	}
	return listings, nil
}

func (p *timeoutProvider) GetPriceStats(ctx context.Context, cardID string) (*PriceStats, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	stats, err := p.next.GetPriceStats(ctx, cardID)
	if err != nil {
		return nil, classify(ctx, "price stats "+cardID, err)
	}
	if stats == nil {
		return nil, fmt.Errorf("price stats %s: %w", cardID, ErrDataUnavailable)
	}
	return stats, nil
}

type timeoutBalances struct {
	next    WalletBalanceProvider
	timeout time.Duration
}

// BalancesWithTimeout is WithTimeout for a WalletBalanceProvider.
func BalancesWithTimeout(p WalletBalanceProvider, timeout time.Duration) WalletBalanceProvider {
	return &timeoutBalances{next: p, timeout: timeout}
}

func (p *timeoutBalances) GetBalances(ctx context.Context, address string) (Balances, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	b, err := p.next.GetBalances(ctx, address)
	if err != nil {
		return Balances{}, classify(ctx, "balances", err)
	}
	return b, nil
}

func classify(ctx context.Context, op string, err error) error {
	if errors.Is(err, ErrDataUnavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: timed out: %w", op, ErrDataUnavailable)
	}
	return fmt.Errorf("%s: %w: %w", op, err, ErrDataUnavailable)
}
