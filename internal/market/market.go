// Package market defines the boundaries the trading core reads market data
// and wallet balances through.
package market

import (
	"context"
	"errors"
)

// ErrDataUnavailable means a fetch failed, timed out or returned nothing usable.
var ErrDataUnavailable = errors.New("market data unavailable")

// Listing is a card currently offered for sale.
type Listing struct {
	CardID    string  `json:"id"`
	CardName  string  `json:"name"`
	Set       string  `json:"set,omitempty"`
	Rarity    string  `json:"rarity,omitempty"`
	Grade     string  `json:"grade,omitempty"`
	Price     float64 `json:"price"`
	Image     string  `json:"image,omitempty"`
	ListingID string  `json:"listingId,omitempty"`
	Seller    string  `json:"seller,omitempty"`
}

// PriceStats summarises recent trading activity for a card.
type PriceStats struct {
	CardID      string    `json:"cardId"`
	FloorPrice  float64   `json:"floorPrice"`
	AvgPrice    float64   `json:"avgPrice"`
	LastSale    float64   `json:"lastSale"`
	Volume24h   float64   `json:"volume24h"`
	Listings    int       `json:"listings"`
	RecentSales []float64 `json:"recentSales,omitempty"`
}

// Balances are the spendable amounts held by the trading wallet.
type Balances struct {
	GasToken    float64 `json:"gas_token"`
	StableToken float64 `json:"stable_token"`
}

// MarketDataProvider supplies listings and price statistics.
type MarketDataProvider interface {
	ListListings(ctx context.Context, category string, limit int) ([]Listing, error)
	// GetPriceStats returns ErrDataUnavailable when the card has no data.
	GetPriceStats(ctx context.Context, cardID string) (*PriceStats, error)
}

// WalletBalanceProvider supplies the trading wallet's balances.
type WalletBalanceProvider interface {
	GetBalances(ctx context.Context, address string) (Balances, error)
}
