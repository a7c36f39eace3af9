package market

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// FakeProvider is a deterministic in-memory MarketDataProvider and
// WalletBalanceProvider. Listings are returned cheapest first.
type FakeProvider struct {
	mu       sync.RWMutex
	listings map[string][]Listing
	stats    map[string]PriceStats
	balances Balances
}

var (
	_ MarketDataProvider    = (*FakeProvider)(nil)
	_ WalletBalanceProvider = (*FakeProvider)(nil)
)

// NewFakeProvider returns an empty provider.
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		listings: make(map[string][]Listing),
		stats:    make(map[string]PriceStats),
	}
}

// SetListings replaces the listings offered under category.
func (f *FakeProvider) SetListings(category string, listings ...Listing) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]Listing, len(listings))
	copy(cp, listings)
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].Price < cp[j].Price })
	f.listings[category] = cp
}

// SetPriceStats stores stats for stats.CardID.
func (f *FakeProvider) SetPriceStats(stats PriceStats) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats[stats.CardID] = stats
}

// RemovePriceStats forgets a card's stats.
func (f *FakeProvider) RemovePriceStats(cardID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.stats, cardID)
}

// SetBalances sets what GetBalances returns.
func (f *FakeProvider) SetBalances(b Balances) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances = b
}

func (f *FakeProvider) ListListings(ctx context.Context, category string, limit int) ([]Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	src := f.listings[category]
	if limit > 0 && limit < len(src) {
		src = src[:limit]
	}
	out := make([]Listing, len(src))
	copy(out, src)
	return out, nil
}

func (f *FakeProvider) GetPriceStats(ctx context.Context, cardID string) (*PriceStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats, ok := f.stats[cardID]
	if !ok {
		return nil, fmt.Errorf("no price history for %s: %w", cardID, ErrDataUnavailable)
	}
	if stats.RecentSales != nil {
		stats.RecentSales = append([]float64(nil), stats.RecentSales...)
	}
	return &stats, nil
}

func (f *FakeProvider) GetBalances(ctx context.Context, address string) (Balances, error) {
	if err := ctx.Err(); err != nil {
		return Balances{}, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.balances, nil
}

// NewDemoProvider returns a FakeProvider seeded with a small fixed market, for
// running the binaries without network access.
func NewDemoProvider(categories ...string) *FakeProvider {
	f := NewFakeProvider()
	listings := []Listing{
		{CardID: "base-set-4-charizard", CardName: "Charizard (Base Set)", Set: "base-set", Rarity: "holo", Price: 82},
		{CardID: "jungle-60-pikachu", CardName: "Pikachu (Jungle)", Set: "jungle", Rarity: "common", Price: 18},
		{CardID: "fossil-10-mewtwo", CardName: "Mewtwo (Fossil)", Set: "fossil", Rarity: "holo", Price: 64},
		{CardID: "neo-genesis-9-lugia", CardName: "Lugia (Neo Genesis)", Set: "neo-genesis", Rarity: "holo", Price: 95},
		{CardID: "evolving-skies-215-umbreon", CardName: "Umbreon VMAX Alt Art", Set: "evolving-skies", Rarity: "secret", Price: 420},
	}
	stats := []PriceStats{
		{CardID: "base-set-4-charizard", AvgPrice: 100, LastSale: 98, Volume24h: 12, RecentSales: []float64{96, 99, 100, 101, 104}},
		{CardID: "jungle-60-pikachu", AvgPrice: 20, LastSale: 19, Volume24h: 40},
		{CardID: "fossil-10-mewtwo", AvgPrice: 82, LastSale: 80, Volume24h: 6},
		{CardID: "neo-genesis-9-lugia", AvgPrice: 101, LastSale: 99, Volume24h: 3},
		{CardID: "evolving-skies-215-umbreon", AvgPrice: 510, LastSale: 505, Volume24h: 9},
	}
	if len(categories) == 0 {
		categories = []string{"pokemon"}
	}
	for _, c := range categories {
		f.SetListings(c, listings...)
	}
	for _, l := range listings {
		f.SetListings(l.Set, l)
	}
	for _, s := range stats {
		f.SetPriceStats(s)
	}
	f.SetBalances(Balances{GasToken: 1, StableToken: 500})
	return f
}
