package market

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedProvider wraps a MarketDataProvider with a Redis read-through cache
// for price stats. Listings always go to the primary; they change too fast
// to be worth caching.
type CachedProvider struct {
	primary MarketDataProvider
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedProvider creates a cached wrapper around a primary provider.
func NewCachedProvider(primary MarketDataProvider, rdb *redis.Client, ttl time.Duration) *CachedProvider {
	return &CachedProvider{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// ListListings is passed straight through.
func (c *CachedProvider) ListListings(ctx context.Context, category string, limit int) ([]Listing, error) {
	return c.primary.ListListings(ctx, category, limit)
}

// GetPriceStats checks Redis first, then falls back to the primary and
// caches what it returns. Absent data is not cached.
func (c *CachedProvider) GetPriceStats(ctx context.Context, cardID string) (*PriceStats, error) {
	data, err := c.rdb.Get(ctx, priceStatsKey(cardID)).Bytes()
	if err == nil {
		var stats PriceStats
		if json.Unmarshal(data, &stats) == nil {
			return &stats, nil
		}
	}

	stats, err := c.primary.GetPriceStats(ctx, cardID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(stats); err == nil {
		c.rdb.Set(ctx, priceStatsKey(cardID), data, c.ttl)
	}
	return stats, nil
}

func priceStatsKey(cardID string) string { return fmt.Sprintf("pricestats:%s", cardID) }
