// Package fairvalue estimates a card's market price from observed prices.
package fairvalue

import (
	"math"
	"sort"

	"card-trader-go/internal/market"
	"github.com/shopspring/decimal"
)

// TrimFraction is the share of observations dropped from each end before averaging.
const TrimFraction = 0.1

// Estimate returns the mean of prices after dropping the lowest and highest
// tenth. It returns 0 for no input; callers must read 0 as "no data".
// When trimming would leave nothing, the untrimmed mean is returned.
func Estimate(prices []float64) float64 {
	n := len(prices)
	if n == 0 {
		return 0
	}

	sorted := make([]float64, n)
	copy(sorted, prices)
	sort.Float64s(sorted)

	start := int(math.Floor(float64(n) * TrimFraction))
	end := int(math.Ceil(float64(n) * (1 - TrimFraction)))
	if end > n {
		end = n
	}
	trimmed := sorted[start:end]
	if len(trimmed) == 0 {
		trimmed = sorted
	}
	return mean(trimmed)
}

// meanPrecision is the number of decimal places kept when dividing the sum.
const meanPrecision = 40

// mean averages sorted values. The result is clamped to the first and last
// value so float conversion never leaves the observed range.
func mean(sorted []float64) float64 {
	sum := decimal.Zero
	for _, v := range sorted {
		sum = sum.Add(decimal.NewFromFloat(v))
	}
	avg := sum.DivRound(decimal.NewFromInt(int64(len(sorted))), meanPrecision).InexactFloat64()
	lo, hi := sorted[0], sorted[len(sorted)-1]
	switch {
	case avg < lo:
		return lo
	case avg > hi:
		return hi
	}
	return avg
}

// FromStats estimates fair value from recent sales when the provider reports
// them, and falls back to the provider's average price otherwise.
func FromStats(stats *market.PriceStats) float64 {
	if stats == nil {
		return 0
	}
	if len(stats.RecentSales) > 0 {
		return Estimate(stats.RecentSales)
	}
	return stats.AvgPrice
}
