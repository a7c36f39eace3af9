package models

import "time"

// StatsRowID is the primary key of the single running-counter row.
const StatsRowID = 1

// StatsCounter holds the running trade counters. There is only ever one row,
// and it is only written alongside a trade insert.
type StatsCounter struct {
	ID            uint    `gorm:"primaryKey"`
	TotalTrades   int64   `gorm:"default:0"`
	WinningTrades int64   `gorm:"default:0"`
	TotalProfit   float64 `gorm:"default:0"`
	TotalVolume   float64 `gorm:"default:0"`
	UpdatedAt     time.Time
}

// TableName pins the relation to "stats".
func (StatsCounter) TableName() string {
	return "stats"
}

// Stats is the read-time view combining the counters with current holdings.
type Stats struct {
	TotalTrades    int64     `json:"total_trades"`
	WinningTrades  int64     `json:"winning_trades"`
	TotalProfit    float64   `json:"total_profit"`
	TotalVolume    float64   `json:"total_volume"`
	HoldingsCount  int       `json:"holdings_count"`
	PortfolioValue float64   `json:"portfolio_value"`
	WinRate        float64   `json:"win_rate"`
	UpdatedAt      time.Time `json:"updated_at"`
}
