package models

import "time"

// Direction is the side of a trade.
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// TradeStatus is the settlement state of a trade. Only completed trades are
// produced today.
type TradeStatus string

const (
	TradeStatusCompleted TradeStatus = "completed"
	TradeStatusPending   TradeStatus = "pending"
	TradeStatusFailed    TradeStatus = "failed"
)

// Trade represents a recorded trade. Rows are never updated or deleted.
type Trade struct {
	ID        uint        `gorm:"primaryKey;autoIncrement" json:"id"`
	Timestamp time.Time   `gorm:"not null;index" json:"timestamp"`
	Direction Direction   `gorm:"column:type;not null" json:"type"` // "buy" or "sell"
	CardID    string      `gorm:"not null;index" json:"card_id"`
	CardName  string      `gorm:"not null" json:"card_name"`
	PriceUSD  float64     `gorm:"column:price_usd;not null" json:"price_usd"`
	ProfitUSD *float64    `gorm:"column:profit_usd" json:"profit_usd,omitempty"`
	PriceGas  *float64    `gorm:"column:price_matic" json:"price_matic,omitempty"` // price in the gas token, live trades only
	Status    TradeStatus `gorm:"default:completed" json:"status"`
	Simulated bool        `json:"simulated"`
	TxHash    string      `json:"tx_hash,omitempty"`
	Notes     string      `json:"notes,omitempty"`
}
