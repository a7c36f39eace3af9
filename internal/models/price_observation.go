package models

import "time"

// PriceObservation is an append-only price sample for a card.
type PriceObservation struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CardID    string    `gorm:"not null;index" json:"card_id"`
	PriceUSD  float64   `gorm:"column:price_usd;not null" json:"price_usd"`
	Timestamp time.Time `gorm:"not null" json:"timestamp"`
}

// TableName keeps the relation name used by the dashboards.
func (PriceObservation) TableName() string {
	return "price_history"
}
