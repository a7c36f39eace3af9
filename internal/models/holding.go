package models

import "time"

// Holding is one open position in a single card. There is at most one per card.
type Holding struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CardID       string    `gorm:"uniqueIndex;not null" json:"card_id"`
	CardName     string    `gorm:"not null" json:"card_name"`
	CardImage    string    `json:"card_image,omitempty"`
	BuyPrice     float64   `gorm:"not null" json:"buy_price"`
	BuyDate      time.Time `gorm:"not null" json:"buy_date"`
	CurrentPrice *float64  `json:"current_price,omitempty"`
	Quantity     int       `gorm:"default:1" json:"quantity"`
}

// Value is the holding's mark: the last refreshed price, or the buy price
// when none is known yet.
func (h Holding) Value() float64 {
	if h.CurrentPrice != nil && *h.CurrentPrice > 0 {
		return *h.CurrentPrice
	}
	return h.BuyPrice
}
