package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BalanceEntry is the running deposit total of one user within an app.
// It is only written in the same transaction that marks an intent paid.
type BalanceEntry struct {
	AppID       string          `gorm:"primaryKey;size:64" json:"app_id"`
	UserID      string          `gorm:"primaryKey;size:128" json:"user_id"`
	Amount      decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0" json:"amount"`
	LastUpdated time.Time       `json:"last_updated"`
}
