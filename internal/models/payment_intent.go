package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PaymentStatus is the lifecycle state of a PaymentIntent. Besides the
// constants below it may hold any status string reported by the provider.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusError   PaymentStatus = "error"
	PaymentStatusFailed  PaymentStatus = "failed"
	PaymentStatusExpired PaymentStatus = "expired"
)

// PaymentIntent records one STK push checkout attempt, keyed by the account
// reference sent to PayHero.
type PaymentIntent struct {
	AccountReference  string          `gorm:"primaryKey;size:96" json:"account_reference"`
	AppID             string          `gorm:"size:64;not null;index:idx_intents_app_user,priority:1" json:"app_id"`
	UserID            string          `gorm:"size:128;not null;index:idx_intents_app_user,priority:2" json:"user_id"`
	Amount            decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"amount"`
	Phone             string          `gorm:"size:32;not null" json:"phone"`
	Status            PaymentStatus   `gorm:"size:32;not null;index" json:"status"`
	ProviderRequestID *string         `gorm:"size:128" json:"provider_request_id"`
	ProviderPayload   datatypes.JSON  `gorm:"type:jsonb" json:"provider_payload"`
	PaidAt            *time.Time      `json:"paid_at"`
	Timestamps
}

// IsPaid reports whether the intent reached its terminal, credit-bearing state.
func (p *PaymentIntent) IsPaid() bool {
	return p.Status == PaymentStatusPaid
}
