package models

import "time"

// BillingOutcome is the current state of a provider invoice.
type BillingOutcome string

const (
	BillingOutcomeSucceeded BillingOutcome = "succeeded"
	BillingOutcomeFailed    BillingOutcome = "failed"
	BillingOutcomePending   BillingOutcome = "pending"
)

// BillingRecord is a ledger entry keyed by the provider invoice id. Amount and
// currency are write-once; only Outcome may change.
type BillingRecord struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	SubscriptionID    uint           `gorm:"not null;index" json:"subscription_id"`
	ProviderInvoiceID string         `gorm:"type:varchar(191);not null;uniqueIndex:ux_billing_records_invoice" json:"provider_invoice_id"`
	AmountCents       int64          `gorm:"not null;default:0" json:"amount_cents"`
	Currency          string         `gorm:"type:varchar(3);not null;default:''" json:"currency"`
	Outcome           BillingOutcome `gorm:"type:varchar(16);not null;index" json:"outcome"`
	PeriodStart       time.Time      `gorm:"not null" json:"period_start"`
	PeriodEnd         time.Time      `gorm:"not null" json:"period_end"`
	RecordedAt        time.Time      `gorm:"not null" json:"recorded_at"`
	UpdatedAt         time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}
