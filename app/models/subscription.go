package models

import "time"

// SubscriptionStatus is the local mirror of the provider's subscription state.
type SubscriptionStatus string

const (
	SubscriptionStatusPending    SubscriptionStatus = "pending"
	SubscriptionStatusIncomplete SubscriptionStatus = "incomplete"
	SubscriptionStatusActive     SubscriptionStatus = "active"
	SubscriptionStatusTrialing   SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue    SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled   SubscriptionStatus = "canceled"
)

// Valid reports whether s is one of the known statuses.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionStatusPending, SubscriptionStatusIncomplete, SubscriptionStatusActive,
		SubscriptionStatusTrialing, SubscriptionStatusPastDue, SubscriptionStatusCanceled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is possible.
func (s SubscriptionStatus) IsTerminal() bool {
	return s == SubscriptionStatusCanceled
}

// Entitling reports whether the status grants access to the plan's quota.
func (s SubscriptionStatus) Entitling() bool {
	switch s {
	case SubscriptionStatusActive, SubscriptionStatusTrialing, SubscriptionStatusPastDue:
		return true
	default:
		return false
	}
}

// Subscription is the local projection of a provider subscription. Status and
// period fields mirror the provider; VideoCount and UsagePeriodStart are owned
// locally.
type Subscription struct {
	ID                     uint               `gorm:"primaryKey" json:"id"`
	OwnerID                string             `gorm:"type:varchar(191);not null;index:idx_subscriptions_owner_status,priority:1" json:"owner_id"`
	PlanID                 string             `gorm:"type:varchar(50);not null;default:''" json:"plan_id"`
	ProviderPriceID        string             `gorm:"type:varchar(191);not null;default:''" json:"provider_price_id"`
	Status                 SubscriptionStatus `gorm:"type:varchar(32);not null;default:'pending';index:idx_subscriptions_owner_status,priority:2" json:"status"`
	ProviderSubscriptionID string             `gorm:"type:varchar(191);not null;uniqueIndex:ux_subscriptions_provider_subid" json:"provider_subscription_id"`
	ProviderCustomerID     string             `gorm:"type:varchar(191);not null;default:'';index" json:"provider_customer_id"`
	CurrentPeriodStart     time.Time          `gorm:"not null" json:"current_period_start"`
	CurrentPeriodEnd       time.Time          `gorm:"not null" json:"current_period_end"`
	CancelAtPeriodEnd      bool               `gorm:"default:false" json:"cancel_at_period_end"`
	CanceledAt             *time.Time         `gorm:"default:null" json:"canceled_at,omitempty"`
	VideoCount             int                `gorm:"not null;default:0" json:"video_count"`
	VideoLimit             int                `gorm:"not null;default:0" json:"video_limit"`
	UsagePeriodStart       time.Time          `gorm:"not null" json:"-"`
	ProviderCreatedAt      time.Time          `json:"-"`
	CreatedAt              time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

// RemainingVideos returns how many videos can still be created this period.
func (s *Subscription) RemainingVideos() int {
	if s == nil || s.VideoCount >= s.VideoLimit {
		return 0
	}
	return s.VideoLimit - s.VideoCount
}
