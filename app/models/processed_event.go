package models

import "time"

// Event sources recorded on ProcessedEvent.
const (
	EventSourceWebhook = "webhook"
	EventSourceAPI     = "api"
)

// ProcessedEvent marks a provider event as applied. The unique provider_event_id
// is the idempotency guard for redelivered webhooks.
type ProcessedEvent struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	ProviderEventID string    `gorm:"type:varchar(191);not null;uniqueIndex:ux_processed_events_provider_event" json:"provider_event_id"`
	EventType       string    `gorm:"type:varchar(100);not null;default:'';index" json:"event_type"`
	Source          string    `gorm:"type:varchar(20);not null;default:'webhook'" json:"source"`
	ProcessingError string    `gorm:"type:text" json:"processing_error"`
	ProcessedAt     time.Time `gorm:"not null;index" json:"processed_at"`
}
