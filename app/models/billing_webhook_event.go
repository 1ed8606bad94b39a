package models

import "time"

const (
	WebhookOutcomeDispatched     = "dispatched"
	WebhookOutcomeDispatchFailed = "dispatch_failed"
	WebhookOutcomeMalformed      = "malformed"
)

// BillingWebhookEvent is the audit row of a verified, allow-listed provider
// webhook. Redeliveries of one event share a row and bump Deliveries.
type BillingWebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Provider        string     `gorm:"type:varchar(20);not null;index:ux_billing_webhook_events_provider_event,unique,priority:1" json:"provider"`
	ProviderEventID string     `gorm:"type:varchar(191);not null;index:ux_billing_webhook_events_provider_event,unique,priority:2" json:"provider_event_id"`
	EventType       string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	CustomerID      string     `gorm:"type:varchar(255);not null;default:'';index" json:"customer_id"`
	Outcome         string     `gorm:"type:varchar(32);not null;default:''" json:"outcome"`
	Deliveries      int        `gorm:"not null;default:1" json:"deliveries"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
