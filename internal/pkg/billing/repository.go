package billing

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/CourseFox/app/models"
)

// AuditLog records webhook deliveries. It is never read on the sync path.
type AuditLog interface {
	RecordDelivery(ctx context.Context, in WebhookEventInput) (uint, error)
	MarkProcessed(ctx context.Context, id uint, processingErr error) error
}

type gormAuditLog struct {
	db *gorm.DB
}

// NewAuditLog creates a webhook audit log backed by GORM.
func NewAuditLog(db *gorm.DB) AuditLog {
	return &gormAuditLog{db: db}
}

// RecordDelivery inserts the event or, for a redelivery, bumps its counter
// and clears the previous processing result.
func (r *gormAuditLog) RecordDelivery(ctx context.Context, in WebhookEventInput) (uint, error) {
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	eventID := strings.TrimSpace(in.ProviderEventID)
	if provider == "" || eventID == "" {
		return 0, errors.New("provider and provider_event_id are required")
	}

	event := &models.BillingWebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		CustomerID:      in.CustomerID,
		Outcome:         in.Outcome,
		Deliveries:      1,
	}
	db := r.db.WithContext(ctx)
	if err := upsertDelivery(db, event, time.Now()).Error; err != nil {
		return 0, err
	}

	var stored models.BillingWebhookEvent
	if err := db.Select("id").
		Where("provider = ? AND provider_event_id = ?", provider, eventID).
		First(&stored).Error; err != nil {
		return 0, err
	}
	return stored.ID, nil
}

func (r *gormAuditLog) MarkProcessed(ctx context.Context, id uint, processingErr error) error {
	if id == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return markProcessed(r.db.WithContext(ctx), id, errMsg, time.Now()).Error
}

// upsertDelivery inserts event. On a unique key clash with an earlier
// delivery it increments deliveries and resets the processing result.
func upsertDelivery(db *gorm.DB, event *models.BillingWebhookEvent, now time.Time) *gorm.DB {
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"deliveries":       gorm.Expr("deliveries + 1"),
			"outcome":          event.Outcome,
			"processed_at":     nil,
			"processing_error": "",
			"updated_at":       now,
		}),
	}).Create(event)
}

func markProcessed(db *gorm.DB, id uint, errMsg string, now time.Time) *gorm.DB {
	return db.Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(map[string]interface{}{
		"processed_at":     &now,
		"processing_error": errMsg,
	})
}
