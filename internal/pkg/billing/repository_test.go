package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CourseFox/app/models"
)

// newDryRunDB builds statements with the MySQL dialect without a server.
func newDryRunDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "coursefox:secret@tcp(127.0.0.1:3306)/coursefox?parseTime=true",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)
	return db
}

func TestUpsertDelivery_SQL(t *testing.T) {
	db := newDryRunDB(t)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	event := &models.BillingWebhookEvent{
		Provider:        "stripe",
		ProviderEventID: "evt_1",
		EventType:       "invoice.paid",
		CustomerID:      "cus_1",
		Outcome:         models.WebhookOutcomeDispatched,
		Deliveries:      1,
	}

	stmt := upsertDelivery(db, event, now).Statement
	sql := stmt.SQL.String()

	assert.Contains(t, sql, "INSERT INTO `billing_webhook_events`")
	assert.Contains(t, sql, "ON DUPLICATE KEY UPDATE")
	assert.Contains(t, sql, "`deliveries`=deliveries + 1")
	assert.Contains(t, sql, "`outcome`=?")
	assert.Contains(t, sql, "`processing_error`=?")
	assert.Contains(t, sql, "`processed_at`=")
	assert.Contains(t, sql, "`updated_at`=?")
	assert.Contains(t, stmt.Vars, "evt_1")
	assert.Contains(t, stmt.Vars, now)
}

func TestMarkProcessed_SQL(t *testing.T) {
	db := newDryRunDB(t)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	stmt := markProcessed(db, 42, "provider down", now).Statement
	sql := stmt.SQL.String()

	assert.Contains(t, sql, "UPDATE `billing_webhook_events` SET")
	assert.Contains(t, sql, "`processed_at`=?")
	assert.Contains(t, sql, "`processing_error`=?")
	assert.Contains(t, sql, "WHERE id = ?")
	assert.Contains(t, stmt.Vars, "provider down")
	assert.Contains(t, stmt.Vars, uint(42))
}

func TestAuditLog_RejectsIncompleteInput(t *testing.T) {
	audit := NewAuditLog(newDryRunDB(t))
	ctx := context.Background()

	_, err := audit.RecordDelivery(ctx, WebhookEventInput{Provider: " ", ProviderEventID: "evt_1"})
	assert.Error(t, err)
	_, err = audit.RecordDelivery(ctx, WebhookEventInput{Provider: "stripe"})
	assert.Error(t, err)

	assert.Error(t, audit.MarkProcessed(ctx, 0, nil))
	assert.NoError(t, audit.MarkProcessed(ctx, 7, nil))
}
