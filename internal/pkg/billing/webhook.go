package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/ManuelReschke/CourseFox/app/models"
	"github.com/ManuelReschke/CourseFox/internal/pkg/metrics"
)

const ProviderStripe = "stripe"

// Webhook outcomes, also used as metric labels.
const (
	OutcomeRejected       = "rejected"
	OutcomeIgnored        = "ignored"
	OutcomeMalformed      = models.WebhookOutcomeMalformed
	OutcomeDispatched     = models.WebhookOutcomeDispatched
	OutcomeDispatchFailed = models.WebhookOutcomeDispatchFailed
)

// Dispatcher schedules a sync without waiting for it.
type Dispatcher interface {
	DispatchSync(ctx context.Context, req SyncRequest) error
}

// syncEvents are the event types that can change a customer's subscription
// state. Everything else is acknowledged and dropped.
var syncEvents = map[stripe.EventType]struct{}{
	"checkout.session.completed":                   {},
	"customer.subscription.created":                {},
	"customer.subscription.updated":                {},
	"customer.subscription.deleted":                {},
	"customer.subscription.paused":                 {},
	"customer.subscription.resumed":                {},
	"customer.subscription.pending_update_applied": {},
	"customer.subscription.pending_update_expired": {},
	"customer.subscription.trial_will_end":         {},
	"invoice.paid":                                 {},
	"invoice.payment_failed":                       {},
	"invoice.payment_action_required":              {},
	"invoice.upcoming":                             {},
	"invoice.marked_uncollectible":                 {},
	"invoice.payment_succeeded":                    {},
	"payment_intent.succeeded":                     {},
	"payment_intent.payment_failed":                {},
	"payment_intent.canceled":                      {},
}

// IsSyncEvent reports whether the event type triggers a sync.
func IsSyncEvent(eventType string) bool {
	_, ok := syncEvents[stripe.EventType(eventType)]
	return ok
}

// WebhookResult describes what happened to one delivery.
type WebhookResult struct {
	Outcome    string
	EventID    string
	EventType  string
	CustomerID string
}

// Acknowledge reports whether the provider should get a 2xx. Only signature
// or parse failures are refused; everything after that is acknowledged so
// the provider does not retry it.
func (r WebhookResult) Acknowledge() bool {
	return r.Outcome != OutcomeRejected
}

// Gateway verifies provider webhooks and turns allow-listed events into
// dispatched syncs.
type Gateway struct {
	secret     string
	dispatcher Dispatcher
	audit      AuditLog
}

// NewGateway creates a webhook gateway. audit may be nil.
func NewGateway(cfg Config, dispatcher Dispatcher, audit AuditLog) *Gateway {
	return &Gateway{
		secret:     cfg.WebhookSecret,
		dispatcher: dispatcher,
		audit:      audit,
	}
}

func (g *Gateway) HandleWebhook(ctx context.Context, payload []byte, signature string) (WebhookResult, error) {
	res, err := g.handle(ctx, payload, signature)
	metrics.BillingWebhooksTotal.WithLabelValues(res.Outcome).Inc()
	return res, err
}

func (g *Gateway) handle(ctx context.Context, payload []byte, signature string) (WebhookResult, error) {
	if g.secret == "" {
		log.Error("[BillingWebhook] STRIPE_WEBHOOK_SECRET is not configured, rejecting delivery")
		return WebhookResult{Outcome: OutcomeRejected}, ErrSignatureInvalid
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, g.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		log.Warnf("[BillingWebhook] Rejected delivery: %v", err)
		return WebhookResult{Outcome: OutcomeRejected}, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	res := WebhookResult{EventID: event.ID, EventType: string(event.Type)}
	if !IsSyncEvent(res.EventType) {
		res.Outcome = OutcomeIgnored
		log.Debugf("[BillingWebhook] Ignoring event %s (%s)", event.ID, event.Type)
		return res, nil
	}

	customerID, err := customerFromEvent(event)
	if err != nil {
		res.Outcome = OutcomeMalformed
		log.Errorf("[BillingWebhook] Event %s (%s) is malformed: %v", event.ID, event.Type, err)
		if id := g.record(ctx, res); id != 0 {
			g.markProcessed(ctx, id, err)
		}
		return res, err
	}
	res.CustomerID = customerID
	res.Outcome = OutcomeDispatched

	auditID := g.record(ctx, res)
	req := SyncRequest{
		CustomerID: customerID,
		EventID:    event.ID,
		EventType:  res.EventType,
		AuditID:    auditID,
	}
	if err := g.dispatcher.DispatchSync(ctx, req); err != nil {
		res.Outcome = OutcomeDispatchFailed
		log.Errorf("[BillingWebhook] Failed to dispatch sync for customer %s (event %s): %v", customerID, event.ID, err)
		if auditID != 0 {
			g.markProcessed(ctx, auditID, fmt.Errorf("dispatch: %w", err))
		}
		return res, nil
	}

	log.Infof("[BillingWebhook] Dispatched sync for customer %s (event %s, %s)", customerID, event.ID, event.Type)
	return res, nil
}

// customerFromEvent returns the customer id embedded in the event object.
// Webhook payloads carry it unexpanded, so anything but a string is refused.
func customerFromEvent(event stripe.Event) (string, error) {
	if event.Data == nil || event.Data.Object == nil {
		return "", fmt.Errorf("%w: event has no data object", ErrMalformedEvent)
	}
	raw, ok := event.Data.Object["customer"]
	if !ok || raw == nil {
		return "", fmt.Errorf("%w: customer is missing", ErrMalformedEvent)
	}
	customerID, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: customer is %T, want string", ErrMalformedEvent, raw)
	}
	customerID = strings.TrimSpace(customerID)
	if err := validateIdentifier("customer id", customerID); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return customerID, nil
}

func (g *Gateway) record(ctx context.Context, res WebhookResult) uint {
	if g.audit == nil {
		return 0
	}
	id, err := g.audit.RecordDelivery(ctx, WebhookEventInput{
		Provider:        ProviderStripe,
		ProviderEventID: res.EventID,
		EventType:       res.EventType,
		CustomerID:      res.CustomerID,
		Outcome:         res.Outcome,
	})
	if err != nil {
		log.Warnf("[BillingWebhook] Failed to record event %s: %v", res.EventID, err)
		return 0
	}
	return id
}

func (g *Gateway) markProcessed(ctx context.Context, id uint, processingErr error) {
	if err := g.audit.MarkProcessed(ctx, id, processingErr); err != nil && !errors.Is(err, context.Canceled) {
		log.Warnf("[BillingWebhook] Failed to update audit row %d: %v", id, err)
	}
}
