package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	stripe "github.com/stripe/stripe-go/v82"

	"github.com/ManuelReschke/CourseFox/internal/pkg/cache"
	"github.com/ManuelReschke/CourseFox/internal/pkg/metrics"
)

// Syncer rebuilds a customer's snapshot from the provider and replaces the
// cached value wholesale. Every trigger (webhook, user, checkout return,
// reconcile) goes through Sync.
type Syncer struct {
	provider Provider
	store    cache.Store
	limit    int
	timeout  time.Duration
}

func NewSyncer(provider Provider, store cache.Store, cfg Config) *Syncer {
	cfg = cfg.withDefaults()
	return &Syncer{
		provider: provider,
		store:    store,
		limit:    cfg.SubscriptionLimit,
		timeout:  cfg.ProviderTimeout,
	}
}

// Sync fetches the active subscriptions of customerID and stores the
// resulting snapshot. On any error the cached value is left untouched.
//
// Two overlapping syncs for one customer are not serialized: the one whose
// write lands last wins, even if its provider read was older. A later event
// or resync corrects it.
func (s *Syncer) Sync(ctx context.Context, customerID string) (*SubscriptionSnapshot, error) {
	if err := validateIdentifier("customer id", customerID); err != nil {
		metrics.BillingSyncsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	started := time.Now()
	snapshot, err := s.sync(ctx, customerID)
	outcome := syncOutcome(err)
	metrics.BillingSyncsTotal.WithLabelValues(outcome).Inc()
	metrics.BillingSyncDuration.WithLabelValues(outcome).Observe(time.Since(started).Seconds())

	if err != nil {
		log.Errorf("[BillingSync] Sync for customer %s failed: %v", customerID, err)
		return nil, err
	}
	log.Debugf("[BillingSync] Customer %s synced with %d subscription(s)", customerID, len(snapshot.Subscriptions))
	return snapshot, nil
}

func (s *Syncer) sync(ctx context.Context, customerID string) (*SubscriptionSnapshot, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	subs, err := s.provider.ListSubscriptions(callCtx, customerID, string(stripe.SubscriptionStatusActive), s.limit)
	if err != nil {
		return nil, providerError("list subscriptions", err)
	}

	snapshot := BuildSnapshot(subs)
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.store.Set(ctx, SnapshotKey(customerID), string(raw)); err != nil {
		return nil, fmt.Errorf("store snapshot: %w", err)
	}
	return snapshot, nil
}

func syncOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrProvider):
		return "provider_error"
	default:
		return "store_error"
	}
}

// BuildSnapshot maps provider subscriptions to records. Subscriptions without
// a priced item are dropped; an empty result is the none sentinel.
func BuildSnapshot(subs []*stripe.Subscription) *SubscriptionSnapshot {
	records := make([]SubscriptionRecord, 0, len(subs))
	for _, sub := range subs {
		if rec, ok := recordFromSubscription(sub); ok {
			records = append(records, rec)
		}
	}
	if len(records) == 0 {
		return NoneSnapshot()
	}
	return &SubscriptionSnapshot{Subscriptions: records}
}

func recordFromSubscription(sub *stripe.Subscription) (SubscriptionRecord, bool) {
	if sub == nil || sub.ID == "" {
		return SubscriptionRecord{}, false
	}
	item := firstPricedItem(sub)
	if item == nil {
		return SubscriptionRecord{}, false
	}

	rec := SubscriptionRecord{
		SubscriptionID:     sub.ID,
		Status:             string(sub.Status),
		PriceID:            item.Price.ID,
		CurrentPeriodStart: item.CurrentPeriodStart,
		CurrentPeriodEnd:   item.CurrentPeriodEnd,
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
	}
	if item.Price.Product != nil {
		rec.ProductID = item.Price.Product.ID
	}
	if pm := sub.DefaultPaymentMethod; pm != nil && pm.Card != nil {
		rec.PaymentMethod = &PaymentMethod{
			Brand: string(pm.Card.Brand),
			Last4: pm.Card.Last4,
		}
	}
	return rec, true
}

func firstPricedItem(sub *stripe.Subscription) *stripe.SubscriptionItem {
	if sub.Items == nil {
		return nil
	}
	for _, item := range sub.Items.Data {
		if item != nil && item.Price != nil && item.Price.ID != "" {
			return item
		}
	}
	return nil
}
