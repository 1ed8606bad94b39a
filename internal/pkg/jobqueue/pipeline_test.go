package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/ManuelReschke/CourseFox/internal/pkg/billing"
	"github.com/ManuelReschke/CourseFox/internal/pkg/cache"
)

const pipelineSecret = "whsec_pipeline"

// stubProvider serves a mutable list of active subscriptions.
type stubProvider struct {
	mu   sync.Mutex
	subs []*stripe.Subscription
}

func (p *stubProvider) set(subs ...*stripe.Subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs = subs
}

func (p *stubProvider) ListSubscriptions(context.Context, string, string, int) ([]*stripe.Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*stripe.Subscription(nil), p.subs...), nil
}

func (p *stubProvider) GetSubscription(context.Context, string) (*stripe.Subscription, error) {
	return nil, errors.New("not used")
}

func (p *stubProvider) SetCancelAtPeriodEnd(context.Context, string, bool) (*stripe.Subscription, error) {
	return nil, errors.New("not used")
}

func (p *stubProvider) CreateCustomer(context.Context, string, string) (string, error) {
	return "", errors.New("not used")
}

func (p *stubProvider) CreateCheckoutSession(context.Context, billing.CheckoutInput) (string, error) {
	return "", errors.New("not used")
}

func signedEvent(t *testing.T, id, eventType, customerID string) ([]byte, string) {
	t.Helper()
	payload := []byte(fmt.Sprintf(`{"id":%q,"object":"event","type":%q,"data":{"object":{"object":"subscription","customer":%q}}}`,
		id, eventType, customerID))
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    pipelineSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	return payload, signed.Header
}

func TestPipeline_WebhookToStatus(t *testing.T) {
	queue, _ := newTestQueue(t, fastOptions())
	store := cache.NewRedisStore(queue.client)
	provider := &stubProvider{}
	cfg := billing.Config{WebhookSecret: pipelineSecret, SubscriptionLimit: 3, ProviderTimeout: time.Second}

	syncer := billing.NewSyncer(provider, store, cfg)
	dispatcher := NewSyncDispatcher(queue, syncer, nil)
	gateway := billing.NewGateway(cfg, dispatcher, nil)
	service := billing.NewService(syncer, provider, store, dispatcher, cfg)
	ctx := context.Background()

	_, err := service.GetStatus(ctx, "u1")
	require.ErrorIs(t, err, billing.ErrNotFound)

	_, err = store.SetIfAbsent(ctx, billing.CustomerIDKey("u1"), "customer_123")
	require.NoError(t, err)

	queue.Start()
	defer queue.Stop()

	provider.set(&stripe.Subscription{
		ID:     "sub_1",
		Status: stripe.SubscriptionStatusActive,
		Items: &stripe.SubscriptionItemList{Data: []*stripe.SubscriptionItem{{
			Price:            &stripe.Price{ID: "price_x", Product: &stripe.Product{ID: "prod_x"}},
			CurrentPeriodEnd: 1735689600,
		}}},
	})
	payload, sig := signedEvent(t, "evt_1", "customer.subscription.created", "customer_123")
	res, err := gateway.HandleWebhook(ctx, payload, sig)
	require.NoError(t, err)
	require.Equal(t, billing.OutcomeDispatched, res.Outcome)

	require.Eventually(t, func() bool {
		snapshot, err := service.GetStatus(ctx, "u1")
		return err == nil && !snapshot.IsNone()
	}, 5*time.Second, 20*time.Millisecond)

	snapshot, err := service.GetStatus(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, snapshot.Subscriptions, 1)
	assert.Equal(t, "active", snapshot.Subscriptions[0].Status)
	assert.Equal(t, "prod_x", snapshot.Subscriptions[0].ProductID)

	provider.set()
	payload, sig = signedEvent(t, "evt_2", "customer.subscription.deleted", "customer_123")
	_, err = gateway.HandleWebhook(ctx, payload, sig)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snapshot, err := service.GetStatus(ctx, "u1")
		return err == nil && snapshot.IsNone()
	}, 5*time.Second, 20*time.Millisecond)

	raw, err := store.Get(ctx, billing.SnapshotKey("customer_123"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"none"}`, raw)
}
