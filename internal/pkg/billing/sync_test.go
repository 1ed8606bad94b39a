package billing

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripe "github.com/stripe/stripe-go/v82"
)

func TestBuildSnapshot_MapsRecords(t *testing.T) {
	sub := activeSub("sub_1", "cus_1", "price_pro", "prod_pro", 1700000000, 1702592000)
	sub.CancelAtPeriodEnd = true
	sub.DefaultPaymentMethod = &stripe.PaymentMethod{
		Card: &stripe.PaymentMethodCard{Brand: "visa", Last4: "4242"},
	}

	got := BuildSnapshot([]*stripe.Subscription{sub})

	require.Len(t, got.Subscriptions, 1)
	assert.Equal(t, SubscriptionRecord{
		SubscriptionID:     "sub_1",
		Status:             "active",
		PriceID:            "price_pro",
		ProductID:          "prod_pro",
		CurrentPeriodStart: 1700000000,
		CurrentPeriodEnd:   1702592000,
		CancelAtPeriodEnd:  true,
		PaymentMethod:      &PaymentMethod{Brand: "visa", Last4: "4242"},
	}, got.Subscriptions[0])
}

func TestBuildSnapshot_DropsUnpricedSubscriptions(t *testing.T) {
	unpriced := activeSub("sub_bad", "cus_1", "", "", 0, 0)
	unpriced.Items.Data[0].Price = nil
	noItems := &stripe.Subscription{ID: "sub_empty", Status: stripe.SubscriptionStatusActive}
	good := activeSub("sub_ok", "cus_1", "price_1", "prod_1", 1, 2)

	got := BuildSnapshot([]*stripe.Subscription{unpriced, nil, noItems, good})

	require.Len(t, got.Subscriptions, 1)
	assert.Equal(t, "sub_ok", got.Subscriptions[0].SubscriptionID)
}

func TestBuildSnapshot_NoneSentinel(t *testing.T) {
	for _, subs := range [][]*stripe.Subscription{nil, {}, {{ID: "sub_x"}}} {
		got := BuildSnapshot(subs)
		assert.True(t, got.IsNone())

		raw, err := json.Marshal(got)
		require.NoError(t, err)
		assert.JSONEq(t, `{"status":"none"}`, string(raw))
	}
}

func TestSyncer_WritesOnceAndIsIdempotent(t *testing.T) {
	provider := newFakeProvider()
	provider.setSubscriptions("cus_1", activeSub("sub_1", "cus_1", "price_1", "prod_1", 10, 20))
	store := newMemoryStore()
	syncer := NewSyncer(provider, store, testConfig())
	ctx := context.Background()

	_, err := syncer.Sync(ctx, "cus_1")
	require.NoError(t, err)
	assert.Equal(t, 1, store.writes())
	first, _ := store.value(SnapshotKey("cus_1"))

	_, err = syncer.Sync(ctx, "cus_1")
	require.NoError(t, err)
	assert.Equal(t, 2, store.writes())
	second, _ := store.value(SnapshotKey("cus_1"))

	assert.Equal(t, first, second)
	assert.JSONEq(t, `{"subscriptions":[{"subscriptionId":"sub_1","status":"active","priceId":"price_1","productId":"prod_1","currentPeriodStart":10,"currentPeriodEnd":20,"cancelAtPeriodEnd":false}]}`, first)
}

func TestSyncer_ZeroActiveStoresNone(t *testing.T) {
	provider := newFakeProvider()
	canceled := activeSub("sub_1", "cus_1", "price_1", "prod_1", 10, 20)
	canceled.Status = stripe.SubscriptionStatusCanceled
	provider.setSubscriptions("cus_1", canceled)
	store := newMemoryStore()
	require.NoError(t, store.Set(context.Background(), SnapshotKey("cus_1"), `{"subscriptions":[{"subscriptionId":"sub_1","status":"active"}]}`))

	snap, err := NewSyncer(provider, store, testConfig()).Sync(context.Background(), "cus_1")
	require.NoError(t, err)
	assert.True(t, snap.IsNone())

	stored, _ := store.value(SnapshotKey("cus_1"))
	assert.Equal(t, `{"status":"none"}`, stored)
}

func TestSyncer_LimitsResultCount(t *testing.T) {
	provider := newFakeProvider()
	provider.setSubscriptions("cus_1",
		activeSub("sub_1", "cus_1", "p", "prod", 1, 2),
		activeSub("sub_2", "cus_1", "p", "prod", 1, 2),
		activeSub("sub_3", "cus_1", "p", "prod", 1, 2),
		activeSub("sub_4", "cus_1", "p", "prod", 1, 2),
	)

	snap, err := NewSyncer(provider, newMemoryStore(), testConfig()).Sync(context.Background(), "cus_1")
	require.NoError(t, err)
	assert.Len(t, snap.Subscriptions, 3)
}

func TestSyncer_ProviderErrorLeavesCacheUntouched(t *testing.T) {
	provider := newFakeProvider()
	provider.listErr = errors.New("timeout awaiting response headers")
	store := newMemoryStore()
	previous := `{"subscriptions":[{"subscriptionId":"sub_1","status":"active"}]}`
	require.NoError(t, store.Set(context.Background(), SnapshotKey("cus_1"), previous))

	_, err := NewSyncer(provider, store, testConfig()).Sync(context.Background(), "cus_1")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProvider)
	var pe *ProviderError
	assert.True(t, errors.As(err, &pe))
	assert.Equal(t, 1, store.writes())
	stored, _ := store.value(SnapshotKey("cus_1"))
	assert.Equal(t, previous, stored)
}

func TestSyncer_StoreErrorIsSurfaced(t *testing.T) {
	provider := newFakeProvider()
	store := newMemoryStore()
	store.setErr = errors.New("connection refused")

	_, err := NewSyncer(provider, store, testConfig()).Sync(context.Background(), "cus_1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrProvider)
}

func TestSyncer_RejectsMalformedCustomerID(t *testing.T) {
	provider := newFakeProvider()
	syncer := NewSyncer(provider, newMemoryStore(), testConfig())

	for _, id := range []string{"", "cus:1", "cus 1", "cus\n1"} {
		_, err := syncer.Sync(context.Background(), id)
		assert.ErrorIs(t, err, ErrInvalidArgument, "id %q", id)
	}
	list, _, _ := provider.calls()
	assert.Zero(t, list)
}

func TestSyncer_OverlappingSyncsStoreOneWholeSnapshot(t *testing.T) {
	// The first sync reads state A and finishes after a second sync has read
	// and stored state B. The last write wins, so A is left behind, stale but
	// never mixed with B.
	provider := newGatedProvider()
	store := newMemoryStore()
	syncer := NewSyncer(provider, store, testConfig())
	ctx := context.Background()

	provider.setSubscriptions("cus_1", activeSub("sub_1", "cus_1", "price_1", "prod_1", 10, 20))
	releaseFirst := provider.hold(0)

	firstDone := make(chan error, 1)
	go func() {
		_, err := syncer.Sync(ctx, "cus_1")
		firstDone <- err
	}()
	require.Equal(t, 0, <-provider.read)
	stateA := `{"subscriptions":[{"subscriptionId":"sub_1","status":"active","priceId":"price_1","productId":"prod_1","currentPeriodStart":10,"currentPeriodEnd":20,"cancelAtPeriodEnd":false}]}`

	provider.setSubscriptions("cus_1")
	snapB, err := syncer.Sync(ctx, "cus_1")
	require.NoError(t, err)
	require.Equal(t, 1, <-provider.read)
	require.True(t, snapB.IsNone())
	stored, _ := store.value(SnapshotKey("cus_1"))
	assert.JSONEq(t, `{"status":"none"}`, stored)

	releaseFirst()
	require.NoError(t, <-firstDone)

	stored, ok := store.value(SnapshotKey("cus_1"))
	require.True(t, ok)
	assert.Equal(t, 2, store.writes())
	assert.JSONEq(t, stateA, stored)

	var snap SubscriptionSnapshot
	require.NoError(t, json.Unmarshal([]byte(stored), &snap))
	assert.False(t, snap.IsNone())
	require.Len(t, snap.Subscriptions, 1)
	assert.Equal(t, "sub_1", snap.Subscriptions[0].SubscriptionID)
}
