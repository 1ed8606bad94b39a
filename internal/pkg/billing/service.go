package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"golang.org/x/sync/singleflight"

	"github.com/ManuelReschke/CourseFox/internal/pkg/cache"
)

// Service is the read/trigger API used by request handlers. Reads never call
// the provider; triggers run a sync inline and return its result.
type Service struct {
	syncer     *Syncer
	provider   Provider
	store      cache.Store
	dispatcher Dispatcher
	cfg        Config

	customers singleflight.Group

	backfillMu sync.Mutex
	backfills  map[string]time.Time
}

// backfillWindow is how long a scheduled backfill suppresses further ones for
// the same customer.
const backfillWindow = time.Minute

// NewService wires the billing service. dispatcher may be nil, in which case
// cache misses on read are not backfilled.
func NewService(syncer *Syncer, provider Provider, store cache.Store, dispatcher Dispatcher, cfg Config) *Service {
	return &Service{
		syncer:     syncer,
		provider:   provider,
		store:      store,
		dispatcher: dispatcher,
		cfg:        cfg.withDefaults(),
		backfills:  map[string]time.Time{},
	}
}

// Config returns the effective billing configuration.
func (s *Service) Config() Config {
	return s.cfg
}

// CustomerID returns the billing customer of userID or ErrNotFound.
func (s *Service) CustomerID(ctx context.Context, userID string) (string, error) {
	if err := validateIdentifier("user id", userID); err != nil {
		return "", err
	}
	customerID, err := s.store.Get(ctx, CustomerIDKey(userID))
	if errors.Is(err, cache.ErrMiss) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load billing customer: %w", err)
	}
	return customerID, nil
}

// GetStatus returns the cached snapshot of the user's customer. A customer
// whose snapshot was never written reads as none and gets a background sync.
func (s *Service) GetStatus(ctx context.Context, userID string) (*SubscriptionSnapshot, error) {
	customerID, err := s.CustomerID(ctx, userID)
	if err != nil {
		return nil, err
	}

	raw, err := s.store.Get(ctx, SnapshotKey(customerID))
	if errors.Is(err, cache.ErrMiss) {
		s.backfill(ctx, customerID)
		return NoneSnapshot(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snapshot SubscriptionSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		log.Errorf("[BillingSync] Snapshot of customer %s is unreadable: %v", customerID, err)
		s.backfill(ctx, customerID)
		return NoneSnapshot(), nil
	}
	return &snapshot, nil
}

func (s *Service) backfill(ctx context.Context, customerID string) {
	if s.dispatcher == nil || !s.claimBackfill(customerID, time.Now()) {
		return
	}
	req := SyncRequest{CustomerID: customerID, EventType: "status.backfill"}
	if err := s.dispatcher.DispatchSync(ctx, req); err != nil {
		log.Warnf("[BillingSync] Failed to schedule backfill for customer %s: %v", customerID, err)
		s.releaseBackfill(customerID)
	}
}

// claimBackfill reports whether a backfill for customerID may be scheduled
// now. At most one is scheduled per customer and window.
func (s *Service) claimBackfill(customerID string, now time.Time) bool {
	s.backfillMu.Lock()
	defer s.backfillMu.Unlock()

	if last, ok := s.backfills[customerID]; ok && now.Sub(last) < backfillWindow {
		return false
	}
	for id, last := range s.backfills {
		if now.Sub(last) >= backfillWindow {
			delete(s.backfills, id)
		}
	}
	s.backfills[customerID] = now
	return true
}

func (s *Service) releaseBackfill(customerID string) {
	s.backfillMu.Lock()
	delete(s.backfills, customerID)
	s.backfillMu.Unlock()
}

// ForceResync syncs the user's customer now and returns the fresh snapshot.
func (s *Service) ForceResync(ctx context.Context, userID string) (*SubscriptionSnapshot, error) {
	customerID, err := s.CustomerID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.syncer.Sync(ctx, customerID)
}

// GetOrCreateBillingCustomer returns the user's customer, creating it at the
// provider on first use. An existing mapping is never replaced.
func (s *Service) GetOrCreateBillingCustomer(ctx context.Context, userID, email string) (string, error) {
	customerID, err := s.CustomerID(ctx, userID)
	if err == nil {
		return customerID, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", err
	}

	// Callers share one create; it must not fail for all of them when the
	// first caller goes away.
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.customers.Do(userID, func() (interface{}, error) {
		return s.createCustomer(shared, userID, email)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *Service) createCustomer(ctx context.Context, userID, email string) (string, error) {
	callCtx, cancel := s.providerContext(ctx)
	defer cancel()

	created, err := s.provider.CreateCustomer(callCtx, userID, strings.TrimSpace(email))
	if err != nil {
		return "", providerError("create customer", err)
	}
	if err := validateIdentifier("customer id", created); err != nil {
		return "", providerError("create customer", err)
	}

	key := CustomerIDKey(userID)
	stored, err := s.store.SetIfAbsent(ctx, key, created)
	if err != nil {
		return "", fmt.Errorf("store billing customer: %w", err)
	}
	if stored {
		log.Infof("[BillingSync] Created billing customer %s for user %s", created, userID)
		return created, nil
	}

	// Another instance created the mapping first; theirs is authoritative.
	existing, err := s.store.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("load billing customer: %w", err)
	}
	if existing != created {
		log.Warnf("[BillingSync] User %s already mapped to %s, customer %s is orphaned", userID, existing, created)
	}
	return existing, nil
}

// SetCancelAtPeriodEnd flips cancel-at-period-end on a subscription owned by
// the user and resyncs.
func (s *Service) SetCancelAtPeriodEnd(ctx context.Context, userID, subscriptionID string, cancel bool) (*SubscriptionSnapshot, error) {
	if err := validateIdentifier("subscription id", subscriptionID); err != nil {
		return nil, err
	}
	customerID, err := s.CustomerID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.updateCancelAtPeriodEnd(ctx, customerID, subscriptionID, cancel); err != nil {
		return nil, err
	}
	return s.syncer.Sync(ctx, customerID)
}

func (s *Service) updateCancelAtPeriodEnd(ctx context.Context, customerID, subscriptionID string, cancel bool) error {
	callCtx, done := s.providerContext(ctx)
	defer done()

	sub, err := s.provider.GetSubscription(callCtx, subscriptionID)
	if err != nil {
		return providerError("retrieve subscription", err)
	}
	if sub == nil || sub.Customer == nil || sub.Customer.ID != customerID {
		return invalidArgument("subscription %s does not belong to customer %s", subscriptionID, customerID)
	}
	if sub.CancelAtPeriodEnd == cancel {
		return nil
	}

	if _, err := s.provider.SetCancelAtPeriodEnd(callCtx, subscriptionID, cancel); err != nil {
		return providerError("update subscription", err)
	}
	log.Infof("[BillingSync] Subscription %s of customer %s: cancel_at_period_end=%t", subscriptionID, customerID, cancel)
	return nil
}

// CreateCheckout returns a hosted checkout URL for priceID, creating the
// user's billing customer if needed. An empty priceID uses the default price.
func (s *Service) CreateCheckout(ctx context.Context, userID, email, priceID string) (string, error) {
	priceID = strings.TrimSpace(priceID)
	if priceID == "" {
		priceID = s.cfg.DefaultPriceID
	}
	if err := validateIdentifier("price id", priceID); err != nil {
		return "", err
	}

	customerID, err := s.GetOrCreateBillingCustomer(ctx, userID, email)
	if err != nil {
		return "", err
	}

	callCtx, cancel := s.providerContext(ctx)
	defer cancel()

	url, err := s.provider.CreateCheckoutSession(callCtx, CheckoutInput{
		CustomerID: customerID,
		UserID:     userID,
		PriceID:    priceID,
		SuccessURL: s.cfg.SuccessURL(),
		CancelURL:  s.cfg.CancelURL(),
	})
	if err != nil {
		return "", providerError("create checkout session", err)
	}
	return url, nil
}

func (s *Service) providerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.ProviderTimeout)
}
