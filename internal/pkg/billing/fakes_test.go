package billing

import (
	"context"
	"errors"
	"sync"

	stripe "github.com/stripe/stripe-go/v82"

	"github.com/ManuelReschke/CourseFox/internal/pkg/cache"
)

// memoryStore is an in-memory cache.Store that counts writes.
type memoryStore struct {
	mu     sync.Mutex
	data   map[string]string
	sets   int
	setErr error
	getErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string]string{}}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return "", cache.ErrMiss
	}
	return v, nil
}

func (m *memoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.sets++
	m.data[key] = value
	return nil
}

func (m *memoryStore) SetIfAbsent(_ context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return false, m.setErr
	}
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.sets++
	m.data[key] = value
	return true, nil
}

func (m *memoryStore) writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sets
}

func (m *memoryStore) value(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

// fakeProvider serves subscriptions from memory.
type fakeProvider struct {
	mu sync.Mutex

	subs       map[string][]*stripe.Subscription
	byID       map[string]*stripe.Subscription
	listErr    error
	getErr     error
	updateErr  error
	createErr  error
	checkout   string
	checkoutIn CheckoutInput

	listCalls   int
	createCalls int
	updateCalls int
	nextID      string

	// createGate, when set, holds CreateCustomer until closed.
	createGate    chan struct{}
	createStarted chan struct{}
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		subs:     map[string][]*stripe.Subscription{},
		byID:     map[string]*stripe.Subscription{},
		checkout: "https://checkout.stripe.test/c/pay/cs_test_1",
		nextID:   "cus_new",
	}
}

func (p *fakeProvider) setSubscriptions(customerID string, subs ...*stripe.Subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs[customerID] = subs
	for _, s := range subs {
		p.byID[s.ID] = s
	}
}

func (p *fakeProvider) ListSubscriptions(_ context.Context, customerID, status string, limit int) ([]*stripe.Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listCalls++
	if p.listErr != nil {
		return nil, p.listErr
	}
	var out []*stripe.Subscription
	for _, s := range p.subs[customerID] {
		if string(s.Status) != status {
			continue
		}
		out = append(out, s)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (p *fakeProvider) GetSubscription(_ context.Context, subscriptionID string) (*stripe.Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.getErr != nil {
		return nil, p.getErr
	}
	s, ok := p.byID[subscriptionID]
	if !ok {
		return nil, errors.New("no such subscription")
	}
	return s, nil
}

func (p *fakeProvider) SetCancelAtPeriodEnd(_ context.Context, subscriptionID string, cancel bool) (*stripe.Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updateCalls++
	if p.updateErr != nil {
		return nil, p.updateErr
	}
	s, ok := p.byID[subscriptionID]
	if !ok {
		return nil, errors.New("no such subscription")
	}
	s.CancelAtPeriodEnd = cancel
	return s, nil
}

func (p *fakeProvider) CreateCustomer(ctx context.Context, _, _ string) (string, error) {
	p.mu.Lock()
	p.createCalls++
	gate, started := p.createGate, p.createStarted
	id, err := p.nextID, p.createErr
	p.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

func (p *fakeProvider) CreateCheckoutSession(_ context.Context, in CheckoutInput) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkoutIn = in
	return p.checkout, nil
}

func (p *fakeProvider) calls() (list, create, update int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.listCalls, p.createCalls, p.updateCalls
}

// gatedProvider reads provider state when ListSubscriptions is called, then
// holds the result until the gate of that call is released. Calls without a
// gate return at once.
type gatedProvider struct {
	*fakeProvider

	mu     sync.Mutex
	gates  map[int]chan struct{}
	listed int
	read   chan int
}

func newGatedProvider() *gatedProvider {
	return &gatedProvider{
		fakeProvider: newFakeProvider(),
		gates:        map[int]chan struct{}{},
		read:         make(chan int, 8),
	}
}

// hold makes call n (zero based) wait until the returned func is called.
func (g *gatedProvider) hold(n int) func() {
	gate := make(chan struct{})
	g.mu.Lock()
	g.gates[n] = gate
	g.mu.Unlock()
	return func() { close(gate) }
}

func (g *gatedProvider) ListSubscriptions(ctx context.Context, customerID, status string, limit int) ([]*stripe.Subscription, error) {
	subs, err := g.fakeProvider.ListSubscriptions(ctx, customerID, status, limit)

	g.mu.Lock()
	n := g.listed
	g.listed++
	gate := g.gates[n]
	g.mu.Unlock()

	g.read <- n
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return subs, err
}

// recordingDispatcher keeps dispatched requests.
type recordingDispatcher struct {
	mu   sync.Mutex
	reqs []SyncRequest
	err  error
}

func (d *recordingDispatcher) DispatchSync(_ context.Context, req SyncRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.reqs = append(d.reqs, req)
	return nil
}

func (d *recordingDispatcher) requests() []SyncRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]SyncRequest(nil), d.reqs...)
}

// memoryAudit is an AuditLog that keeps rows in memory.
type memoryAudit struct {
	mu        sync.Mutex
	rows      []WebhookEventInput
	processed map[uint]error
	err       error
}

func (a *memoryAudit) RecordDelivery(_ context.Context, in WebhookEventInput) (uint, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return 0, a.err
	}
	a.rows = append(a.rows, in)
	return uint(len(a.rows)), nil
}

func (a *memoryAudit) MarkProcessed(_ context.Context, id uint, processingErr error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.processed == nil {
		a.processed = map[uint]error{}
	}
	a.processed[id] = processingErr
	return nil
}

func activeSub(id, customerID, priceID, productID string, start, end int64) *stripe.Subscription {
	return &stripe.Subscription{
		ID:       id,
		Status:   stripe.SubscriptionStatusActive,
		Customer: &stripe.Customer{ID: customerID},
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{{
				ID:                 "si_" + id,
				Price:              &stripe.Price{ID: priceID, Product: &stripe.Product{ID: productID}},
				CurrentPeriodStart: start,
				CurrentPeriodEnd:   end,
			}},
		},
	}
}

func testConfig() Config {
	return Config{
		WebhookSecret:     "whsec_test_secret",
		SubscriptionLimit: 3,
		PublicBaseURL:     "https://courses.example.com",
		ReturnURL:         "/courses",
		DefaultPriceID:    "price_default",
	}.withDefaults()
}
