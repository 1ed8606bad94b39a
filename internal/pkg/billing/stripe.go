package billing

import (
	"context"
	"errors"
	"net/http"
	"strings"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// StripeClient implements Provider against the Stripe API. Every call is
// bounded by the HTTP client timeout and by the caller's context.
type StripeClient struct {
	api        *client.API
	configured bool
}

// NewStripeClient builds a client with its own backends, so tests and
// multiple instances never share the package-level stripe.Key.
func NewStripeClient(cfg Config) *StripeClient {
	cfg = cfg.withDefaults()

	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: cfg.ProviderTimeout},
		MaxNetworkRetries: stripe.Int64(1),
	}
	if cfg.APIBaseURL != "" {
		backendCfg.URL = stripe.String(strings.TrimRight(cfg.APIBaseURL, "/"))
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)

	return &StripeClient{
		api: client.New(cfg.StripeSecretKey, &stripe.Backends{
			API:     backend,
			Connect: backend,
			Uploads: backend,
		}),
		configured: cfg.StripeSecretKey != "",
	}
}

func (c *StripeClient) ready(op string) error {
	if !c.configured {
		return providerError(op, errors.New("STRIPE_SECRET_KEY is not configured"))
	}
	return nil
}

func (c *StripeClient) ListSubscriptions(ctx context.Context, customerID, status string, limit int) ([]*stripe.Subscription, error) {
	if err := c.ready("list subscriptions"); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultSubscriptionLimit
	}

	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String(status),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(int64(limit))
	params.Single = true
	params.AddExpand("data.default_payment_method")

	subs := make([]*stripe.Subscription, 0, limit)
	it := c.api.Subscriptions.List(params)
	for it.Next() {
		subs = append(subs, it.Subscription())
		if len(subs) >= limit {
			break
		}
	}
	if err := it.Err(); err != nil {
		return nil, providerError("list subscriptions", err)
	}
	return subs, nil
}

func (c *StripeClient) GetSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	if err := c.ready("retrieve subscription"); err != nil {
		return nil, err
	}
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := c.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return nil, providerError("retrieve subscription", err)
	}
	return sub, nil
}

func (c *StripeClient) SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*stripe.Subscription, error) {
	if err := c.ready("update subscription"); err != nil {
		return nil, err
	}
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(cancel),
	}
	params.Context = ctx

	sub, err := c.api.Subscriptions.Update(subscriptionID, params)
	if err != nil {
		return nil, providerError("update subscription", err)
	}
	return sub, nil
}

func (c *StripeClient) CreateCustomer(ctx context.Context, userID, email string) (string, error) {
	if err := c.ready("create customer"); err != nil {
		return "", err
	}
	params := &stripe.CustomerParams{}
	if e := strings.TrimSpace(email); e != "" {
		params.Email = stripe.String(e)
	}
	params.Context = ctx
	params.AddMetadata("user_id", userID)
	// Retries of the same first checkout must not create a second customer.
	params.SetIdempotencyKey("coursefox-customer-" + userID)

	cus, err := c.api.Customers.New(params)
	if err != nil {
		return "", providerError("create customer", err)
	}
	if strings.TrimSpace(cus.ID) == "" {
		return "", providerError("create customer", errors.New("empty customer id in response"))
	}
	return cus.ID, nil
}

func (c *StripeClient) CreateCheckoutSession(ctx context.Context, in CheckoutInput) (string, error) {
	if err := c.ready("create checkout session"); err != nil {
		return "", err
	}
	params := &stripe.CheckoutSessionParams{
		Customer:          stripe.String(in.CustomerID),
		ClientReferenceID: stripe.String(in.UserID),
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(in.PriceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL: stripe.String(in.SuccessURL),
		CancelURL:  stripe.String(in.CancelURL),
	}
	params.Context = ctx

	sess, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return "", providerError("create checkout session", err)
	}
	if sess.URL == "" {
		return "", providerError("create checkout session", errors.New("empty checkout url in response"))
	}
	return sess.URL, nil
}
