package billing

import (
	"context"

	stripe "github.com/stripe/stripe-go/v82"
)

// Provider is the slice of the billing provider API the core consumes.
// Reads are idempotent; writes are authoritative on the provider side and
// are always followed by a full resync.
type Provider interface {
	// ListSubscriptions returns at most limit subscriptions of the customer
	// in the given status, newest first.
	ListSubscriptions(ctx context.Context, customerID, status string, limit int) ([]*stripe.Subscription, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error)
	SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*stripe.Subscription, error)
	CreateCustomer(ctx context.Context, userID, email string) (string, error)
	// CreateCheckoutSession returns the hosted checkout URL.
	CreateCheckoutSession(ctx context.Context, in CheckoutInput) (string, error)
}
