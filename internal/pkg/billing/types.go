package billing

import "encoding/json"

// SnapshotStatusNone marks a customer without active subscriptions.
const SnapshotStatusNone = "none"

// PaymentMethod is the display-safe part of a subscription's default card.
type PaymentMethod struct {
	Brand string `json:"brand"`
	Last4 string `json:"last4"`
}

// SubscriptionRecord is one provider subscription normalized for the cache.
// Period bounds are epoch seconds.
type SubscriptionRecord struct {
	SubscriptionID     string         `json:"subscriptionId"`
	Status             string         `json:"status"`
	PriceID            string         `json:"priceId"`
	ProductID          string         `json:"productId"`
	CurrentPeriodStart int64          `json:"currentPeriodStart"`
	CurrentPeriodEnd   int64          `json:"currentPeriodEnd"`
	CancelAtPeriodEnd  bool           `json:"cancelAtPeriodEnd"`
	PaymentMethod      *PaymentMethod `json:"paymentMethod,omitempty"`
}

// SubscriptionSnapshot is the full subscription state of one billing
// customer. It is either {"status":"none"} or {"subscriptions":[...]}.
type SubscriptionSnapshot struct {
	Status        string               `json:"status,omitempty"`
	Subscriptions []SubscriptionRecord `json:"subscriptions,omitempty"`
}

// NoneSnapshot returns the no-subscriptions sentinel.
func NoneSnapshot() *SubscriptionSnapshot {
	return &SubscriptionSnapshot{Status: SnapshotStatusNone}
}

// IsNone reports whether the snapshot carries no subscriptions.
func (s *SubscriptionSnapshot) IsNone() bool {
	return s == nil || len(s.Subscriptions) == 0
}

// MarshalJSON always emits one of the two stored shapes; an empty
// subscription list is written as the none sentinel.
func (s SubscriptionSnapshot) MarshalJSON() ([]byte, error) {
	if len(s.Subscriptions) == 0 {
		return json.Marshal(struct {
			Status string `json:"status"`
		}{Status: SnapshotStatusNone})
	}
	return json.Marshal(struct {
		Subscriptions []SubscriptionRecord `json:"subscriptions"`
	}{Subscriptions: s.Subscriptions})
}

// UnmarshalJSON normalizes legacy or hand-written values so that readers
// only ever see one of the two shapes.
func (s *SubscriptionSnapshot) UnmarshalJSON(data []byte) error {
	var raw struct {
		Status        string               `json:"status"`
		Subscriptions []SubscriptionRecord `json:"subscriptions"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw.Subscriptions) == 0 {
		*s = SubscriptionSnapshot{Status: SnapshotStatusNone}
		return nil
	}
	*s = SubscriptionSnapshot{Subscriptions: raw.Subscriptions}
	return nil
}

// SyncRequest describes one sync to run in the background.
type SyncRequest struct {
	CustomerID string
	EventID    string
	EventType  string
	// AuditID is the webhook audit row to update once the sync finishes (0 = none).
	AuditID uint
}

// WebhookEventInput is the normalized input for webhook audit persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	CustomerID      string
	Outcome         string
}

// CheckoutInput holds the parameters of a hosted checkout session.
type CheckoutInput struct {
	CustomerID string
	UserID     string
	PriceID    string
	SuccessURL string
	CancelURL  string
}
