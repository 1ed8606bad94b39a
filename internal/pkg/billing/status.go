package billing

import (
	"strings"

	stripe "github.com/stripe/stripe-go/v82"
)

// Snapshots only ever hold subscriptions listed with status active.
func isEntitlingStatus(status string) bool {
	return strings.ToLower(strings.TrimSpace(status)) == string(stripe.SubscriptionStatusActive)
}

// Entitled reports whether any subscription in the snapshot grants access.
func (s *SubscriptionSnapshot) Entitled() bool {
	if s.IsNone() {
		return false
	}
	for _, rec := range s.Subscriptions {
		if isEntitlingStatus(rec.Status) {
			return true
		}
	}
	return false
}
