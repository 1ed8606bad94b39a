package billing

import (
	"strings"
	"unicode"
)

const (
	userKeyPrefix     = "user:"
	userKeySuffix     = ":billing-customer-id"
	customerKeyPrefix = "billing-customer:"
	customerKeySuffix = ":sub-status"

	maxIdentifierLength = 255
)

// CustomerIDKey is the cache key holding the billing customer of a user.
func CustomerIDKey(userID string) string {
	return userKeyPrefix + userID + userKeySuffix
}

// SnapshotKey is the cache key holding the subscription snapshot of a customer.
func SnapshotKey(customerID string) string {
	return customerKeyPrefix + customerID + customerKeySuffix
}

// SnapshotKeyPattern matches every snapshot key (for SCAN).
const SnapshotKeyPattern = customerKeyPrefix + "*" + customerKeySuffix

// CustomerIDFromSnapshotKey is the inverse of SnapshotKey.
func CustomerIDFromSnapshotKey(key string) (string, bool) {
	if !strings.HasPrefix(key, customerKeyPrefix) || !strings.HasSuffix(key, customerKeySuffix) {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(key, customerKeyPrefix), customerKeySuffix)
	if validateIdentifier("customer id", id) != nil {
		return "", false
	}
	return id, true
}

// validateIdentifier rejects ids that would break the key layout.
func validateIdentifier(name, id string) error {
	if id == "" {
		return invalidArgument("%s is empty", name)
	}
	if len(id) > maxIdentifierLength {
		return invalidArgument("%s is longer than %d bytes", name, maxIdentifierLength)
	}
	for _, r := range id {
		if r == ':' || unicode.IsSpace(r) || unicode.IsControl(r) {
			return invalidArgument("%s %q contains forbidden characters", name, id)
		}
	}
	return nil
}
