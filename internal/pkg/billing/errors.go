package billing

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument marks a malformed identifier passed by a caller.
	ErrInvalidArgument = errors.New("billing: invalid argument")
	// ErrNotFound means the user never started billing. Expected, not a failure.
	ErrNotFound = errors.New("billing: no billing customer for user")
	// ErrSignatureInvalid rejects a webhook whose signature does not verify.
	ErrSignatureInvalid = errors.New("billing: webhook signature invalid")
	// ErrMalformedEvent marks a verified webhook we can never process.
	ErrMalformedEvent = errors.New("billing: malformed webhook event")
	// ErrProvider is matched by every *ProviderError.
	ErrProvider = errors.New("billing: provider error")
)

// ProviderError wraps a failed call to the billing provider.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("billing: provider %s failed: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrProvider) match any provider failure.
func (e *ProviderError) Is(target error) bool { return target == ErrProvider }

func providerError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{Op: op, Err: err}
}

func invalidArgument(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
