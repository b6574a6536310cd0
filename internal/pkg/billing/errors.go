package billing

import (
	"errors"
	"fmt"
)

var (
	// ErrSignatureInvalid is returned for forged, stale or unparsable signatures.
	ErrSignatureInvalid = errors.New("billing: webhook signature invalid")

	// ErrMalformedPayload is returned when a signed payload cannot be decoded.
	ErrMalformedPayload = errors.New("billing: malformed webhook payload")

	// ErrPermanentConflict means the event can never be applied, retrying will
	// not help. The event is still marked processed.
	ErrPermanentConflict = errors.New("billing: permanent reconciliation conflict")

	// ErrNotFound matches a missing local record or provider object.
	ErrNotFound = errors.New("billing: not found")

	ErrAlreadySubscribed    = errors.New("billing: owner already has a subscription")
	ErrUnknownPlan          = errors.New("billing: unknown plan")
	ErrNoActiveSubscription = errors.New("billing: no active subscription")
)

// TransientProviderError wraps a provider failure that is worth retrying
// (network, rate limit, provider 5xx). Callers never retry inline; the webhook
// endpoint answers 5xx so the provider redelivers.
type TransientProviderError struct {
	Op  string
	Err error
}

func (e *TransientProviderError) Error() string {
	return fmt.Sprintf("billing: transient provider error during %s: %v", e.Op, e.Err)
}

func (e *TransientProviderError) Unwrap() error { return e.Err }

// IsTransient reports whether err carries a TransientProviderError.
func IsTransient(err error) bool {
	var te *TransientProviderError
	return errors.As(err, &te)
}

func conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPermanentConflict, fmt.Sprintf(format, args...))
}
