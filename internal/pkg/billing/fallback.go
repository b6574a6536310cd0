package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"golang.org/x/sync/singleflight"
)

// Hint narrows which of a customer's subscriptions an event is about.
type Hint struct {
	SubscriptionID string
	InvoiceID      string
}

// Fallback pulls authoritative subscription state from the provider when an
// event references a subscription the local store does not know. It only
// fetches; the engine materializes the result. Identical concurrent fetches
// share one provider call.
type Fallback struct {
	provider Provider
	metrics  *Metrics
	group    singleflight.Group
}

// NewFallback creates a Fallback.
func NewFallback(provider Provider, metrics *Metrics) *Fallback {
	return &Fallback{provider: provider, metrics: metrics}
}

// SyncBySubscription fetches one subscription by provider id.
func (f *Fallback) SyncBySubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error) {
	v, err, _ := f.group.Do("sub:"+subscriptionID, func() (any, error) {
		return f.provider.RetrieveSubscription(ctx, subscriptionID)
	})
	f.metrics.observeFallback("subscription", err)
	if err != nil {
		return nil, fmt.Errorf("fallback: retrieve subscription %s: %w", subscriptionID, err)
	}
	snap := *v.(*ProviderSubscription)
	return &snap, nil
}

// SyncByCustomer lists the customer's subscriptions and picks the one the
// hint points at, else the most recently created non-canceled one.
func (f *Fallback) SyncByCustomer(ctx context.Context, customerID string, hint Hint) (*ProviderSubscription, error) {
	if hint.SubscriptionID == "" && hint.InvoiceID != "" {
		inv, err := f.provider.RetrieveInvoice(ctx, hint.InvoiceID)
		switch {
		case err == nil:
			hint.SubscriptionID = inv.SubscriptionID
		case errors.Is(err, ErrNotFound):
			log.Warnf("[Billing] Fallback hint invoice %s not found at provider", hint.InvoiceID)
		default:
			return nil, fmt.Errorf("fallback: retrieve invoice %s: %w", hint.InvoiceID, err)
		}
	}

	v, err, _ := f.group.Do("cust:"+customerID, func() (any, error) {
		return f.provider.ListSubscriptionsForCustomer(ctx, customerID)
	})
	f.metrics.observeFallback("customer", err)
	if err != nil {
		return nil, fmt.Errorf("fallback: list subscriptions of %s: %w", customerID, err)
	}

	snap, ok := pickSubscription(v.([]ProviderSubscription), hint.SubscriptionID)
	if !ok {
		return nil, fmt.Errorf("fallback: no usable subscription for customer %s: %w", customerID, ErrNotFound)
	}
	return &snap, nil
}

func pickSubscription(subs []ProviderSubscription, hintID string) (ProviderSubscription, bool) {
	if hintID != "" {
		for _, s := range subs {
			if s.ID == hintID {
				return s, true
			}
		}
	}
	var best ProviderSubscription
	found := false
	for _, s := range subs {
		if MapProviderStatus(s.Status).IsTerminal() {
			continue
		}
		if !found || s.Created.After(best.Created) {
			best = s
			found = true
		}
	}
	return best, found
}
