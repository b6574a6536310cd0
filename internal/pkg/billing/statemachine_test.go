package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Abdullah2434/backend/app/models"
)

func TestMapProviderStatus(t *testing.T) {
	tests := map[string]models.SubscriptionStatus{
		"active":             models.SubscriptionStatusActive,
		"TRIALING":           models.SubscriptionStatusTrialing,
		"past_due":           models.SubscriptionStatusPastDue,
		"unpaid":             models.SubscriptionStatusPastDue,
		"paused":             models.SubscriptionStatusPastDue,
		"canceled":           models.SubscriptionStatusCanceled,
		"incomplete_expired": models.SubscriptionStatusCanceled,
		"incomplete":         models.SubscriptionStatusIncomplete,
		"":                   models.SubscriptionStatusPending,
	}
	for in, want := range tests {
		assert.Equal(t, want, MapProviderStatus(in), "MapProviderStatus(%q)", in)
	}
}

func TestNextStatus(t *testing.T) {
	const (
		pending    = models.SubscriptionStatusPending
		incomplete = models.SubscriptionStatusIncomplete
		active     = models.SubscriptionStatusActive
		trialing   = models.SubscriptionStatusTrialing
		pastDue    = models.SubscriptionStatusPastDue
		canceled   = models.SubscriptionStatusCanceled
	)

	tests := []struct {
		name    string
		current models.SubscriptionStatus
		in      Transition
		want    models.SubscriptionStatus
		allowed bool
	}{
		{"create pending", "", Transition{Kind: EventSubscriptionCreated}, pending, true},
		{"create trialing", "", Transition{Kind: EventSubscriptionCreated, ProviderStatus: "trialing"}, trialing, true},
		{"checkout active", "", Transition{Kind: EventCheckoutCompleted, ProviderStatus: "active"}, active, true},
		{"mirror pending to active", pending, Transition{Kind: EventSubscriptionUpdated, ProviderStatus: "active"}, active, true},
		{"mirror trialing to past_due", trialing, Transition{Kind: EventSubscriptionUpdated, ProviderStatus: "past_due"}, pastDue, true},
		{"mirror past_due to active", pastDue, Transition{Kind: EventSubscriptionUpdated, ProviderStatus: "active"}, active, true},
		{"incomplete only from pending", active, Transition{Kind: EventSubscriptionUpdated, ProviderStatus: "incomplete"}, incomplete, false},
		{"no way back to trialing", active, Transition{Kind: EventSubscriptionUpdated, ProviderStatus: "trialing"}, trialing, false},
		{"update without status", active, Transition{Kind: EventSubscriptionUpdated}, active, true},
		{"payment failed on active", active, Transition{Kind: EventInvoicePaymentFailed}, pastDue, true},
		{"payment failed on trialing", trialing, Transition{Kind: EventInvoicePaymentFailed}, pastDue, true},
		{"late failure after success", active, Transition{Kind: EventInvoicePaymentFailed, InvoiceSucceeded: true}, active, true},
		{"paid recovers past_due", pastDue, Transition{Kind: EventInvoicePaid, AmountPaid: 1999}, active, true},
		{"paid activates incomplete", incomplete, Transition{Kind: EventInvoicePaid, AmountPaid: 1999}, active, true},
		{"zero trial invoice keeps trialing", trialing, Transition{Kind: EventInvoicePaid}, trialing, true},
		{"paid trial converts", trialing, Transition{Kind: EventInvoicePaid, AmountPaid: 1999}, active, true},
		{"deleted from past_due", pastDue, Transition{Kind: EventSubscriptionDeleted}, canceled, true},
		{"deleted from pending", pending, Transition{Kind: EventSubscriptionDeleted}, canceled, true},
		{"canceled is terminal", canceled, Transition{Kind: EventSubscriptionUpdated, ProviderStatus: "active"}, canceled, true},
		{"canceled ignores payment", canceled, Transition{Kind: EventInvoicePaid, AmountPaid: 1}, canceled, true},
		{"unknown kind", active, Transition{Kind: EventUnknown}, active, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, allowed := NextStatus(tt.current, tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.allowed, allowed)
		})
	}
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(models.SubscriptionStatusActive, models.SubscriptionStatusActive))
	assert.True(t, CanTransition(models.SubscriptionStatusPending, models.SubscriptionStatusIncomplete))
	assert.False(t, CanTransition(models.SubscriptionStatusCanceled, models.SubscriptionStatusActive))
	assert.False(t, CanTransition(models.SubscriptionStatusPastDue, models.SubscriptionStatusTrialing))
}
