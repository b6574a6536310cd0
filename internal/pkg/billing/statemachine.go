package billing

import (
	"strings"

	"github.com/Abdullah2434/backend/app/models"
)

// allowedTransitions is the status graph. Canceled is terminal and therefore
// has no entry.
var allowedTransitions = map[models.SubscriptionStatus][]models.SubscriptionStatus{
	models.SubscriptionStatusPending: {
		models.SubscriptionStatusIncomplete, models.SubscriptionStatusActive, models.SubscriptionStatusTrialing,
		models.SubscriptionStatusPastDue, models.SubscriptionStatusCanceled,
	},
	models.SubscriptionStatusIncomplete: {
		models.SubscriptionStatusActive, models.SubscriptionStatusTrialing, models.SubscriptionStatusPastDue, models.SubscriptionStatusCanceled,
	},
	models.SubscriptionStatusTrialing: {models.SubscriptionStatusActive, models.SubscriptionStatusPastDue, models.SubscriptionStatusCanceled},
	models.SubscriptionStatusActive:   {models.SubscriptionStatusPastDue, models.SubscriptionStatusCanceled},
	models.SubscriptionStatusPastDue:  {models.SubscriptionStatusActive, models.SubscriptionStatusCanceled},
}

// CanTransition reports whether from -> to is an edge of the status graph.
// Staying in the same status is always allowed.
func CanTransition(from, to models.SubscriptionStatus) bool {
	if from == to {
		return true
	}
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// MapProviderStatus converts a provider subscription status into the local
// enum. Provider states the local model does not distinguish collapse onto
// the closest local one.
func MapProviderStatus(status string) models.SubscriptionStatus {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "active":
		return models.SubscriptionStatusActive
	case "trialing":
		return models.SubscriptionStatusTrialing
	case "past_due", "unpaid", "paused":
		return models.SubscriptionStatusPastDue
	case "canceled", "incomplete_expired":
		return models.SubscriptionStatusCanceled
	case "incomplete":
		return models.SubscriptionStatusIncomplete
	default:
		return models.SubscriptionStatusPending
	}
}

// Transition is the input to NextStatus.
type Transition struct {
	Kind EventKind
	// ProviderStatus is the raw provider status carried by a subscription
	// snapshot, empty when the event has none.
	ProviderStatus string
	// AmountPaid of an invoice event, minor units.
	AmountPaid int64
	// InvoiceSucceeded is true when the ledger already holds a succeeded
	// record for the event's invoice.
	InvoiceSucceeded bool
}

// NextStatus computes the status a subscription in status current moves to
// when t is applied. A zero current means no local record exists yet. The
// second result is false when the computed target is not reachable from
// current; the caller then keeps current and may report the refused target.
func NextStatus(current models.SubscriptionStatus, t Transition) (models.SubscriptionStatus, bool) {
	if current.IsTerminal() {
		return current, true
	}

	var target models.SubscriptionStatus
	switch t.Kind {
	case EventCheckoutCompleted, EventSubscriptionCreated, EventSubscriptionUpdated, EventTrialWillEnd:
		if t.ProviderStatus == "" {
			if current == "" {
				return models.SubscriptionStatusPending, true
			}
			return current, true
		}
		target = MapProviderStatus(t.ProviderStatus)

	case EventSubscriptionDeleted:
		target = models.SubscriptionStatusCanceled

	case EventInvoicePaid:
		switch current {
		case models.SubscriptionStatusPastDue, models.SubscriptionStatusIncomplete, models.SubscriptionStatusPending:
			target = models.SubscriptionStatusActive
		case models.SubscriptionStatusTrialing:
			if t.AmountPaid > 0 {
				target = models.SubscriptionStatusActive
			} else {
				target = current
			}
		case "":
			target = models.SubscriptionStatusActive
		default:
			target = current
		}

	case EventInvoicePaymentFailed:
		switch {
		case t.InvoiceSucceeded:
			target = current
		case current == models.SubscriptionStatusActive, current == models.SubscriptionStatusTrialing:
			target = models.SubscriptionStatusPastDue
		case current == "":
			target = models.SubscriptionStatusPastDue
		default:
			target = current
		}

	default:
		return current, true
	}

	if current == "" {
		return target, true
	}
	if !CanTransition(current, target) {
		return target, false
	}
	return target, true
}
