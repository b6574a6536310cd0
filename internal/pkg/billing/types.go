package billing

import (
	"time"

	"github.com/Abdullah2434/backend/app/models"
)

// EventKind is the closed set of domain events the engine understands.
type EventKind string

const (
	EventCheckoutCompleted    EventKind = "checkout_completed"
	EventSubscriptionCreated  EventKind = "subscription_created"
	EventSubscriptionUpdated  EventKind = "subscription_updated"
	EventSubscriptionDeleted  EventKind = "subscription_deleted"
	EventInvoicePaid          EventKind = "invoice_paid"
	EventInvoicePaymentFailed EventKind = "invoice_payment_failed"
	EventTrialWillEnd         EventKind = "trial_will_end"
	EventUnknown              EventKind = "unknown"
)

// DomainEvent is a classified provider event, or a synthetic one built by the
// subscription service after a provider call.
type DomainEvent struct {
	ProviderEventID string
	ProviderType    string
	Kind            EventKind
	Source          string
	OccurredAt      time.Time

	SubscriptionKey string
	CustomerKey     string
	InvoiceKey      string

	// Set by checkout events and API calls: who the subscription belongs to and
	// which plan was bought.
	OwnerID string
	PlanID  string

	Subscription *ProviderSubscription
	Invoice      *ProviderInvoice

	Raw []byte
}

// LockKey returns the key the event must be serialized on.
func (e *DomainEvent) LockKey() string {
	if e.SubscriptionKey != "" {
		return subscriptionLockKey(e.SubscriptionKey)
	}
	if e.CustomerKey != "" {
		return customerLockKey(e.CustomerKey)
	}
	return ""
}

// ProviderSubscription is the provider's view of a subscription, normalized.
type ProviderSubscription struct {
	ID                 string
	CustomerID         string
	Status             string
	PriceID            string
	OwnerID            string
	PlanID             string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
	CanceledAt         *time.Time
	Created            time.Time
}

// ProviderInvoice is the provider's view of an invoice, normalized. Amounts are
// minor currency units.
type ProviderInvoice struct {
	ID             string
	SubscriptionID string
	CustomerID     string
	Status         string
	AmountPaid     int64
	AmountDue      int64
	Currency       string
	PeriodStart    time.Time
	PeriodEnd      time.Time
}

// Result describes what Apply did to the local subscription.
type Result string

const (
	ResultCreated Result = "created"
	ResultUpdated Result = "updated"
	ResultNoop    Result = "noop"
)

// Outcome is returned by Engine.Apply.
type Outcome struct {
	Result       Result
	Subscription *models.Subscription
	Record       *models.BillingRecord
}

// QuotaDecision is the result of a quota increment. A denial is not an error.
type QuotaDecision struct {
	Granted   bool `json:"granted"`
	Used      int  `json:"used"`
	Limit     int  `json:"limit"`
	Remaining int  `json:"remaining"`
}

func subscriptionLockKey(providerSubscriptionID string) string {
	return "billing:sub:" + providerSubscriptionID
}

func customerLockKey(providerCustomerID string) string {
	return "billing:cust:" + providerCustomerID
}

func ownerLockKey(ownerID string) string {
	return "billing:owner:" + ownerID
}
