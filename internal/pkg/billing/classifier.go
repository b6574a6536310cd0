package billing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"

	"github.com/Abdullah2434/backend/app/models"
)

var eventKinds = map[string]EventKind{
	"checkout.session.completed":           EventCheckoutCompleted,
	"customer.subscription.created":        EventSubscriptionCreated,
	"customer.subscription.updated":        EventSubscriptionUpdated,
	"customer.subscription.deleted":        EventSubscriptionDeleted,
	"customer.subscription.trial_will_end": EventTrialWillEnd,
	"invoice.paid":                         EventInvoicePaid,
	"invoice.payment_succeeded":            EventInvoicePaid,
	"invoice.payment_failed":               EventInvoicePaymentFailed,
}

// Classify decodes a verified webhook body into a DomainEvent. Unknown event
// types are returned with Kind EventUnknown rather than an error so new
// provider event types never fail delivery.
func Classify(payload []byte) (*DomainEvent, error) {
	var env stripe.Event
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if strings.TrimSpace(env.ID) == "" {
		return nil, fmt.Errorf("%w: missing event id", ErrMalformedPayload)
	}

	ev := &DomainEvent{
		ProviderEventID: env.ID,
		ProviderType:    string(env.Type),
		Source:          models.EventSourceWebhook,
		Raw:             payload,
	}
	if env.Created > 0 {
		ev.OccurredAt = time.Unix(env.Created, 0).UTC()
	}

	kind, ok := eventKinds[string(env.Type)]
	if !ok {
		ev.Kind = EventUnknown
		return ev, nil
	}
	ev.Kind = kind

	if env.Data == nil || len(env.Data.Raw) == 0 {
		return nil, fmt.Errorf("%w: %s without data.object", ErrMalformedPayload, env.Type)
	}
	raw := env.Data.Raw

	switch kind {
	case EventCheckoutCompleted:
		var obj checkoutObject
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("%w: checkout session: %v", ErrMalformedPayload, err)
		}
		ev.SubscriptionKey = obj.Subscription.ID
		ev.CustomerKey = obj.Customer.ID
		ev.OwnerID = firstNonEmpty(obj.ClientReferenceID, obj.Metadata["owner_id"])
		ev.PlanID = obj.Metadata["plan_id"]
		if ev.SubscriptionKey == "" {
			// One-off payments carry no subscription, nothing to reconcile.
			ev.Kind = EventUnknown
		}

	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted, EventTrialWillEnd:
		var obj subscriptionObject
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("%w: subscription: %v", ErrMalformedPayload, err)
		}
		if obj.ID == "" {
			return nil, fmt.Errorf("%w: subscription without id", ErrMalformedPayload)
		}
		snap := obj.normalize()
		ev.Subscription = &snap
		ev.SubscriptionKey = snap.ID
		ev.CustomerKey = snap.CustomerID
		ev.OwnerID = snap.OwnerID
		ev.PlanID = snap.PlanID

	case EventInvoicePaid, EventInvoicePaymentFailed:
		var obj invoiceObject
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("%w: invoice: %v", ErrMalformedPayload, err)
		}
		if obj.ID == "" {
			return nil, fmt.Errorf("%w: invoice without id", ErrMalformedPayload)
		}
		inv := obj.normalize()
		ev.Invoice = &inv
		ev.InvoiceKey = inv.ID
		ev.SubscriptionKey = inv.SubscriptionID
		ev.CustomerKey = inv.CustomerID
		if ev.SubscriptionKey == "" && ev.CustomerKey == "" {
			return nil, fmt.Errorf("%w: invoice %s references neither subscription nor customer", ErrMalformedPayload, inv.ID)
		}
	}

	return ev, nil
}

// expandableID accepts either a bare id string or an expanded object with an
// "id" field.
type expandableID struct {
	ID string
}

func (e *expandableID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &e.ID)
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	e.ID = obj.ID
	return nil
}

type checkoutObject struct {
	ID                string            `json:"id"`
	Mode              string            `json:"mode"`
	Customer          expandableID      `json:"customer"`
	Subscription      expandableID      `json:"subscription"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

type periodObject struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

type subscriptionObject struct {
	ID                 string            `json:"id"`
	Customer           expandableID      `json:"customer"`
	Status             string            `json:"status"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	CanceledAt         int64             `json:"canceled_at"`
	Created            int64             `json:"created"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	Metadata           map[string]string `json:"metadata"`
	Items              struct {
		Data []struct {
			CurrentPeriodStart int64 `json:"current_period_start"`
			CurrentPeriodEnd   int64 `json:"current_period_end"`
			Price              struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

func (o subscriptionObject) normalize() ProviderSubscription {
	out := ProviderSubscription{
		ID:                o.ID,
		CustomerID:        o.Customer.ID,
		Status:            o.Status,
		OwnerID:           o.Metadata["owner_id"],
		PlanID:            o.Metadata["plan_id"],
		CancelAtPeriodEnd: o.CancelAtPeriodEnd,
		Created:           unixTime(o.Created),
	}
	start, end := o.CurrentPeriodStart, o.CurrentPeriodEnd
	// Newer API versions moved periods onto the subscription items.
	for _, item := range o.Items.Data {
		if out.PriceID == "" {
			out.PriceID = item.Price.ID
		}
		if start == 0 && end == 0 {
			start, end = item.CurrentPeriodStart, item.CurrentPeriodEnd
		}
	}
	out.CurrentPeriodStart = unixTime(start)
	out.CurrentPeriodEnd = unixTime(end)
	if o.CanceledAt > 0 {
		t := unixTime(o.CanceledAt)
		out.CanceledAt = &t
	}
	return out
}

type invoiceObject struct {
	ID           string       `json:"id"`
	Customer     expandableID `json:"customer"`
	Subscription expandableID `json:"subscription"`
	Parent       struct {
		SubscriptionDetails struct {
			Subscription expandableID `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
	Status      string `json:"status"`
	AmountPaid  int64  `json:"amount_paid"`
	AmountDue   int64  `json:"amount_due"`
	Currency    string `json:"currency"`
	PeriodStart int64  `json:"period_start"`
	PeriodEnd   int64  `json:"period_end"`
	Lines       struct {
		Data []struct {
			Period periodObject `json:"period"`
		} `json:"data"`
	} `json:"lines"`
}

func (o invoiceObject) normalize() ProviderInvoice {
	out := ProviderInvoice{
		ID:             o.ID,
		SubscriptionID: firstNonEmpty(o.Parent.SubscriptionDetails.Subscription.ID, o.Subscription.ID),
		CustomerID:     o.Customer.ID,
		Status:         o.Status,
		AmountPaid:     o.AmountPaid,
		AmountDue:      o.AmountDue,
		Currency:       strings.ToLower(o.Currency),
	}
	// Line periods describe the service period being paid for; the invoice
	// level period is the previous cycle on subscription renewals.
	var start, end int64
	for _, line := range o.Lines.Data {
		if line.Period.End > end {
			start, end = line.Period.Start, line.Period.End
		}
	}
	if end == 0 {
		start, end = o.PeriodStart, o.PeriodEnd
	}
	out.PeriodStart = unixTime(start)
	out.PeriodEnd = unixTime(end)
	return out
}

func unixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
