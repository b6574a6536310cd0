package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// StripeProvider implements Provider on the Stripe API.
type StripeProvider struct {
	api *client.API
}

// NewStripeProvider creates a provider authenticated with secretKey. The
// client is private to the provider; the package level stripe.Key is left
// alone.
func NewStripeProvider(secretKey string) *StripeProvider {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeProvider{api: api}
}

func (p *StripeProvider) RetrieveSubscription(ctx context.Context, id string) (*ProviderSubscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := p.api.Subscriptions.Get(id, params)
	if err != nil {
		return nil, classifyStripeError("retrieve subscription", err)
	}
	return toProviderSubscription(sub)
}

func (p *StripeProvider) ListSubscriptionsForCustomer(ctx context.Context, customerID string) ([]ProviderSubscription, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	}
	params.Context = ctx

	var out []ProviderSubscription
	it := p.api.Subscriptions.List(params)
	for it.Next() {
		snap, err := toProviderSubscription(it.Subscription())
		if err != nil {
			return nil, err
		}
		out = append(out, *snap)
	}
	if err := it.Err(); err != nil {
		return nil, classifyStripeError("list subscriptions", err)
	}
	return out, nil
}

func (p *StripeProvider) RetrieveInvoice(ctx context.Context, id string) (*ProviderInvoice, error) {
	params := &stripe.InvoiceParams{}
	params.Context = ctx
	inv, err := p.api.Invoices.Get(id, params)
	if err != nil {
		return nil, classifyStripeError("retrieve invoice", err)
	}
	var obj invoiceObject
	if err := remarshal(inv, &obj); err != nil {
		return nil, err
	}
	out := obj.normalize()
	return &out, nil
}

func (p *StripeProvider) CreateCustomer(ctx context.Context, ownerID, email string) (string, error) {
	params := &stripe.CustomerParams{}
	if email != "" {
		params.Email = stripe.String(email)
	}
	params.AddMetadata("owner_id", ownerID)
	params.Context = ctx
	c, err := p.api.Customers.New(params)
	if err != nil {
		return "", classifyStripeError("create customer", err)
	}
	return c.ID, nil
}

func (p *StripeProvider) CreateSubscription(ctx context.Context, in CreateSubscriptionParams) (*ProviderSubscription, error) {
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(in.CustomerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(in.PriceID)},
		},
		// The first invoice is paid through the hosted flow; until then the
		// subscription stays incomplete.
		PaymentBehavior: stripe.String("default_incomplete"),
	}
	params.AddMetadata("owner_id", in.OwnerID)
	params.AddMetadata("plan_id", in.PlanID)
	params.Context = ctx
	sub, err := p.api.Subscriptions.New(params)
	if err != nil {
		return nil, classifyStripeError("create subscription", err)
	}
	return toProviderSubscription(sub)
}

func (p *StripeProvider) CancelSubscription(ctx context.Context, id string, atPeriodEnd bool) (*ProviderSubscription, error) {
	if atPeriodEnd {
		params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(true)}
		params.Context = ctx
		sub, err := p.api.Subscriptions.Update(id, params)
		if err != nil {
			return nil, classifyStripeError("schedule cancellation", err)
		}
		return toProviderSubscription(sub)
	}

	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	sub, err := p.api.Subscriptions.Cancel(id, params)
	if err != nil {
		return nil, classifyStripeError("cancel subscription", err)
	}
	return toProviderSubscription(sub)
}

func (p *StripeProvider) ChangeSubscriptionPrice(ctx context.Context, id, priceID string) (*ProviderSubscription, error) {
	getParams := &stripe.SubscriptionParams{}
	getParams.Context = ctx
	current, err := p.api.Subscriptions.Get(id, getParams)
	if err != nil {
		return nil, classifyStripeError("retrieve subscription", err)
	}
	if current.Items == nil || len(current.Items.Data) == 0 {
		return nil, fmt.Errorf("billing: subscription %s has no items to reprice", id)
	}

	params := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{
			{ID: stripe.String(current.Items.Data[0].ID), Price: stripe.String(priceID)},
		},
		ProrationBehavior: stripe.String("create_prorations"),
	}
	params.Context = ctx
	sub, err := p.api.Subscriptions.Update(id, params)
	if err != nil {
		return nil, classifyStripeError("change price", err)
	}
	return toProviderSubscription(sub)
}

// toProviderSubscription normalizes through the same decoder the webhook
// classifier uses, so API responses and webhook payloads cannot disagree.
func toProviderSubscription(sub *stripe.Subscription) (*ProviderSubscription, error) {
	var obj subscriptionObject
	if err := remarshal(sub, &obj); err != nil {
		return nil, err
	}
	out := obj.normalize()
	return &out, nil
}

func remarshal(in, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("billing: encode provider object: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("billing: decode provider object: %w", err)
	}
	return nil
}

// classifyStripeError maps Stripe failures onto the billing error taxonomy.
func classifyStripeError(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch {
		case stripeErr.Code == stripe.ErrorCodeResourceMissing, stripeErr.HTTPStatusCode == http.StatusNotFound:
			return fmt.Errorf("%s: %w", op, ErrNotFound)
		case stripeErr.HTTPStatusCode == http.StatusTooManyRequests,
			stripeErr.HTTPStatusCode >= http.StatusInternalServerError:
			return &TransientProviderError{Op: op, Err: err}
		}
		return fmt.Errorf("billing: %s: %w", op, err)
	}
	// No API error means the request never got a response.
	return &TransientProviderError{Op: op, Err: err}
}
