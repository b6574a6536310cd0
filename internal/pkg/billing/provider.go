package billing

import "context"

// Provider is the payment provider surface the billing core consumes.
// Implementations return ErrNotFound for missing objects and a
// *TransientProviderError for failures worth redelivering.
type Provider interface {
	RetrieveSubscription(ctx context.Context, id string) (*ProviderSubscription, error)
	ListSubscriptionsForCustomer(ctx context.Context, customerID string) ([]ProviderSubscription, error)
	RetrieveInvoice(ctx context.Context, id string) (*ProviderInvoice, error)

	CreateCustomer(ctx context.Context, ownerID, email string) (customerID string, err error)
	CreateSubscription(ctx context.Context, params CreateSubscriptionParams) (*ProviderSubscription, error)
	CancelSubscription(ctx context.Context, id string, atPeriodEnd bool) (*ProviderSubscription, error)
	ChangeSubscriptionPrice(ctx context.Context, id, priceID string) (*ProviderSubscription, error)
}

// CreateSubscriptionParams are the inputs of Provider.CreateSubscription.
type CreateSubscriptionParams struct {
	CustomerID string
	PriceID    string
	OwnerID    string
	PlanID     string
}
