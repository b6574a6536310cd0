package billing

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
)

func TestClassifyStripeError(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantTransient bool
		wantNotFound  bool
	}{
		{name: "rate limited", err: &stripe.Error{HTTPStatusCode: http.StatusTooManyRequests}, wantTransient: true},
		{name: "provider outage", err: &stripe.Error{HTTPStatusCode: http.StatusBadGateway}, wantTransient: true},
		{name: "missing", err: &stripe.Error{HTTPStatusCode: http.StatusNotFound, Code: stripe.ErrorCodeResourceMissing}, wantNotFound: true},
		{name: "bad request", err: &stripe.Error{HTTPStatusCode: http.StatusBadRequest}},
		{name: "network", err: errors.New("dial tcp: connection refused"), wantTransient: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyStripeError("op", tt.err)
			require.Error(t, err)
			assert.Equal(t, tt.wantTransient, IsTransient(err))
			assert.Equal(t, tt.wantNotFound, errors.Is(err, ErrNotFound))
		})
	}
}

func TestToProviderSubscription(t *testing.T) {
	var sub stripe.Subscription
	require.NoError(t, json.Unmarshal([]byte(`{
		"id": "sub_1", "object": "subscription", "customer": "cus_1", "status": "trialing",
		"cancel_at_period_end": false, "created": 1767225600,
		"metadata": {"owner_id": "user-1", "plan_id": "basic"},
		"items": {"object": "list", "data": [{
			"id": "si_1", "object": "subscription_item",
			"current_period_start": 1767225600, "current_period_end": 1769904000,
			"price": {"id": "price_basic", "object": "price"}
		}]}
	}`), &sub))

	snap, err := toProviderSubscription(&sub)
	require.NoError(t, err)
	assert.Equal(t, "sub_1", snap.ID)
	assert.Equal(t, "cus_1", snap.CustomerID)
	assert.Equal(t, "trialing", snap.Status)
	assert.Equal(t, "price_basic", snap.PriceID)
	assert.Equal(t, "user-1", snap.OwnerID)
	assert.True(t, snap.CurrentPeriodStart.Equal(jan1))
	assert.True(t, snap.CurrentPeriodEnd.Equal(feb1))
	assert.True(t, snap.Created.Equal(jan1))
}
