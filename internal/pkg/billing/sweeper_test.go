package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abdullah2434/backend/app/models"
)

func TestSweepResyncsLapsedSubscriptions(t *testing.T) {
	h := newHarness(t)
	h.createSubscription(t, "sub_a", "active", jan1, feb1)
	h.createSubscription(t, "sub_b", "active", mar1, apr1)
	h.createSubscription(t, "sub_gone", "active", jan1, feb1)

	// The renewal webhook for sub_a never arrived.
	renewed := snapshot("sub_a", "active", feb1, mar1)
	h.provider.put(*renewed)

	sweeper := NewSweeper(h.store, h.engine, time.Hour, 10)
	sweeper.now = func() time.Time { return feb1.Add(2 * time.Hour) }

	changed, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	sub := h.subscription(t, "sub_a")
	assert.True(t, sub.CurrentPeriodStart.Equal(feb1))
	assert.True(t, sub.CurrentPeriodEnd.Equal(mar1))
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)

	assert.True(t, h.subscription(t, "sub_gone").CurrentPeriodEnd.Equal(feb1), "provider 404 leaves the row alone")
	assert.Equal(t, 0, h.provider.callCount("CancelSubscription"))

	changed, err = sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, changed)
}

func TestSweepAppliesProviderCancellation(t *testing.T) {
	h := newHarness(t)
	h.createSubscription(t, "sub_a", "active", jan1, feb1)

	gone := snapshot("sub_a", "canceled", jan1, feb1)
	at := feb1
	gone.CanceledAt = &at
	h.provider.put(*gone)

	sweeper := NewSweeper(h.store, h.engine, 0, 0)
	sweeper.now = func() time.Time { return mar1 }

	changed, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	sub := h.subscription(t, "sub_a")
	assert.Equal(t, models.SubscriptionStatusCanceled, sub.Status)
	require.NotNil(t, sub.CanceledAt)
	assert.True(t, sub.CanceledAt.Equal(feb1))

	stale, err := h.store.FindStaleSubscriptions(context.Background(), may1, 10)
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestFindStaleSubscriptionsOrderAndLimit(t *testing.T) {
	h := newHarness(t)
	h.createSubscription(t, "sub_late", "active", mar1, apr1)
	h.createSubscription(t, "sub_early", "active", jan1, feb1)
	h.createSubscription(t, "sub_current", "active", apr1, may1)

	stale, err := h.store.FindStaleSubscriptions(context.Background(), may1, 10)
	require.NoError(t, err)
	require.Len(t, stale, 2)
	assert.Equal(t, "sub_early", stale[0].ProviderSubscriptionID)
	assert.Equal(t, "sub_late", stale[1].ProviderSubscriptionID)

	stale, err = h.store.FindStaleSubscriptions(context.Background(), may1, 1)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "sub_early", stale[0].ProviderSubscriptionID)
}
