package billing

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abdullah2434/backend/app/models"
)

func TestResetForNewPeriod(t *testing.T) {
	q := NewQuota(NewMemoryStore(), NewInMemoryLocker(), nil)
	sub := &models.Subscription{VideoCount: 3, UsagePeriodStart: jan1}

	assert.False(t, q.ResetForNewPeriod(sub, jan1), "same period")
	assert.Equal(t, 3, sub.VideoCount)

	assert.True(t, q.ResetForNewPeriod(sub, feb1))
	assert.Equal(t, 0, sub.VideoCount)
	assert.True(t, sub.UsagePeriodStart.Equal(feb1))

	sub.VideoCount = 2
	assert.False(t, q.ResetForNewPeriod(sub, jan1), "older period")
	assert.False(t, q.ResetForNewPeriod(sub, feb1.AddDate(-1, 0, 0)))
	assert.Equal(t, 2, sub.VideoCount)
}

func TestIncrementConcurrentSingleSlot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sub := h.createSubscription(t, "sub_1", "active", jan1, feb1)
	sub.VideoLimit = 1
	require.NoError(t, h.store.SaveSubscription(ctx, sub))

	const n = 25
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
		denied  int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := h.quota.Increment(ctx, sub.OwnerID)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if d.Granted {
				granted++
			} else {
				denied++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, granted)
	assert.Equal(t, n-1, denied)
	assert.Equal(t, 1, h.subscription(t, "sub_1").VideoCount)
}

func TestIncrementReportsRemaining(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sub := h.createSubscription(t, "sub_1", "active", jan1, feb1)

	d, err := h.quota.Increment(ctx, sub.OwnerID)
	require.NoError(t, err)
	assert.Equal(t, QuotaDecision{Granted: true, Used: 1, Limit: 4, Remaining: 3}, d)

	for i := 0; i < 3; i++ {
		_, err = h.quota.Increment(ctx, sub.OwnerID)
		require.NoError(t, err)
	}
	d, err = h.quota.Increment(ctx, sub.OwnerID)
	require.NoError(t, err)
	assert.Equal(t, QuotaDecision{Granted: false, Used: 4, Limit: 4, Remaining: 0}, d)

	usage, err := h.quota.Usage(ctx, sub.OwnerID)
	require.NoError(t, err)
	assert.Equal(t, 4, usage.Used)
	assert.False(t, usage.Granted)
}

func TestIncrementRequiresEntitlingStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.quota.Increment(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNoActiveSubscription)

	sub := h.createSubscription(t, "sub_1", "incomplete", jan1, feb1)
	_, err = h.quota.Increment(ctx, sub.OwnerID)
	assert.ErrorIs(t, err, ErrNoActiveSubscription)

	h.apply(t, subscriptionEvent("evt_deleted", EventSubscriptionDeleted, snapshot("sub_1", "canceled", jan1, feb1)))
	_, err = h.quota.Increment(ctx, sub.OwnerID)
	assert.ErrorIs(t, err, ErrNoActiveSubscription)
}
