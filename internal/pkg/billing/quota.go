package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Abdullah2434/backend/app/models"
)

// Quota tracks per-period video consumption.
type Quota struct {
	store   Store
	locker  Locker
	metrics *Metrics
}

// NewQuota creates a Quota.
func NewQuota(store Store, locker Locker, metrics *Metrics) *Quota {
	return &Quota{store: store, locker: locker, metrics: metrics}
}

// ResetForNewPeriod zeroes the video count when periodStart begins a period
// later than the one the count belongs to, and reports whether it did. The
// caller persists sub.
func (q *Quota) ResetForNewPeriod(sub *models.Subscription, periodStart time.Time) bool {
	if periodStart.IsZero() || !periodStart.After(sub.UsagePeriodStart) {
		return false
	}
	sub.VideoCount = 0
	sub.UsagePeriodStart = periodStart
	return true
}

// Increment consumes one video from the owner's current subscription. Running
// out of quota is reported through the decision, not as an error.
func (q *Quota) Increment(ctx context.Context, ownerID string) (QuotaDecision, error) {
	sub, err := currentSubscription(ctx, q.store, ownerID)
	if err != nil {
		return QuotaDecision{}, err
	}

	release, err := q.locker.Acquire(ctx, subscriptionLockKey(sub.ProviderSubscriptionID))
	if err != nil {
		return QuotaDecision{}, err
	}
	defer release()

	// Reload under the lock, a webhook may have changed it meanwhile.
	sub, err = q.store.FindSubscription(ctx, sub.ProviderSubscriptionID)
	if err != nil {
		return QuotaDecision{}, err
	}
	if !sub.Status.Entitling() {
		return QuotaDecision{}, ErrNoActiveSubscription
	}

	granted, err := q.store.IncrementVideoCount(ctx, sub.ID)
	if err != nil {
		return QuotaDecision{}, fmt.Errorf("quota: increment %d: %w", sub.ID, err)
	}
	if granted {
		sub.VideoCount++
	}
	q.metrics.observeQuota(granted)

	return QuotaDecision{
		Granted:   granted,
		Used:      sub.VideoCount,
		Limit:     sub.VideoLimit,
		Remaining: sub.RemainingVideos(),
	}, nil
}

// Usage reports the owner's consumption without changing it.
func (q *Quota) Usage(ctx context.Context, ownerID string) (QuotaDecision, error) {
	sub, err := currentSubscription(ctx, q.store, ownerID)
	if err != nil {
		return QuotaDecision{}, err
	}
	return QuotaDecision{
		Granted:   sub.Status.Entitling() && sub.RemainingVideos() > 0,
		Used:      sub.VideoCount,
		Limit:     sub.VideoLimit,
		Remaining: sub.RemainingVideos(),
	}, nil
}

// currentSubscription returns the owner's non-canceled subscription, or
// ErrNoActiveSubscription.
func currentSubscription(ctx context.Context, store Store, ownerID string) (*models.Subscription, error) {
	subs, err := store.FindOwnerSubscriptions(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	for i := range subs {
		if !subs[i].Status.IsTerminal() {
			return &subs[i], nil
		}
	}
	return nil, ErrNoActiveSubscription
}

// latestSubscription is currentSubscription falling back to the newest
// canceled one, for read endpoints.
func latestSubscription(ctx context.Context, store Store, ownerID string) (*models.Subscription, error) {
	sub, err := currentSubscription(ctx, store, ownerID)
	if !errors.Is(err, ErrNoActiveSubscription) {
		return sub, err
	}
	subs, err := store.FindOwnerSubscriptions(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, ErrNotFound
	}
	return &subs[0], nil
}
