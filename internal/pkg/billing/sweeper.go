package billing

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// Sweeper re-reads subscriptions whose period ended without a renewal
// webhook, so a lost delivery does not leave them stale for good.
type Sweeper struct {
	store  Store
	engine *Engine
	grace  time.Duration
	batch  int
	now    func() time.Time
}

// NewSweeper creates a Sweeper. Subscriptions are picked up grace after
// their period end, at most batch per sweep.
func NewSweeper(store Store, engine *Engine, grace time.Duration, batch int) *Sweeper {
	if batch <= 0 {
		batch = 100
	}
	return &Sweeper{store: store, engine: engine, grace: grace, batch: batch, now: time.Now}
}

// Sweep resyncs one batch and returns how many subscriptions changed.
// Failures of single subscriptions are logged and skipped.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	stale, err := s.store.FindStaleSubscriptions(ctx, s.now().Add(-s.grace), s.batch)
	if err != nil {
		return 0, err
	}

	changed := 0
	for _, sub := range stale {
		if err := ctx.Err(); err != nil {
			return changed, err
		}
		out, err := s.engine.Resync(ctx, sub.ProviderSubscriptionID)
		switch {
		case errors.Is(err, ErrNotFound):
			log.Warnf("[Sweep] Subscription %s is unknown to the provider", sub.ProviderSubscriptionID)
			continue
		case err != nil:
			log.Warnf("[Sweep] Resync of %s failed: %v", sub.ProviderSubscriptionID, err)
			continue
		}
		if out.Result != ResultNoop {
			changed++
			log.Infof("[Sweep] Subscription %s resynced: %s, period ends %s",
				sub.ProviderSubscriptionID, out.Subscription.Status, out.Subscription.CurrentPeriodEnd.Format(time.RFC3339))
		}
	}
	return changed, nil
}
