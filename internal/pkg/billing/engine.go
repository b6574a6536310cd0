package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/Abdullah2434/backend/app/models"
)

var errAlreadyProcessed = errors.New("billing: event already processed")

// Engine applies domain events to local subscriptions. Webhooks and the
// subscription service both go through Apply or Mutate; nothing else writes
// subscriptions, ledger rows or processed markers.
type Engine struct {
	store    Store
	locker   Locker
	ledger   *Ledger
	quota    *Quota
	fallback *Fallback
	plans    *Catalog
	metrics  *Metrics
	now      func() time.Time
}

// NewEngine creates an Engine.
func NewEngine(store Store, locker Locker, ledger *Ledger, quota *Quota, fallback *Fallback, plans *Catalog, metrics *Metrics) *Engine {
	return &Engine{
		store:    store,
		locker:   locker,
		ledger:   ledger,
		quota:    quota,
		fallback: fallback,
		plans:    plans,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Apply reconciles one event under the subscription lock. A redelivered
// event is a noop. Transient errors leave the event unmarked so a redelivery
// can retry it; a permanent conflict marks it processed and is still
// returned so the caller can alert on it.
func (e *Engine) Apply(ctx context.Context, ev *DomainEvent) (*Outcome, error) {
	start := time.Now()
	out, err := e.apply(ctx, ev, true)
	e.metrics.observeApply(ev, out, err, time.Since(start))
	return out, err
}

// Mutate holds the lock of providerSubscriptionID while fn talks to the
// provider, then applies the event fn returns without releasing the lock in
// between.
func (e *Engine) Mutate(ctx context.Context, providerSubscriptionID string, fn func(ctx context.Context) (*DomainEvent, error)) (*Outcome, error) {
	release, err := e.locker.Acquire(ctx, subscriptionLockKey(providerSubscriptionID))
	if err != nil {
		return nil, err
	}
	defer release()

	ev, err := fn(ctx)
	if err != nil {
		return nil, err
	}
	if ev.SubscriptionKey != providerSubscriptionID {
		return nil, fmt.Errorf("billing: mutation of %s produced an event for %q", providerSubscriptionID, ev.SubscriptionKey)
	}

	start := time.Now()
	out, err := e.apply(ctx, ev, false)
	e.metrics.observeApply(ev, out, err, time.Since(start))
	return out, err
}

// Resync fetches the provider's current view of a subscription and applies
// it as a synthetic update.
func (e *Engine) Resync(ctx context.Context, providerSubscriptionID string) (*Outcome, error) {
	return e.Mutate(ctx, providerSubscriptionID, func(ctx context.Context) (*DomainEvent, error) {
		snap, err := e.fallback.SyncBySubscription(ctx, providerSubscriptionID)
		if err != nil {
			return nil, err
		}
		kind := EventSubscriptionUpdated
		if MapProviderStatus(snap.Status).IsTerminal() {
			kind = EventSubscriptionDeleted
		}
		return apiEvent(kind, snap, "", ""), nil
	})
}

func (e *Engine) apply(ctx context.Context, ev *DomainEvent, takeLock bool) (*Outcome, error) {
	if ev == nil || ev.ProviderEventID == "" {
		return nil, fmt.Errorf("%w: event without id", ErrMalformedPayload)
	}
	noop := &Outcome{Result: ResultNoop}

	done, err := e.store.IsProcessed(ctx, ev.ProviderEventID)
	if err != nil {
		return nil, fmt.Errorf("check processed %s: %w", ev.ProviderEventID, err)
	}
	if done {
		return noop, nil
	}

	if ev.Kind == EventUnknown {
		log.Infof("[Billing] Ignoring event %s of unhandled type %q", ev.ProviderEventID, ev.ProviderType)
		return noop, e.markOnly(ctx, ev, "")
	}
	if ev.LockKey() == "" {
		return e.fail(ctx, ev, conflictf("event %s references no subscription or customer", ev.ProviderEventID))
	}

	var snap *ProviderSubscription
	if ev.SubscriptionKey == "" {
		if !takeLock {
			return nil, fmt.Errorf("billing: customer scoped event %s cannot be applied under a subscription lock", ev.ProviderEventID)
		}
		release, err := e.locker.Acquire(ctx, customerLockKey(ev.CustomerKey))
		if err != nil {
			return nil, err
		}
		defer release()

		snap, err = e.resolveByCustomer(ctx, ev)
		if err != nil {
			return e.fail(ctx, ev, err)
		}
		resolved := *ev
		resolved.SubscriptionKey = snap.ID
		ev = &resolved
	}

	if takeLock {
		release, err := e.locker.Acquire(ctx, subscriptionLockKey(ev.SubscriptionKey))
		if err != nil {
			return nil, err
		}
		defer release()

		// A concurrent delivery of the same event may have finished while we
		// waited for the lock.
		done, err = e.store.IsProcessed(ctx, ev.ProviderEventID)
		if err != nil {
			return nil, fmt.Errorf("check processed %s: %w", ev.ProviderEventID, err)
		}
		if done {
			return noop, nil
		}
	}

	local, err := e.store.FindSubscription(ctx, ev.SubscriptionKey)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("load subscription %s: %w", ev.SubscriptionKey, err)
	}
	if local == nil && snap == nil {
		// Provider calls stay outside the database transaction.
		snap, err = e.fetchMissing(ctx, ev)
		if err != nil {
			return e.fail(ctx, ev, err)
		}
	}

	var out *Outcome
	err = e.store.Transaction(ctx, func(tx Store) error {
		inserted, err := tx.MarkProcessed(ctx, e.marker(ev, ""))
		if err != nil {
			return fmt.Errorf("mark processed %s: %w", ev.ProviderEventID, err)
		}
		if !inserted {
			return errAlreadyProcessed
		}

		sub, err := tx.LockSubscription(ctx, ev.SubscriptionKey)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("lock subscription %s: %w", ev.SubscriptionKey, err)
		}
		if sub == nil && snap == nil {
			return conflictf("subscription %s disappeared during reconciliation", ev.SubscriptionKey)
		}
		out, err = e.reconcile(ctx, tx, ev, sub, snap)
		return err
	})
	switch {
	case errors.Is(err, errAlreadyProcessed):
		return noop, nil
	case err != nil:
		return e.fail(ctx, ev, err)
	}
	return out, nil
}

// fetchMissing pulls the state of a subscription the store does not know.
// Events that carry a full creation snapshot are materialized from it
// directly.
func (e *Engine) fetchMissing(ctx context.Context, ev *DomainEvent) (*ProviderSubscription, error) {
	if ev.Subscription != nil && (ev.Kind == EventSubscriptionCreated || ev.Source == models.EventSourceAPI) {
		return ev.Subscription, nil
	}
	snap, err := e.fallback.SyncBySubscription(ctx, ev.SubscriptionKey)
	if errors.Is(err, ErrNotFound) {
		return nil, conflictf("subscription %s unknown locally and at provider", ev.SubscriptionKey)
	}
	return snap, err
}

func (e *Engine) resolveByCustomer(ctx context.Context, ev *DomainEvent) (*ProviderSubscription, error) {
	snap, err := e.fallback.SyncByCustomer(ctx, ev.CustomerKey, Hint{InvoiceID: ev.InvoiceKey})
	if errors.Is(err, ErrNotFound) {
		return nil, conflictf("customer %s has no subscription to attach event %s to", ev.CustomerKey, ev.ProviderEventID)
	}
	return snap, err
}

// fail settles an error. Permanent conflicts mark the event processed with
// the reason; anything else leaves it unmarked.
func (e *Engine) fail(ctx context.Context, ev *DomainEvent, err error) (*Outcome, error) {
	if !errors.Is(err, ErrPermanentConflict) {
		if IsTransient(err) {
			log.Warnf("[Billing] Transient failure on event %s (%s): %v", ev.ProviderEventID, ev.Kind, err)
		} else {
			log.Errorf("[Billing] Failed to apply event %s (%s): %v", ev.ProviderEventID, ev.Kind, err)
		}
		return nil, err
	}

	log.Errorf("[Billing] Permanent conflict on event %s (%s): %v", ev.ProviderEventID, ev.Kind, err)
	if markErr := e.markOnly(ctx, ev, err.Error()); markErr != nil {
		return nil, fmt.Errorf("mark conflicted event %s: %w", ev.ProviderEventID, markErr)
	}
	return &Outcome{Result: ResultNoop}, err
}

func (e *Engine) markOnly(ctx context.Context, ev *DomainEvent, processingErr string) error {
	return e.store.Transaction(ctx, func(tx Store) error {
		_, err := tx.MarkProcessed(ctx, e.marker(ev, processingErr))
		return err
	})
}

func (e *Engine) marker(ev *DomainEvent, processingErr string) *models.ProcessedEvent {
	source := ev.Source
	if source == "" {
		source = models.EventSourceWebhook
	}
	eventType := ev.ProviderType
	if eventType == "" {
		eventType = string(ev.Kind)
	}
	return &models.ProcessedEvent{
		ProviderEventID: ev.ProviderEventID,
		EventType:       eventType,
		Source:          source,
		ProcessingError: processingErr,
		ProcessedAt:     e.now().UTC(),
	}
}

// reconcile runs inside the transaction with the subscription row locked.
// sub is nil when the subscription must be materialized from snap.
func (e *Engine) reconcile(ctx context.Context, tx Store, ev *DomainEvent, sub *models.Subscription, snap *ProviderSubscription) (*Outcome, error) {
	result := ResultUpdated
	var before models.Subscription

	if sub == nil {
		var err error
		if sub, err = e.materialize(ctx, tx, ev, snap); err != nil {
			return nil, err
		}
		result = ResultCreated
	} else {
		if sub.Status.IsTerminal() {
			return e.reconcileCanceled(ctx, tx, ev, sub)
		}
		before = *sub
		if ev.Subscription != nil {
			e.applySnapshot(sub, ev.Subscription, ev.Kind)
		}
	}

	if ev.Kind == EventTrialWillEnd {
		log.Infof("[Billing] Trial of subscription %s ends at %s", sub.ProviderSubscriptionID, sub.CurrentPeriodEnd.Format(time.RFC3339))
	}

	var prior *models.BillingRecord
	if inv := ev.Invoice; inv != nil {
		var err error
		if prior, err = e.ledger.Lookup(ctx, tx, inv.ID); err != nil {
			return nil, err
		}
		e.transition(sub, Transition{
			Kind:             ev.Kind,
			AmountPaid:       inv.AmountPaid,
			InvoiceSucceeded: prior != nil && prior.Outcome == models.BillingOutcomeSucceeded,
		}, ev)
		if ev.Kind == EventInvoicePaid {
			advancePeriod(sub, inv.PeriodStart, inv.PeriodEnd)
			if e.quota.ResetForNewPeriod(sub, inv.PeriodStart) {
				log.Infof("[Billing] New period %s for subscription %s, video count reset", inv.PeriodStart.Format(time.RFC3339), sub.ProviderSubscriptionID)
			}
		}
	}

	changed := result == ResultCreated || subscriptionChanged(before, *sub)
	if changed {
		if err := tx.SaveSubscription(ctx, sub); err != nil {
			return nil, fmt.Errorf("save subscription %s: %w", sub.ProviderSubscriptionID, err)
		}
	}

	var rec *models.BillingRecord
	if ev.Invoice != nil {
		var recorded bool
		var err error
		if rec, recorded, err = e.recordInvoice(ctx, tx, ev, sub, prior); err != nil {
			return nil, err
		}
		changed = changed || recorded
	}

	if result == ResultCreated {
		if err := e.supersede(ctx, tx, sub); err != nil {
			return nil, err
		}
	}
	if !changed {
		result = ResultNoop
	}
	return &Outcome{Result: result, Subscription: sub, Record: rec}, nil
}

// reconcileCanceled leaves a canceled subscription as it is. Invoice
// outcomes still reach the ledger so it ends up the same whichever order the
// cancellation and the invoice arrive in.
func (e *Engine) reconcileCanceled(ctx context.Context, tx Store, ev *DomainEvent, sub *models.Subscription) (*Outcome, error) {
	if ev.Invoice == nil {
		log.Infof("[Billing] Subscription %s is canceled, event %s recorded without effect", sub.ProviderSubscriptionID, ev.ProviderEventID)
		return &Outcome{Result: ResultNoop, Subscription: sub}, nil
	}
	prior, err := e.ledger.Lookup(ctx, tx, ev.Invoice.ID)
	if err != nil {
		return nil, err
	}
	rec, recorded, err := e.recordInvoice(ctx, tx, ev, sub, prior)
	if err != nil {
		return nil, err
	}
	result := ResultNoop
	if recorded {
		result = ResultUpdated
		log.Infof("[Billing] Invoice %s of canceled subscription %s recorded as %s", ev.Invoice.ID, sub.ProviderSubscriptionID, rec.Outcome)
	}
	return &Outcome{Result: result, Subscription: sub, Record: rec}, nil
}

// recordInvoice writes the invoice outcome of ev to the ledger and reports
// whether the stored outcome differs from prior.
func (e *Engine) recordInvoice(ctx context.Context, tx Store, ev *DomainEvent, sub *models.Subscription, prior *models.BillingRecord) (*models.BillingRecord, bool, error) {
	inv := ev.Invoice
	in := RecordInput{
		SubscriptionID: sub.ID,
		InvoiceID:      inv.ID,
		AmountCents:    inv.AmountPaid,
		Currency:       inv.Currency,
		Outcome:        models.BillingOutcomeSucceeded,
		PeriodStart:    inv.PeriodStart,
		PeriodEnd:      inv.PeriodEnd,
	}
	if ev.Kind == EventInvoicePaymentFailed {
		in.AmountCents = inv.AmountDue
		in.Outcome = models.BillingOutcomeFailed
	}
	rec, err := e.ledger.Record(ctx, tx, in)
	if err != nil {
		return nil, false, err
	}
	return rec, prior == nil || prior.Outcome != rec.Outcome, nil
}

// materialize builds a new local subscription from provider state and saves
// nothing; reconcile persists it.
func (e *Engine) materialize(ctx context.Context, tx Store, ev *DomainEvent, snap *ProviderSubscription) (*models.Subscription, error) {
	owner := firstNonEmpty(ev.OwnerID, snap.OwnerID)
	if owner == "" && snap.CustomerID != "" {
		siblings, err := tx.FindSubscriptionsByCustomer(ctx, snap.CustomerID)
		if err != nil {
			return nil, fmt.Errorf("load subscriptions of customer %s: %w", snap.CustomerID, err)
		}
		if len(siblings) > 0 {
			owner = siblings[0].OwnerID
		}
	}
	if owner == "" {
		return nil, conflictf("cannot resolve owner of subscription %s (customer %s)", snap.ID, snap.CustomerID)
	}

	plan, ok := e.plans.resolve(firstNonEmpty(ev.PlanID, snap.PlanID), snap.PriceID)
	if !ok {
		return nil, conflictf("subscription %s: price %q matches no plan", snap.ID, snap.PriceID)
	}
	if snap.CurrentPeriodStart.IsZero() || !snap.CurrentPeriodStart.Before(snap.CurrentPeriodEnd) {
		return nil, conflictf("subscription %s has no valid billing period", snap.ID)
	}

	sub := &models.Subscription{
		OwnerID:                owner,
		PlanID:                 plan.ID,
		ProviderPriceID:        firstNonEmpty(snap.PriceID, plan.PriceID),
		ProviderSubscriptionID: snap.ID,
		ProviderCustomerID:     snap.CustomerID,
		VideoLimit:             plan.VideoLimit,
		ProviderCreatedAt:      snap.Created,
	}

	kind := EventSubscriptionUpdated
	if ev.Kind == EventSubscriptionDeleted {
		kind = EventSubscriptionDeleted
	}
	e.applySnapshot(sub, snap, kind)
	sub.VideoCount = 0
	sub.UsagePeriodStart = sub.CurrentPeriodStart

	log.Infof("[Billing] Materialized subscription %s for owner %s on plan %s (%s)", sub.ProviderSubscriptionID, owner, plan.ID, sub.Status)
	return sub, nil
}

// applySnapshot mirrors provider state onto sub. Status always follows the
// provider; period fields only move forward.
func (e *Engine) applySnapshot(sub *models.Subscription, snap *ProviderSubscription, kind EventKind) {
	wasCanceled := sub.Status.IsTerminal()
	e.transition(sub, Transition{Kind: kind, ProviderStatus: snap.Status}, nil)
	if !wasCanceled && sub.Status.IsTerminal() && snap.CanceledAt != nil {
		t := snap.CanceledAt.UTC()
		sub.CanceledAt = &t
	}
	if sub.ProviderCustomerID == "" {
		sub.ProviderCustomerID = snap.CustomerID
	}

	if !sub.CurrentPeriodStart.IsZero() && snap.CurrentPeriodStart.Before(sub.CurrentPeriodStart) {
		log.Infof("[Billing] Stale snapshot for %s (period start %s before %s), keeping period fields",
			sub.ProviderSubscriptionID, snap.CurrentPeriodStart.Format(time.RFC3339), sub.CurrentPeriodStart.Format(time.RFC3339))
		return
	}
	advancePeriod(sub, snap.CurrentPeriodStart, snap.CurrentPeriodEnd)
	sub.CancelAtPeriodEnd = snap.CancelAtPeriodEnd

	if snap.PriceID == "" || snap.PriceID == sub.ProviderPriceID {
		return
	}
	if plan, ok := e.plans.ByPriceID(snap.PriceID); ok {
		if sub.PlanID != "" && sub.PlanID != plan.ID {
			log.Infof("[Billing] Subscription %s moved from plan %s to %s", sub.ProviderSubscriptionID, sub.PlanID, plan.ID)
		}
		sub.ProviderPriceID = snap.PriceID
		sub.PlanID = plan.ID
		sub.VideoLimit = plan.VideoLimit
		return
	}
	log.Warnf("[Billing] Subscription %s switched to unknown price %s, keeping plan %s", sub.ProviderSubscriptionID, snap.PriceID, sub.PlanID)
}

func (e *Engine) transition(sub *models.Subscription, t Transition, ev *DomainEvent) {
	next, ok := NextStatus(sub.Status, t)
	if !ok {
		eventID := ""
		if ev != nil {
			eventID = ev.ProviderEventID
		}
		log.Warnf("[Billing] Refusing transition %s -> %s for subscription %s (%s %s)", sub.Status, next, sub.ProviderSubscriptionID, t.Kind, eventID)
		e.metrics.observeRefused(string(sub.Status), string(next))
		return
	}
	if next == sub.Status {
		return
	}
	sub.Status = next
	if next.IsTerminal() && sub.CanceledAt == nil {
		now := e.now().UTC()
		sub.CanceledAt = &now
	}
}

// supersede cancels the owner's other live subscriptions once sub becomes
// the current one.
func (e *Engine) supersede(ctx context.Context, tx Store, sub *models.Subscription) error {
	if sub.Status.IsTerminal() {
		return nil
	}
	others, err := tx.FindOwnerSubscriptions(ctx, sub.OwnerID)
	if err != nil {
		return fmt.Errorf("load subscriptions of owner %s: %w", sub.OwnerID, err)
	}
	for i := range others {
		old := others[i]
		if old.ID == sub.ID || old.Status.IsTerminal() {
			continue
		}
		// Save the locked row, not the listed copy.
		locked, err := tx.LockSubscription(ctx, old.ProviderSubscriptionID)
		if err != nil {
			return fmt.Errorf("lock superseded subscription %s: %w", old.ProviderSubscriptionID, err)
		}
		if locked.Status.IsTerminal() {
			continue
		}
		log.Warnf("[Billing] Owner %s got subscription %s, canceling older %s locally", sub.OwnerID, sub.ProviderSubscriptionID, locked.ProviderSubscriptionID)
		now := e.now().UTC()
		locked.Status = models.SubscriptionStatusCanceled
		locked.CanceledAt = &now
		if err := tx.SaveSubscription(ctx, locked); err != nil {
			return fmt.Errorf("cancel superseded subscription %s: %w", old.ProviderSubscriptionID, err)
		}
	}
	return nil
}

// advancePeriod moves the billing period forward. Older periods are ignored.
func advancePeriod(sub *models.Subscription, start, end time.Time) {
	if start.IsZero() || !start.Before(end) {
		return
	}
	if !sub.CurrentPeriodStart.IsZero() && start.Before(sub.CurrentPeriodStart) {
		return
	}
	sub.CurrentPeriodStart = start.UTC()
	sub.CurrentPeriodEnd = end.UTC()
}

func subscriptionChanged(a, b models.Subscription) bool {
	if a.Status != b.Status ||
		a.OwnerID != b.OwnerID ||
		a.PlanID != b.PlanID ||
		a.ProviderPriceID != b.ProviderPriceID ||
		a.ProviderCustomerID != b.ProviderCustomerID ||
		a.CancelAtPeriodEnd != b.CancelAtPeriodEnd ||
		a.VideoCount != b.VideoCount ||
		a.VideoLimit != b.VideoLimit ||
		!a.CurrentPeriodStart.Equal(b.CurrentPeriodStart) ||
		!a.CurrentPeriodEnd.Equal(b.CurrentPeriodEnd) ||
		!a.UsagePeriodStart.Equal(b.UsagePeriodStart) {
		return true
	}
	if (a.CanceledAt == nil) != (b.CanceledAt == nil) {
		return true
	}
	return a.CanceledAt != nil && !a.CanceledAt.Equal(*b.CanceledAt)
}
