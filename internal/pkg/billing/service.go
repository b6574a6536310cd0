package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/Abdullah2434/backend/app/models"
)

// Service is the caller facing side of billing. Every state change it makes
// is a provider call followed by Engine reconciliation of the provider's
// answer, so a webhook for the same change later is a noop.
type Service struct {
	store    Store
	engine   *Engine
	provider Provider
	plans    *Catalog
	locker   Locker
	quota    *Quota
}

// NewService creates a subscription service.
func NewService(store Store, engine *Engine, provider Provider, plans *Catalog, locker Locker, quota *Quota) *Service {
	return &Service{
		store:    store,
		engine:   engine,
		provider: provider,
		plans:    plans,
		locker:   locker,
		quota:    quota,
	}
}

// Current returns the owner's live subscription, or the most recent canceled
// one when nothing is live.
func (s *Service) Current(ctx context.Context, ownerID string) (*models.Subscription, error) {
	return latestSubscription(ctx, s.store, ownerID)
}

// Create subscribes the owner to planID.
func (s *Service) Create(ctx context.Context, ownerID, planID, email string) (*Outcome, error) {
	plan, ok := s.plans.Plan(planID)
	if !ok || plan.PriceID == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlan, planID)
	}

	release, err := s.locker.Acquire(ctx, ownerLockKey(ownerID))
	if err != nil {
		return nil, err
	}
	defer release()

	subs, err := s.store.FindOwnerSubscriptions(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	customerID := ""
	for _, sub := range subs {
		if !sub.Status.IsTerminal() {
			return nil, ErrAlreadySubscribed
		}
		if customerID == "" {
			customerID = sub.ProviderCustomerID
		}
	}

	if customerID == "" {
		if customerID, err = s.provider.CreateCustomer(ctx, ownerID, strings.TrimSpace(email)); err != nil {
			return nil, err
		}
	}

	snap, err := s.provider.CreateSubscription(ctx, CreateSubscriptionParams{
		CustomerID: customerID,
		PriceID:    plan.PriceID,
		OwnerID:    ownerID,
		PlanID:     plan.ID,
	})
	if err != nil {
		return nil, err
	}
	log.Infof("[Billing] Created provider subscription %s for owner %s on plan %s", snap.ID, ownerID, plan.ID)

	return s.engine.Apply(ctx, apiEvent(EventSubscriptionCreated, snap, ownerID, plan.ID))
}

// Cancel cancels the owner's live subscription, immediately or at the end
// of the current period.
func (s *Service) Cancel(ctx context.Context, ownerID string, atPeriodEnd bool) (*Outcome, error) {
	sub, err := currentSubscription(ctx, s.store, ownerID)
	if err != nil {
		return nil, err
	}

	return s.engine.Mutate(ctx, sub.ProviderSubscriptionID, func(ctx context.Context) (*DomainEvent, error) {
		if err := s.requireLive(ctx, sub.ProviderSubscriptionID); err != nil {
			return nil, err
		}
		snap, err := s.provider.CancelSubscription(ctx, sub.ProviderSubscriptionID, atPeriodEnd)
		if err != nil {
			return nil, err
		}
		kind := EventSubscriptionUpdated
		if MapProviderStatus(snap.Status).IsTerminal() {
			kind = EventSubscriptionDeleted
		}
		return apiEvent(kind, snap, ownerID, ""), nil
	})
}

// ChangePlan moves the owner's live subscription to planID.
func (s *Service) ChangePlan(ctx context.Context, ownerID, planID string) (*Outcome, error) {
	plan, ok := s.plans.Plan(planID)
	if !ok || plan.PriceID == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlan, planID)
	}
	sub, err := currentSubscription(ctx, s.store, ownerID)
	if err != nil {
		return nil, err
	}
	if sub.PlanID == plan.ID {
		return &Outcome{Result: ResultNoop, Subscription: sub}, nil
	}

	return s.engine.Mutate(ctx, sub.ProviderSubscriptionID, func(ctx context.Context) (*DomainEvent, error) {
		if err := s.requireLive(ctx, sub.ProviderSubscriptionID); err != nil {
			return nil, err
		}
		snap, err := s.provider.ChangeSubscriptionPrice(ctx, sub.ProviderSubscriptionID, plan.PriceID)
		if err != nil {
			return nil, err
		}
		return apiEvent(EventSubscriptionUpdated, snap, ownerID, plan.ID), nil
	})
}

// requireLive re-reads the subscription under its lock; a webhook may have
// canceled it after the caller looked it up.
func (s *Service) requireLive(ctx context.Context, providerSubscriptionID string) error {
	cur, err := s.store.FindSubscription(ctx, providerSubscriptionID)
	if err != nil {
		return err
	}
	if cur.Status.IsTerminal() {
		return ErrNoActiveSubscription
	}
	return nil
}

// Usage reports the owner's video consumption in the current period.
func (s *Service) Usage(ctx context.Context, ownerID string) (QuotaDecision, error) {
	return s.quota.Usage(ctx, ownerID)
}

// ConsumeVideo takes one video from the owner's quota.
func (s *Service) ConsumeVideo(ctx context.Context, ownerID string) (QuotaDecision, error) {
	return s.quota.Increment(ctx, ownerID)
}

// BillingHistory lists the ledger of the owner's latest subscription.
func (s *Service) BillingHistory(ctx context.Context, ownerID string) ([]models.BillingRecord, error) {
	sub, err := latestSubscription(ctx, s.store, ownerID)
	if err != nil {
		return nil, err
	}
	return s.store.ListBillingRecords(ctx, sub.ID)
}

// Plans lists the plan catalog.
func (s *Service) Plans() []Plan {
	return s.plans.Plans()
}

// apiEvent wraps the provider's answer to an API call as a domain event.
func apiEvent(kind EventKind, snap *ProviderSubscription, ownerID, planID string) *DomainEvent {
	return &DomainEvent{
		ProviderEventID: "api:" + uuid.NewString(),
		ProviderType:    "api." + string(kind),
		Kind:            kind,
		Source:          models.EventSourceAPI,
		OccurredAt:      time.Now().UTC(),
		SubscriptionKey: snap.ID,
		CustomerKey:     snap.CustomerID,
		OwnerID:         ownerID,
		PlanID:          planID,
		Subscription:    snap,
	}
}
