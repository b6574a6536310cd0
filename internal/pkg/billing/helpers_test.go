package billing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Abdullah2434/backend/app/models"
)

var (
	jan1 = time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	feb1 = time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)
	mar1 = time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	apr1 = time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	may1 = time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC)
)

// fakeProvider is an in-memory Provider. Setting err makes every call fail.
type fakeProvider struct {
	mu       sync.Mutex
	subs     map[string]ProviderSubscription
	invoices map[string]ProviderInvoice
	err      error
	calls    map[string]int
	seq      int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		subs:     map[string]ProviderSubscription{},
		invoices: map[string]ProviderInvoice{},
		calls:    map[string]int{},
	}
}

func (p *fakeProvider) put(s ProviderSubscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs[s.ID] = s
}

func (p *fakeProvider) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *fakeProvider) callCount(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[name]
}

func (p *fakeProvider) enter(name string) error {
	p.calls[name]++
	return p.err
}

func (p *fakeProvider) RetrieveSubscription(_ context.Context, id string) (*ProviderSubscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("RetrieveSubscription"); err != nil {
		return nil, err
	}
	s, ok := p.subs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (p *fakeProvider) ListSubscriptionsForCustomer(_ context.Context, customerID string) ([]ProviderSubscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("ListSubscriptionsForCustomer"); err != nil {
		return nil, err
	}
	var out []ProviderSubscription
	for _, s := range p.subs {
		if s.CustomerID == customerID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (p *fakeProvider) RetrieveInvoice(_ context.Context, id string) (*ProviderInvoice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("RetrieveInvoice"); err != nil {
		return nil, err
	}
	inv, ok := p.invoices[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &inv, nil
}

func (p *fakeProvider) CreateCustomer(_ context.Context, ownerID, _ string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("CreateCustomer"); err != nil {
		return "", err
	}
	return "cus_" + ownerID, nil
}

func (p *fakeProvider) CreateSubscription(_ context.Context, in CreateSubscriptionParams) (*ProviderSubscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("CreateSubscription"); err != nil {
		return nil, err
	}
	p.seq++
	s := ProviderSubscription{
		ID:                 fmt.Sprintf("sub_api_%d", p.seq),
		CustomerID:         in.CustomerID,
		Status:             "active",
		PriceID:            in.PriceID,
		OwnerID:            in.OwnerID,
		PlanID:             in.PlanID,
		CurrentPeriodStart: jan1,
		CurrentPeriodEnd:   feb1,
		Created:            jan1.Add(time.Duration(p.seq) * time.Minute),
	}
	p.subs[s.ID] = s
	return &s, nil
}

func (p *fakeProvider) CancelSubscription(_ context.Context, id string, atPeriodEnd bool) (*ProviderSubscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("CancelSubscription"); err != nil {
		return nil, err
	}
	s, ok := p.subs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if atPeriodEnd {
		s.CancelAtPeriodEnd = true
	} else {
		s.Status = "canceled"
		at := feb1
		s.CanceledAt = &at
	}
	p.subs[id] = s
	return &s, nil
}

func (p *fakeProvider) ChangeSubscriptionPrice(_ context.Context, id, priceID string) (*ProviderSubscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("ChangeSubscriptionPrice"); err != nil {
		return nil, err
	}
	s, ok := p.subs[id]
	if !ok {
		return nil, ErrNotFound
	}
	s.PriceID = priceID
	p.subs[id] = s
	return &s, nil
}

type harness struct {
	store    *MemoryStore
	provider *fakeProvider
	locker   *InMemoryLocker
	engine   *Engine
	quota    *Quota
	service  *Service
	plans    *Catalog
}

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	plans := DefaultPlans()
	for i := range plans {
		plans[i].PriceID = "price_" + plans[i].ID
	}
	c, err := NewCatalog(plans)
	require.NoError(t, err)
	return c
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    NewMemoryStore(),
		provider: newFakeProvider(),
		locker:   NewInMemoryLocker(),
		plans:    testCatalog(t),
	}
	h.quota = NewQuota(h.store, h.locker, nil)
	h.engine = NewEngine(h.store, h.locker, NewLedger(), h.quota, NewFallback(h.provider, nil), h.plans, nil)
	h.service = NewService(h.store, h.engine, h.provider, h.plans, h.locker, h.quota)
	return h
}

func (h *harness) apply(t *testing.T, ev *DomainEvent) *Outcome {
	t.Helper()
	out, err := h.engine.Apply(context.Background(), ev)
	require.NoError(t, err)
	require.NotNil(t, out)
	return out
}

func (h *harness) subscription(t *testing.T, id string) *models.Subscription {
	t.Helper()
	sub, err := h.store.FindSubscription(context.Background(), id)
	require.NoError(t, err)
	return sub
}

func snapshot(id, status string, start, end time.Time) *ProviderSubscription {
	return &ProviderSubscription{
		ID:                 id,
		CustomerID:         "cus_" + id,
		Status:             status,
		PriceID:            "price_basic",
		OwnerID:            "owner-" + id,
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   end,
		Created:            start,
	}
}

func subscriptionEvent(eventID string, kind EventKind, snap *ProviderSubscription) *DomainEvent {
	return &DomainEvent{
		ProviderEventID: eventID,
		ProviderType:    "test." + string(kind),
		Kind:            kind,
		Source:          models.EventSourceWebhook,
		SubscriptionKey: snap.ID,
		CustomerKey:     snap.CustomerID,
		OwnerID:         snap.OwnerID,
		Subscription:    snap,
	}
}

func invoiceEvent(eventID string, kind EventKind, subID, invoiceID string, amount int64, start, end time.Time) *DomainEvent {
	inv := &ProviderInvoice{
		ID:             invoiceID,
		SubscriptionID: subID,
		CustomerID:     "cus_" + subID,
		Currency:       "usd",
		PeriodStart:    start,
		PeriodEnd:      end,
	}
	if kind == EventInvoicePaid {
		inv.Status = "paid"
		inv.AmountPaid = amount
		inv.AmountDue = amount
	} else {
		inv.Status = "open"
		inv.AmountDue = amount
	}
	return &DomainEvent{
		ProviderEventID: eventID,
		ProviderType:    "test." + string(kind),
		Kind:            kind,
		Source:          models.EventSourceWebhook,
		SubscriptionKey: subID,
		CustomerKey:     inv.CustomerID,
		InvoiceKey:      invoiceID,
		Invoice:         inv,
	}
}

// createSubscription materializes a subscription through a created event.
func (h *harness) createSubscription(t *testing.T, id, status string, start, end time.Time) *models.Subscription {
	t.Helper()
	out := h.apply(t, subscriptionEvent("evt_create_"+id, EventSubscriptionCreated, snapshot(id, status, start, end)))
	require.Equal(t, ResultCreated, out.Result)
	return out.Subscription
}
