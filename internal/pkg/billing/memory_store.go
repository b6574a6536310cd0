package billing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Abdullah2434/backend/app/models"
)

type memoryData struct {
	events       map[string]models.ProcessedEvent
	subs         map[uint]models.Subscription
	records      map[uint]models.BillingRecord
	nextSubID    uint
	nextRecordID uint
	nextEventID  uint
}

func (d *memoryData) clone() *memoryData {
	c := &memoryData{
		events:       make(map[string]models.ProcessedEvent, len(d.events)),
		subs:         make(map[uint]models.Subscription, len(d.subs)),
		records:      make(map[uint]models.BillingRecord, len(d.records)),
		nextSubID:    d.nextSubID,
		nextRecordID: d.nextRecordID,
		nextEventID:  d.nextEventID,
	}
	for k, v := range d.events {
		c.events[k] = v
	}
	for k, v := range d.subs {
		c.subs[k] = v
	}
	for k, v := range d.records {
		c.records[k] = v
	}
	return c
}

// MemoryStore is a Store kept in process memory, selected with
// STORE_BACKEND=memory for single instance runs. Transactions run one at a
// time on a copy of the data that replaces the original on commit.
type MemoryStore struct {
	mu   *sync.Mutex
	data *memoryData
	inTx bool
	now  func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		mu: &sync.Mutex{},
		data: &memoryData{
			events:  map[string]models.ProcessedEvent{},
			subs:    map[uint]models.Subscription{},
			records: map[uint]models.BillingRecord{},
		},
		now: time.Now,
	}
}

func (s *MemoryStore) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *MemoryStore) IsProcessed(_ context.Context, providerEventID string) (bool, error) {
	defer s.lock()()
	_, ok := s.data.events[providerEventID]
	return ok, nil
}

func (s *MemoryStore) MarkProcessed(_ context.Context, event *models.ProcessedEvent) (bool, error) {
	defer s.lock()()
	if _, ok := s.data.events[event.ProviderEventID]; ok {
		return false, nil
	}
	s.data.nextEventID++
	event.ID = s.data.nextEventID
	s.data.events[event.ProviderEventID] = *event
	return true, nil
}

// ProcessedEvent returns a stored marker, for inspection.
func (s *MemoryStore) ProcessedEvent(providerEventID string) (models.ProcessedEvent, bool) {
	defer s.lock()()
	ev, ok := s.data.events[providerEventID]
	return ev, ok
}

// ProcessedCount is the number of stored markers.
func (s *MemoryStore) ProcessedCount() int {
	defer s.lock()()
	return len(s.data.events)
}

func (s *MemoryStore) findByProviderID(id string) (*models.Subscription, error) {
	for _, sub := range s.data.subs {
		if sub.ProviderSubscriptionID == id {
			sub := sub
			return &sub, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) FindSubscription(_ context.Context, providerSubscriptionID string) (*models.Subscription, error) {
	defer s.lock()()
	return s.findByProviderID(providerSubscriptionID)
}

func (s *MemoryStore) LockSubscription(ctx context.Context, providerSubscriptionID string) (*models.Subscription, error) {
	return s.FindSubscription(ctx, providerSubscriptionID)
}

func (s *MemoryStore) filterSubs(keep func(models.Subscription) bool) []models.Subscription {
	var out []models.Subscription
	for _, sub := range s.data.subs {
		if keep(sub) {
			out = append(out, sub)
		}
	}
	sortNewestFirst(out)
	return out
}

func (s *MemoryStore) FindSubscriptionsByCustomer(_ context.Context, providerCustomerID string) ([]models.Subscription, error) {
	defer s.lock()()
	return s.filterSubs(func(sub models.Subscription) bool {
		return sub.ProviderCustomerID == providerCustomerID
	}), nil
}

func (s *MemoryStore) FindOwnerSubscriptions(_ context.Context, ownerID string) ([]models.Subscription, error) {
	defer s.lock()()
	return s.filterSubs(func(sub models.Subscription) bool {
		return sub.OwnerID == ownerID
	}), nil
}

func (s *MemoryStore) FindStaleSubscriptions(_ context.Context, cutoff time.Time, limit int) ([]models.Subscription, error) {
	defer s.lock()()
	out := s.filterSubs(func(sub models.Subscription) bool {
		return !sub.Status.IsTerminal() && sub.CurrentPeriodEnd.Before(cutoff)
	})
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CurrentPeriodEnd.Equal(out[j].CurrentPeriodEnd) {
			return out[i].CurrentPeriodEnd.Before(out[j].CurrentPeriodEnd)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Subscriptions returns every stored subscription, for inspection.
func (s *MemoryStore) Subscriptions() []models.Subscription {
	defer s.lock()()
	return s.filterSubs(func(models.Subscription) bool { return true })
}

func (s *MemoryStore) SaveSubscription(_ context.Context, sub *models.Subscription) error {
	defer s.lock()()
	now := s.now()
	if sub.ID == 0 {
		s.data.nextSubID++
		sub.ID = s.data.nextSubID
		if sub.CreatedAt.IsZero() {
			sub.CreatedAt = now
		}
	}
	for id, existing := range s.data.subs {
		if id != sub.ID && existing.ProviderSubscriptionID == sub.ProviderSubscriptionID {
			return errDuplicateKey("provider_subscription_id", sub.ProviderSubscriptionID)
		}
	}
	sub.UpdatedAt = now
	s.data.subs[sub.ID] = *sub
	return nil
}

func (s *MemoryStore) IncrementVideoCount(_ context.Context, subscriptionID uint) (bool, error) {
	defer s.lock()()
	sub, ok := s.data.subs[subscriptionID]
	if !ok || sub.VideoCount >= sub.VideoLimit {
		return false, nil
	}
	sub.VideoCount++
	s.data.subs[subscriptionID] = sub
	return true, nil
}

func (s *MemoryStore) FindBillingRecord(_ context.Context, providerInvoiceID string) (*models.BillingRecord, error) {
	defer s.lock()()
	for _, rec := range s.data.records {
		if rec.ProviderInvoiceID == providerInvoiceID {
			rec := rec
			return &rec, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) InsertBillingRecord(_ context.Context, rec *models.BillingRecord) (bool, error) {
	defer s.lock()()
	for _, existing := range s.data.records {
		if existing.ProviderInvoiceID == rec.ProviderInvoiceID {
			return false, nil
		}
	}
	s.data.nextRecordID++
	rec.ID = s.data.nextRecordID
	rec.UpdatedAt = s.now()
	s.data.records[rec.ID] = *rec
	return true, nil
}

func (s *MemoryStore) UpdateBillingOutcome(_ context.Context, id uint, outcome models.BillingOutcome) error {
	defer s.lock()()
	rec, ok := s.data.records[id]
	if !ok {
		return ErrNotFound
	}
	rec.Outcome = outcome
	rec.UpdatedAt = s.now()
	s.data.records[id] = rec
	return nil
}

func (s *MemoryStore) ListBillingRecords(_ context.Context, subscriptionID uint) ([]models.BillingRecord, error) {
	defer s.lock()()
	var out []models.BillingRecord
	for _, rec := range s.data.records {
		if rec.SubscriptionID == subscriptionID {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].RecordedAt.Equal(out[j].RecordedAt) {
			return out[i].RecordedAt.After(out[j].RecordedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// BillingRecords returns every ledger row, for inspection.
func (s *MemoryStore) BillingRecords() []models.BillingRecord {
	defer s.lock()()
	out := make([]models.BillingRecord, 0, len(s.data.records))
	for _, rec := range s.data.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemoryStore) Transaction(_ context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &MemoryStore{mu: s.mu, data: s.data.clone(), inTx: true, now: s.now}
	if err := fn(tx); err != nil {
		return err
	}
	s.data = tx.data
	return nil
}

func errDuplicateKey(column, value string) error {
	return fmt.Errorf("billing: duplicate %s %q", column, value)
}
