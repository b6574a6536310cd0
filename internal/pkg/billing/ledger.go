package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/Abdullah2434/backend/app/models"
)

// RecordInput describes one invoice outcome.
type RecordInput struct {
	SubscriptionID uint
	InvoiceID      string
	AmountCents    int64
	Currency       string
	Outcome        models.BillingOutcome
	PeriodStart    time.Time
	PeriodEnd      time.Time
}

// Ledger keeps one BillingRecord per provider invoice holding the invoice's
// current outcome.
type Ledger struct {
	now func() time.Time
}

// NewLedger creates a Ledger.
func NewLedger() *Ledger {
	return &Ledger{now: time.Now}
}

// Lookup returns the record for invoiceID or nil when there is none.
func (l *Ledger) Lookup(ctx context.Context, store Store, invoiceID string) (*models.BillingRecord, error) {
	rec, err := store.FindBillingRecord(ctx, invoiceID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return rec, err
}

// Record inserts the invoice's record if absent. For an existing record only
// the outcome changes, and a succeeded outcome is never replaced by failed.
func (l *Ledger) Record(ctx context.Context, store Store, in RecordInput) (*models.BillingRecord, error) {
	if in.InvoiceID == "" {
		return nil, fmt.Errorf("ledger: empty invoice id")
	}
	if in.AmountCents < 0 {
		return nil, fmt.Errorf("ledger: negative amount %d for invoice %s", in.AmountCents, in.InvoiceID)
	}

	rec := &models.BillingRecord{
		SubscriptionID:    in.SubscriptionID,
		ProviderInvoiceID: in.InvoiceID,
		AmountCents:       in.AmountCents,
		Currency:          in.Currency,
		Outcome:           in.Outcome,
		PeriodStart:       in.PeriodStart,
		PeriodEnd:         in.PeriodEnd,
		RecordedAt:        l.now().UTC(),
	}
	inserted, err := store.InsertBillingRecord(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("ledger: insert %s: %w", in.InvoiceID, err)
	}
	if inserted {
		return rec, nil
	}

	existing, err := store.FindBillingRecord(ctx, in.InvoiceID)
	if err != nil {
		return nil, fmt.Errorf("ledger: load %s: %w", in.InvoiceID, err)
	}
	if existing.Outcome == in.Outcome {
		return existing, nil
	}
	if existing.Outcome == models.BillingOutcomeSucceeded && in.Outcome == models.BillingOutcomeFailed {
		log.Warnf("[Billing] Ignoring late failure for already paid invoice %s", in.InvoiceID)
		return existing, nil
	}

	if err := store.UpdateBillingOutcome(ctx, existing.ID, in.Outcome); err != nil {
		return nil, fmt.Errorf("ledger: update %s: %w", in.InvoiceID, err)
	}
	existing.Outcome = in.Outcome
	return existing, nil
}
