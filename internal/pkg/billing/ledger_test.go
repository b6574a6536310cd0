package billing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abdullah2434/backend/app/models"
)

func TestLedgerRecord(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	l := NewLedger()

	in := RecordInput{
		SubscriptionID: 1,
		InvoiceID:      "in_1",
		AmountCents:    1999,
		Currency:       "usd",
		Outcome:        models.BillingOutcomeFailed,
		PeriodStart:    jan1,
		PeriodEnd:      feb1,
	}

	rec, err := l.Record(ctx, store, in)
	require.NoError(t, err)
	assert.Equal(t, models.BillingOutcomeFailed, rec.Outcome)

	// Same outcome again: no new row.
	_, err = l.Record(ctx, store, in)
	require.NoError(t, err)
	require.Len(t, store.BillingRecords(), 1)

	// Paid later: outcome changes, amount stays write-once.
	in.Outcome = models.BillingOutcomeSucceeded
	in.AmountCents = 2500
	rec, err = l.Record(ctx, store, in)
	require.NoError(t, err)
	assert.Equal(t, models.BillingOutcomeSucceeded, rec.Outcome)
	assert.Equal(t, int64(1999), rec.AmountCents)

	// A failure after success never downgrades.
	in.Outcome = models.BillingOutcomeFailed
	rec, err = l.Record(ctx, store, in)
	require.NoError(t, err)
	assert.Equal(t, models.BillingOutcomeSucceeded, rec.Outcome)

	recs := store.BillingRecords()
	require.Len(t, recs, 1)
	assert.Equal(t, models.BillingOutcomeSucceeded, recs[0].Outcome)

	found, err := l.Lookup(ctx, store, "in_1")
	require.NoError(t, err)
	assert.Equal(t, recs[0].ID, found.ID)

	missing, err := l.Lookup(ctx, store, "in_none")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestLedgerRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()

	_, err := l.Record(ctx, NewMemoryStore(), RecordInput{Outcome: models.BillingOutcomeSucceeded})
	assert.Error(t, err)

	_, err = l.Record(ctx, NewMemoryStore(), RecordInput{InvoiceID: "in_1", AmountCents: -1})
	assert.Error(t, err)
}
