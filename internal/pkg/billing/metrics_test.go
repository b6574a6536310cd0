package billing

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsObserveApply(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	ev := &DomainEvent{Kind: EventInvoicePaid, Source: "webhook"}

	m.observeApply(ev, &Outcome{Result: ResultUpdated}, nil, time.Millisecond)
	m.observeApply(ev, &Outcome{Result: ResultNoop}, conflictf("boom"), time.Millisecond)
	m.observeApply(ev, nil, &TransientProviderError{Op: "x", Err: errors.New("y")}, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsTotal.WithLabelValues("invoice_paid", "webhook", "updated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsTotal.WithLabelValues("invoice_paid", "webhook", "conflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsTotal.WithLabelValues("invoice_paid", "webhook", "transient")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConflictsTotal))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.observeApply(&DomainEvent{}, nil, nil, 0)
		m.observeQuota(true)
		m.observeFallback("customer", nil)
		m.observeRefused("active", "trialing")
	})
}
