package billing

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the billing core's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	EventsTotal       *prometheus.CounterVec
	ApplyDuration     *prometheus.HistogramVec
	ConflictsTotal    prometheus.Counter
	QuotaDecisions    *prometheus.CounterVec
	FallbackFetches   *prometheus.CounterVec
	RefusedTransition *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "billing",
			Name:      "events_total",
			Help:      "Billing events by kind, source and result",
		}, []string{"kind", "source", "result"}),
		ApplyDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "billing",
			Name:      "apply_duration_seconds",
			Help:      "Time spent reconciling one event",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		ConflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "billing",
			Name:      "permanent_conflicts_total",
			Help:      "Events marked processed with a permanent conflict",
		}),
		QuotaDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "billing",
			Name:      "quota_decisions_total",
			Help:      "Video quota increments by decision",
		}, []string{"decision"}),
		FallbackFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "billing",
			Name:      "fallback_fetches_total",
			Help:      "Provider fetches made to materialize unknown subscriptions",
		}, []string{"mode", "status"}),
		RefusedTransition: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "billing",
			Name:      "refused_transitions_total",
			Help:      "Status transitions outside the allowed graph",
		}, []string{"from", "to"}),
	}
	if reg != nil {
		reg.MustRegister(m.EventsTotal, m.ApplyDuration, m.ConflictsTotal,
			m.QuotaDecisions, m.FallbackFetches, m.RefusedTransition)
	}
	return m
}

func (m *Metrics) observeApply(ev *DomainEvent, out *Outcome, err error, took time.Duration) {
	if m == nil || ev == nil {
		return
	}
	result := "error"
	switch {
	case errors.Is(err, ErrPermanentConflict):
		result = "conflict"
		m.ConflictsTotal.Inc()
	case IsTransient(err):
		result = "transient"
	case err == nil && out != nil:
		result = string(out.Result)
	}
	m.EventsTotal.WithLabelValues(string(ev.Kind), ev.Source, result).Inc()
	m.ApplyDuration.WithLabelValues(string(ev.Kind)).Observe(took.Seconds())
}

func (m *Metrics) observeQuota(granted bool) {
	if m == nil {
		return
	}
	decision := "denied"
	if granted {
		decision = "granted"
	}
	m.QuotaDecisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) observeFallback(mode string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	switch {
	case errors.Is(err, ErrNotFound):
		status = "not_found"
	case err != nil:
		status = "error"
	}
	m.FallbackFetches.WithLabelValues(mode, status).Inc()
}

func (m *Metrics) observeRefused(from, to string) {
	if m == nil {
		return
	}
	m.RefusedTransition.WithLabelValues(from, to).Inc()
}
