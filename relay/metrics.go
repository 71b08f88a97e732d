package relay

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vocdoni/wispy/types"
)

// Metrics are the Prometheus collectors of a relay, registered in their own
// registry so several relays can live in one process.
type Metrics struct {
	registry *prometheus.Registry

	Interactions *prometheus.CounterVec
	Verify       *prometheus.HistogramVec
	Deliveries   *prometheus.CounterVec
	Effects      *prometheus.CounterVec
	Leaves       prometheus.Gauge
	Outbox       prometheus.Gauge
}

// NewMetrics creates and registers the relay collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Interactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wispy",
			Name:      "interactions_total",
			Help:      "Submitted interactions by kind and result.",
		}, []string{"kind", "result"}),
		Verify: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wispy",
			Name:      "proof_verification_seconds",
			Help:      "Time spent verifying interaction proofs.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"kind"}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wispy",
			Name:      "deliveries_total",
			Help:      "Transport deliveries by result.",
		}, []string{"result"}),
		Effects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wispy",
			Name:      "callback_effects_total",
			Help:      "Reputation and ban effects added to callback bulletin slots by type.",
		}, []string{"type"}),
		Leaves: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wispy",
			Name:      "registry_leaves",
			Help:      "Commitments in the membership registry.",
		}),
		Outbox: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wispy",
			Name:      "outbox_items",
			Help:      "Payloads waiting for delivery.",
		}),
	}
	m.registry.MustRegister(m.Interactions, m.Verify, m.Deliveries, m.Effects, m.Leaves, m.Outbox,
		prometheus.NewGoCollector())
	return m
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// result labels an interaction outcome.
func result(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, types.ErrValidation):
		return "invalid"
	case errors.Is(err, types.ErrStaleWitness):
		return "stale"
	case errors.Is(err, types.ErrProofRejected):
		return "rejected"
	case errors.Is(err, types.ErrDuplicateNullifier):
		return "duplicate"
	case errors.Is(err, types.ErrPolicy), errors.Is(err, types.ErrNotFound):
		return "policy"
	}
	return "error"
}
