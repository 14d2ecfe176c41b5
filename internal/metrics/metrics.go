// Package metrics holds the Prometheus collectors of the auction service.
// A nil *Metrics is valid and records nothing, so services and tests can
// run without a registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "crate_auction"

type Metrics struct {
	reg *prometheus.Registry

	bidsPlaced    prometheus.Counter
	bidsRejected  *prometheus.CounterVec
	resolutions   *prometheus.CounterVec
	purchases     *prometheus.CounterVec
	webhooks      *prometheus.CounterVec
	sweepDuration prometheus.Histogram
	sweepErrors   prometheus.Counter
}

// New builds the collectors on a private registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		bidsPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "bids_placed_total",
			Help: "Bids accepted.",
		}),
		bidsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "bids_rejected_total",
			Help: "Bids refused, by reason.",
		}, []string{"reason"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "session_transitions_total",
			Help: "Session state transitions, by resulting outcome.",
		}, []string{"outcome"}),
		purchases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "purchases_total",
			Help: "Purchase completions and failures, by outcome.",
		}, []string{"outcome"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "webhooks_total",
			Help: "Payment webhooks received, by outcome.",
		}, []string{"outcome"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "sweep_duration_seconds",
			Help:    "Duration of one expiry sweep.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		sweepErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "sweep_session_errors_total",
			Help: "Sessions a sweep failed to process.",
		}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.bidsPlaced, m.bidsRejected, m.resolutions, m.purchases, m.webhooks,
		m.sweepDuration, m.sweepErrors,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) BidPlaced() {
	if m == nil {
		return
	}
	m.bidsPlaced.Inc()
}

func (m *Metrics) BidRejected(reason string) {
	if m == nil {
		return
	}
	m.bidsRejected.WithLabelValues(reason).Inc()
}

// Transition counts a session outcome: won, expired, closed, sold.
func (m *Metrics) Transition(outcome string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Purchase(outcome string) {
	if m == nil {
		return
	}
	m.purchases.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Webhook(outcome string) {
	if m == nil {
		return
	}
	m.webhooks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveSweep(d time.Duration, failed int) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(d.Seconds())
	if failed > 0 {
		m.sweepErrors.Add(float64(failed))
	}
}
