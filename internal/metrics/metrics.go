package metrics

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "coupon_groups"

// Metrics records redemption, reconciliation and issuance outcomes.
type Metrics struct {
	registry *prometheus.Registry

	redemptions       *prometheus.CounterVec
	redemptionLatency *prometheus.HistogramVec
	reconciles        *prometheus.CounterVec
	issued            *prometheus.CounterVec
}

// New creates Metrics registered on a fresh registry that also carries the
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redemptions_total",
			Help:      "Redemption attempts by flow and outcome.",
		}, []string{"flow", "outcome"}),
		redemptionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "redemption_duration_seconds",
			Help:      "Time spent in a redemption, including lock waits and remote renewal.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"flow"}),
		reconciles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciled_renewals_total",
			Help:      "Pending renewal journal entries processed by the reconciler.",
		}, []string{"outcome"}),
		issued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issued_codes_total",
			Help:      "Codes attempted by bulk issuance, by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.redemptions,
		m.redemptionLatency,
		m.reconciles,
		m.issued,
	)
	return m
}

// ObserveRedemption counts one redemption attempt and its latency.
func (m *Metrics) ObserveRedemption(flow, outcome string, d time.Duration) {
	m.redemptions.WithLabelValues(flow, outcome).Inc()
	m.redemptionLatency.WithLabelValues(flow).Observe(d.Seconds())
}

// ObserveReconcile counts one reconciled journal entry.
func (m *Metrics) ObserveReconcile(outcome string) {
	m.reconciles.WithLabelValues(outcome).Inc()
}

// ObserveIssuance counts the codes created and skipped by one batch.
func (m *Metrics) ObserveIssuance(created, skipped int) {
	m.issued.WithLabelValues("created").Add(float64(created))
	m.issued.WithLabelValues("skipped").Add(float64(skipped))
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
