package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	CarrierErrors   *prometheus.CounterVec
	WebhooksTotal   *prometheus.CounterVec
}

// NewMetrics creates Prometheus metrics registered on the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates Prometheus metrics registered on the given
// registerer. Tests pass a fresh registry to avoid duplicate registration.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shipbridge_requests_total",
				Help: "Total number of shipping operations by operation and status",
			},
			[]string{"operation", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shipbridge_request_duration_seconds",
				Help:    "Shipping operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		CarrierErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shipbridge_carrier_errors_total",
				Help: "Total carrier API errors by error kind",
			},
			[]string{"kind"},
		),
		WebhooksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shipbridge_webhooks_total",
				Help: "Total carrier webhooks by event and outcome",
			},
			[]string{"event", "outcome"},
		),
	}
}

// RecordRequest records a shipping operation metric.
func (m *Metrics) RecordRequest(operation, status string, duration float64) {
	m.RequestsTotal.WithLabelValues(operation, status).Inc()
	m.RequestDuration.WithLabelValues(operation).Observe(duration)
}

// RecordCarrierError records a carrier error metric.
func (m *Metrics) RecordCarrierError(kind string) {
	m.CarrierErrors.WithLabelValues(kind).Inc()
}

// RecordWebhook records a webhook ingestion metric.
func (m *Metrics) RecordWebhook(event, outcome string) {
	m.WebhooksTotal.WithLabelValues(event, outcome).Inc()
}
