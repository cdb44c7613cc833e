package instrumentation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the view engine.
type Metrics struct {
	OrdersConsumed   prometheus.Counter
	ValidationErrors prometheus.Counter
	PersistFailures  prometheus.Counter
	ConsumeLatencyMs prometheus.Histogram
	StreamLagMs      prometheus.Histogram
	TimelineSize     prometheus.Gauge
	CustomersTracked prometheus.Gauge
	ProductsTracked  prometheus.Gauge
	ErrorsTotal      *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		OrdersConsumed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "orderviews_orders_consumed_total",
			Help: "Total number of order events consumed and aggregated",
		}),

		ValidationErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "orderviews_validation_errors_total",
			Help: "Total number of inbound orders rejected by validation",
		}),

		PersistFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "orderviews_persist_failures_total",
			Help: "Total number of best-effort view persistence failures",
		}),

		ConsumeLatencyMs: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "orderviews_consume_latency_ms",
			Help:    "Time to validate, aggregate and persist one order in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		StreamLagMs: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "orderviews_stream_lag_ms",
			Help:    "Time between order timestamp and processing time in milliseconds",
			Buckets: []float64{10, 50, 100, 250, 500, 1000, 2000, 5000},
		}),

		TimelineSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "orderviews_timeline_size",
			Help: "Current number of entries in the recent-activity timeline",
		}),

		CustomersTracked: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "orderviews_customers_tracked",
			Help: "Number of distinct customers in the customer view",
		}),

		ProductsTracked: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "orderviews_products_tracked",
			Help: "Number of distinct products in the product view",
		}),

		ErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "orderviews_errors_total",
			Help: "Total number of errors by component and type",
		}, []string{"component", "error_type"}),
	}
}

// RecordOrderConsumed increments the consumed-order counter.
func (m *Metrics) RecordOrderConsumed() {
	m.OrdersConsumed.Inc()
}

// RecordValidationError increments the validation rejection counter.
func (m *Metrics) RecordValidationError() {
	m.ValidationErrors.Inc()
}

// RecordPersistFailure increments the persistence failure counter.
func (m *Metrics) RecordPersistFailure() {
	m.PersistFailures.Inc()
}

// RecordConsumeLatency records the end-to-end consume handling time.
func (m *Metrics) RecordConsumeLatency(latencyMs float64) {
	m.ConsumeLatencyMs.Observe(latencyMs)
}

// RecordStreamLag records the lag between order timestamp and processing time.
func (m *Metrics) RecordStreamLag(lagMs float64) {
	m.StreamLagMs.Observe(lagMs)
}

// RecordViewSizes updates the view-size gauges from the latest snapshot.
func (m *Metrics) RecordViewSizes(customers, products, timeline int) {
	m.CustomersTracked.Set(float64(customers))
	m.ProductsTracked.Set(float64(products))
	m.TimelineSize.Set(float64(timeline))
}

// RecordError increments the error counter for a component/type pair.
func (m *Metrics) RecordError(component, errorType string) {
	m.ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
