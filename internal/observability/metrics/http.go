package metrics

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics tracks requests served by the control API.
type HTTPMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	SSEClients      prometheus.Gauge
	registry        *prometheus.Registry
}

// NewHTTPMetrics creates and registers API metrics.
func NewHTTPMetrics(registry *prometheus.Registry) (*HTTPMetrics, error) {
	m := &HTTPMetrics{registry: registry}
	m.RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "livelabel_http_requests_total",
		Help: "Total number of HTTP requests by route and status code",
	}, []string{"method", "route", "code"})
	m.RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "livelabel_http_request_duration_seconds",
		Help:    "HTTP request latency by route",
		Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount12),
	}, []string{"method", "route"})
	m.SSEClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "livelabel_sse_clients",
		Help: "Number of connected server-sent event clients",
	})

	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register HTTP metrics: %w", err)
	}
	return m, nil
}

// RecordRequest records a completed request. route is the registered path
// template, not the raw URL, to keep label cardinality bounded.
func (m *HTTPMetrics) RecordRequest(method, route string, code int, durationSeconds float64) {
	m.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(durationSeconds)
}

// SetSSEClients updates the connected client gauge.
func (m *HTTPMetrics) SetSSEClients(n int) {
	m.SSEClients.Set(float64(n))
}

// Describe implements the prometheus.Collector interface.
func (m *HTTPMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.RequestsTotal.Describe(ch)
	m.RequestDuration.Describe(ch)
	ch <- m.SSEClients.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *HTTPMetrics) Collect(ch chan<- prometheus.Metric) {
	m.RequestsTotal.Collect(ch)
	m.RequestDuration.Collect(ch)
	ch <- m.SSEClients
}
