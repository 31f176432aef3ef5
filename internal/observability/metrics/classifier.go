// Package metrics provides custom Prometheus metrics for the livelabel application.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/livelabel/internal/errors"
)

// ClassifierMetrics contains all Prometheus metrics related to the model handle.
type ClassifierMetrics struct {
	PredictionDuration *prometheus.HistogramVec
	ModelLoadDuration  *prometheus.HistogramVec

	PredictionTotal  *prometheus.CounterVec
	PredictionErrors *prometheus.CounterVec
	ModelLoadTotal   *prometheus.CounterVec
	ModelLoadErrors  *prometheus.CounterVec
	TopPickCounter   *prometheus.CounterVec

	ModelLoadedGauge prometheus.Gauge

	registry *prometheus.Registry
}

// NewClassifierMetrics creates a new instance of ClassifierMetrics.
// It returns an error if metric registration fails.
func NewClassifierMetrics(registry *prometheus.Registry) (*ClassifierMetrics, error) {
	m := &ClassifierMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register classifier metrics: %w", err)
	}
	return m, nil
}

func (m *ClassifierMetrics) initMetrics() {
	m.PredictionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "livelabel_prediction_duration_seconds",
			Help:    "Time taken to perform a prediction",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount10),
		},
		[]string{"backend"},
	)

	m.ModelLoadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "livelabel_model_load_duration_seconds",
			Help:    "Time taken to fetch and initialise the model",
			Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount12),
		},
		[]string{"backend"},
	)

	m.PredictionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livelabel_predictions_total",
			Help: "Total number of prediction requests",
		},
		[]string{"backend", "status"},
	)

	m.PredictionErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livelabel_prediction_errors_total",
			Help: "Total number of prediction errors",
		},
		[]string{"backend", "error_type"},
	)

	m.ModelLoadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livelabel_model_load_total",
			Help: "Total number of model load attempts",
		},
		[]string{"backend", "status"},
	)

	m.ModelLoadErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livelabel_model_load_errors_total",
			Help: "Total number of model load errors",
		},
		[]string{"backend", "error_type"},
	)

	m.TopPickCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livelabel_top_picks_total",
			Help: "Total number of ranked result sets partitioned by top-pick label and theme.",
		},
		[]string{"label", "theme"},
	)

	m.ModelLoadedGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "livelabel_model_loaded",
			Help: "Whether the model is currently loaded (1) or not (0)",
		},
	)
}

// RecordPrediction records metrics for a prediction operation
func (m *ClassifierMetrics) RecordPrediction(backend string, durationSeconds float64, err error) {
	if err != nil {
		m.PredictionTotal.WithLabelValues(backend, StatusError).Inc()
		m.PredictionErrors.WithLabelValues(backend, categorizeError(err)).Inc()
		return
	}
	m.PredictionTotal.WithLabelValues(backend, StatusSuccess).Inc()
	m.PredictionDuration.WithLabelValues(backend).Observe(durationSeconds)
}

// RecordModelLoad records metrics for model loading operations
func (m *ClassifierMetrics) RecordModelLoad(backend string, durationSeconds float64, err error) {
	if err != nil {
		m.ModelLoadTotal.WithLabelValues(backend, StatusError).Inc()
		m.ModelLoadErrors.WithLabelValues(backend, categorizeError(err)).Inc()
		m.ModelLoadedGauge.Set(0)
		return
	}
	m.ModelLoadTotal.WithLabelValues(backend, StatusSuccess).Inc()
	m.ModelLoadDuration.WithLabelValues(backend).Observe(durationSeconds)
	m.ModelLoadedGauge.Set(1)
}

// RecordModelReset marks the model as unloaded.
func (m *ClassifierMetrics) RecordModelReset() {
	m.ModelLoadedGauge.Set(0)
}

// RecordTopPick counts the winning label of a ranked result set.
func (m *ClassifierMetrics) RecordTopPick(label, theme string) {
	m.TopPickCounter.WithLabelValues(label, theme).Inc()
}

// categorizeError maps an error onto a bounded label value.
func categorizeError(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, errors.ErrModelLoad):
		return "model_load"
	case errors.Is(err, errors.ErrNotReady):
		return "not_ready"
	case errors.Is(err, errors.ErrDeviceUnavailable):
		return "device"
	case errors.Is(err, errors.ErrDecode):
		return "decode"
	}

	var ee *errors.EnhancedError
	if errors.As(err, &ee) {
		return ee.GetCategory()
	}
	return "unknown"
}

// Describe implements the prometheus.Collector interface.
func (m *ClassifierMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.PredictionDuration.Describe(ch)
	m.ModelLoadDuration.Describe(ch)
	m.PredictionTotal.Describe(ch)
	m.PredictionErrors.Describe(ch)
	m.ModelLoadTotal.Describe(ch)
	m.ModelLoadErrors.Describe(ch)
	m.TopPickCounter.Describe(ch)
	ch <- m.ModelLoadedGauge.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *ClassifierMetrics) Collect(ch chan<- prometheus.Metric) {
	m.PredictionDuration.Collect(ch)
	m.ModelLoadDuration.Collect(ch)
	m.PredictionTotal.Collect(ch)
	m.PredictionErrors.Collect(ch)
	m.ModelLoadTotal.Collect(ch)
	m.ModelLoadErrors.Collect(ch)
	m.TopPickCounter.Collect(ch)
	ch <- m.ModelLoadedGauge
}
