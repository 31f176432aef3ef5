package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// CaptureMetrics contains Prometheus metrics for the frame loop.
type CaptureMetrics struct {
	FramesTotal       prometheus.Counter
	InferencesStarted prometheus.Counter
	FramesDropped     prometheus.Counter
	DeviceErrors      prometheus.Counter
	DeviceAttached    prometheus.Gauge
	registry          *prometheus.Registry
}

// NewCaptureMetrics creates and registers capture loop metrics.
func NewCaptureMetrics(registry *prometheus.Registry) (*CaptureMetrics, error) {
	m := &CaptureMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register capture metrics: %w", err)
	}
	return m, nil
}

func (m *CaptureMetrics) initMetrics() {
	m.FramesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livelabel_capture_frames_total",
		Help: "Total number of frames refreshed from the capture device",
	})
	m.InferencesStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livelabel_capture_inferences_total",
		Help: "Total number of stride frames handed to the classifier",
	})
	m.FramesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livelabel_capture_frames_dropped_total",
		Help: "Stride frames skipped because a prediction was still in flight",
	})
	m.DeviceErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livelabel_capture_device_errors_total",
		Help: "Total number of capture device acquisition or read failures",
	})
	m.DeviceAttached = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "livelabel_capture_device_attached",
		Help: "Whether a capture device is currently held (1) or not (0)",
	})
}

// RecordFrame counts a refreshed frame.
func (m *CaptureMetrics) RecordFrame() { m.FramesTotal.Inc() }

// RecordInference counts a frame handed to the classifier.
func (m *CaptureMetrics) RecordInference() { m.InferencesStarted.Inc() }

// RecordDroppedFrame counts a stride frame skipped under backpressure.
func (m *CaptureMetrics) RecordDroppedFrame() { m.FramesDropped.Inc() }

// RecordDeviceError counts a device failure.
func (m *CaptureMetrics) RecordDeviceError() { m.DeviceErrors.Inc() }

// SetAttached updates the device attachment gauge.
func (m *CaptureMetrics) SetAttached(attached bool) {
	if attached {
		m.DeviceAttached.Set(1)
	} else {
		m.DeviceAttached.Set(0)
	}
}

// Describe implements the prometheus.Collector interface.
func (m *CaptureMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.FramesTotal.Desc()
	ch <- m.InferencesStarted.Desc()
	ch <- m.FramesDropped.Desc()
	ch <- m.DeviceErrors.Desc()
	ch <- m.DeviceAttached.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *CaptureMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.FramesTotal
	ch <- m.InferencesStarted
	ch <- m.FramesDropped
	ch <- m.DeviceErrors
	ch <- m.DeviceAttached
}
