package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// SessionMetrics tracks the session state machine.
type SessionMetrics struct {
	State           *prometheus.GaugeVec
	Transitions     *prometheus.CounterVec
	ClassifyOnce    *prometheus.CounterVec
	RenderedOutputs *prometheus.CounterVec
	registry        *prometheus.Registry

	states []string
}

// NewSessionMetrics creates and registers session metrics. states lists every
// state name so the gauge can be reset to a one-hot vector on each transition.
func NewSessionMetrics(registry *prometheus.Registry, states []string) (*SessionMetrics, error) {
	m := &SessionMetrics{registry: registry, states: states}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register session metrics: %w", err)
	}
	return m, nil
}

func (m *SessionMetrics) initMetrics() {
	m.State = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "livelabel_session_state",
		Help: "Current session state (1 for the active state, 0 otherwise)",
	}, []string{"state"})

	m.Transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "livelabel_session_transitions_total",
		Help: "Total number of session state transitions",
	}, []string{"from", "to"})

	m.ClassifyOnce = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "livelabel_classify_once_total",
		Help: "Total number of single-shot classifications",
	}, []string{"status"})

	m.RenderedOutputs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "livelabel_rendered_outputs_total",
		Help: "Total number of outputs handed to renderers",
	}, []string{"source"})
}

// RecordTransition sets the one-hot state gauge and counts the edge.
func (m *SessionMetrics) RecordTransition(from, to string) {
	for _, s := range m.states {
		m.State.WithLabelValues(s).Set(0)
	}
	m.State.WithLabelValues(to).Set(1)
	m.Transitions.WithLabelValues(from, to).Inc()
}

// RecordClassifyOnce counts a single-shot classification.
func (m *SessionMetrics) RecordClassifyOnce(err error) {
	if err != nil {
		m.ClassifyOnce.WithLabelValues(StatusError).Inc()
		return
	}
	m.ClassifyOnce.WithLabelValues(StatusSuccess).Inc()
}

// RecordRender counts an output handed to the renderer.
func (m *SessionMetrics) RecordRender(source string) {
	m.RenderedOutputs.WithLabelValues(source).Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *SessionMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.State.Describe(ch)
	m.Transitions.Describe(ch)
	m.ClassifyOnce.Describe(ch)
	m.RenderedOutputs.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *SessionMetrics) Collect(ch chan<- prometheus.Metric) {
	m.State.Collect(ch)
	m.Transitions.Collect(ch)
	m.ClassifyOnce.Collect(ch)
	m.RenderedOutputs.Collect(ch)
}
