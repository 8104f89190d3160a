// Package metrics exposes Prometheus instrumentation for run progress and
// model call health.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors a run updates. A nil *Metrics is a valid
// no-op receiver so engines can run uninstrumented.
type Metrics struct {
	modelCalls    *prometheus.CounterVec
	callLatency   prometheus.Histogram
	records       *prometheus.CounterVec
	personaStatus *prometheus.CounterVec
	tokensUsed    prometheus.Counter
}

// New registers the collectors on the given registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		modelCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "twinlab",
			Name:      "model_calls_total",
			Help:      "Model completions by outcome.",
		}, []string{"outcome"}),
		callLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "twinlab",
			Name:      "model_call_seconds",
			Help:      "Latency of model completions.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "twinlab",
			Name:      "records_total",
			Help:      "Response records by validity.",
		}, []string{"valid"}),
		personaStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "twinlab",
			Name:      "personas_total",
			Help:      "Personas finished by status.",
		}, []string{"status"}),
		tokensUsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "twinlab",
			Name:      "tokens_total",
			Help:      "Total tokens reported by the model.",
		}),
	}
	reg.MustRegister(m.modelCalls, m.callLatency, m.records, m.personaStatus, m.tokensUsed)
	return m
}

// ObserveCall records one model completion attempt.
func (m *Metrics) ObserveCall(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.modelCalls.WithLabelValues(outcome).Inc()
	m.callLatency.Observe(elapsed.Seconds())
}

// ObserveRecord counts a stored response record.
func (m *Metrics) ObserveRecord(valid bool) {
	if m == nil {
		return
	}
	label := "false"
	if valid {
		label = "true"
	}
	m.records.WithLabelValues(label).Inc()
}

// ObservePersona counts a finished persona by final status.
func (m *Metrics) ObservePersona(status string) {
	if m == nil {
		return
	}
	m.personaStatus.WithLabelValues(status).Inc()
}

// AddTokens accumulates reported token usage.
func (m *Metrics) AddTokens(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.tokensUsed.Add(float64(n))
}
