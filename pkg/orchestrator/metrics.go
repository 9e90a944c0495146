package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports turn-taking instrumentation to Prometheus, for anyone
// scraping /metrics.
type Metrics struct {
	turnLatency       prometheus.Histogram
	bargeToSilence    prometheus.Histogram
	bargeInTotal      prometheus.Counter
	turnsTotal        prometheus.Counter
}

// NewMetrics registers the turnloop metric family against reg. Pass
// prometheus.NewRegistry() for an isolated registry in tests, or
// prometheus.DefaultRegisterer to expose via promhttp.Handler().
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		turnLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "turnloop_turn_latency_seconds",
			Help:    "Wall-clock duration of a full listen-think-speak turn.",
			Buckets: prometheus.DefBuckets,
		}),
		bargeToSilence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "turnloop_barge_to_silence_seconds",
			Help:    "Time from barge-in detection to the assistant falling silent.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		}),
		bargeInTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "turnloop_barge_in_total",
			Help: "Count of turns interrupted by barge-in.",
		}),
		turnsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "turnloop_turns_total",
			Help: "Count of turns completed.",
		}),
	}
	reg.MustRegister(m.turnLatency, m.bargeToSilence, m.bargeInTotal, m.turnsTotal)
	return m
}

// RecordTurn observes one completed turn's latency in seconds.
func (m *Metrics) RecordTurn(seconds float64) {
	m.turnsTotal.Inc()
	m.turnLatency.Observe(seconds)
}

// RecordBargeIn counts one interrupted turn.
func (m *Metrics) RecordBargeIn() {
	m.bargeInTotal.Inc()
}

// RecordBargeLatency observes the barge-to-silence latency independently
// of RecordBargeIn, for callers that measure it outside the orchestrator.
func (m *Metrics) RecordBargeLatency(seconds float64) {
	m.bargeToSilence.Observe(seconds)
}
