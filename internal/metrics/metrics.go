// Package metrics exposes kipbot's Prometheus instruments on a private registry.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kipbot"

// Outcome labels
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics holds every instrument. A nil *Metrics is valid and records nothing.
type Metrics struct {
	startTime time.Time
	registry  *prometheus.Registry

	turnsTotal     *prometheus.CounterVec
	turnDuration   *prometheus.HistogramVec
	modelCalls     *prometheus.CounterVec
	toolCalls      *prometheus.CounterVec
	roundsPerTurn  prometheus.Histogram
	memoryErrors   *prometheus.CounterVec
	exhaustedTurns prometheus.Counter
	inputsRejected *prometheus.CounterVec
	activeTurns    prometheus.Gauge
	conversations  prometheus.Gauge
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Default returns a process-wide instance
func Default() *Metrics {
	once.Do(func() {
		defaultMetrics = New()
	})
	return defaultMetrics
}

// New creates a Metrics with its own registry
func New() *Metrics {
	m := &Metrics{
		startTime: time.Now(),
		registry:  prometheus.NewRegistry(),

		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Completed agent turns by platform and outcome.",
		}, []string{"platform", "outcome"}),

		turnDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Wall time of one agent turn.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60, 120},
		}, []string{"platform"}),

		modelCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_calls_total",
			Help:      "Language model calls by outcome.",
		}, []string{"outcome"}),

		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool and outcome.",
		}, []string{"tool", "outcome"}),

		roundsPerTurn: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rounds_per_turn",
			Help:      "Model rounds used per turn.",
			Buckets:   []float64{1, 2, 3, 4, 5, 6},
		}),

		memoryErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_errors_total",
			Help:      "Swallowed memory store failures by operation.",
		}, []string{"op"}),

		exhaustedTurns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exhausted_turns_total",
			Help:      "Turns that hit the tool round limit.",
		}),

		inputsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inputs_rejected_total",
			Help:      "Inbound messages refused by input validation.",
		}, []string{"platform"}),

		activeTurns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_turns",
			Help:      "Turns currently in progress.",
		}),

		conversations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "conversations",
			Help:      "Conversations held in memory.",
		}),
	}

	m.registry.MustRegister(
		m.turnsTotal,
		m.turnDuration,
		m.modelCalls,
		m.toolCalls,
		m.roundsPerTurn,
		m.memoryErrors,
		m.exhaustedTurns,
		m.inputsRejected,
		m.activeTurns,
		m.conversations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the private registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Uptime returns time since New
func (m *Metrics) Uptime() time.Duration {
	if m == nil {
		return 0
	}
	return time.Since(m.startTime)
}

// TurnStarted marks a turn in flight; call the returned func when it ends.
func (m *Metrics) TurnStarted() func() {
	if m == nil {
		return func() {}
	}
	m.activeTurns.Inc()
	return m.activeTurns.Dec
}

func (m *Metrics) RecordTurn(platform string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(platform, outcome(err)).Inc()
	m.turnDuration.WithLabelValues(platform).Observe(elapsed.Seconds())
}

func (m *Metrics) RecordModelCall(err error) {
	if m == nil {
		return
	}
	m.modelCalls.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) RecordToolCall(tool string, success bool) {
	if m == nil {
		return
	}
	o := OutcomeSuccess
	if !success {
		o = OutcomeError
	}
	m.toolCalls.WithLabelValues(tool, o).Inc()
}

func (m *Metrics) RecordRounds(rounds int) {
	if m == nil {
		return
	}
	m.roundsPerTurn.Observe(float64(rounds))
}

func (m *Metrics) RecordExhausted() {
	if m == nil {
		return
	}
	m.exhaustedTurns.Inc()
}

func (m *Metrics) RecordMemoryError(op string) {
	if m == nil {
		return
	}
	m.memoryErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) RecordInputRejected(platform string) {
	if m == nil {
		return
	}
	m.inputsRejected.WithLabelValues(platform).Inc()
}

func (m *Metrics) SetConversations(n int) {
	if m == nil {
		return
	}
	m.conversations.Set(float64(n))
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeSuccess
}
