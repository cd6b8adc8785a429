package agent

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the counters and histograms the loop updates as a run
// progresses (steps, tool calls, stop reasons). It is not a push exporter:
// newMetrics registers every collector on the default Prometheus registry,
// where any /metrics handler can scrape them. ToolDuration is registered
// but nothing in this package observes it.
type Metrics struct {
	StepsTotal     prometheus.Counter
	ToolCallsTotal prometheus.Counter
	StopReasons    *prometheus.CounterVec
	ToolDuration   *prometheus.HistogramVec
}

var (
	globalMetrics     *Metrics
	globalMetricsOnce sync.Once
)

// GlobalMetrics returns the process-wide Metrics instance, creating and
// registering it on first use.
func GlobalMetrics() *Metrics {
	globalMetricsOnce.Do(func() {
		globalMetrics = newMetrics()
	})
	return globalMetrics
}

func newMetrics() *Metrics {
	m := &Metrics{
		StepsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nexus",
			Subsystem: "agent",
			Name:      "steps_total",
			Help:      "Total number of agent loop steps executed.",
		}),
		ToolCallsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nexus",
			Subsystem: "agent",
			Name:      "tool_calls_total",
			Help:      "Total number of tool calls executed through the pipeline.",
		}),
		StopReasons: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nexus",
			Subsystem: "agent",
			Name:      "stop_reasons_total",
			Help:      "Count of runs by stop reason.",
		}, []string{"reason"}),
		ToolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nexus",
			Subsystem: "agent",
			Name:      "tool_duration_seconds",
			Help:      "Tool execution duration by tool name.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
	}
	prometheus.MustRegister(m.StepsTotal, m.ToolCallsTotal, m.StopReasons, m.ToolDuration)
	return m
}

// ObserveToolCalls records that a batch of n tool calls was executed.
func (m *Metrics) ObserveToolCalls(n int) {
	if m == nil {
		return
	}
	m.StepsTotal.Inc()
	m.ToolCallsTotal.Add(float64(n))
}

// ObserveStopReason records the terminal stop reason of a run.
func (m *Metrics) ObserveStopReason(reason StopReason) {
	if m == nil {
		return
	}
	m.StopReasons.WithLabelValues(string(reason)).Inc()
}
