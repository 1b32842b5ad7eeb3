// Package metrics exposes Prometheus collectors for the task pipeline.
// A nil *Collector is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "video_cutter"

type Collector struct {
	registry     *prometheus.Registry
	transitions  *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
	droppedCuts  prometheus.Counter
	toolCalls    *prometheus.CounterVec
	queueDepth   prometheus.Gauge
}

// New builds a collector on a private registry so tests can create as many as
// they like.
func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_transitions_total",
			Help:      "Task state transitions by kind and target state.",
		}, []string{"kind", "state"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Wall time from RUNNING to a terminal state.",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 180, 600, 1800},
		}, []string{"kind", "state"}),
		droppedCuts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proposal_dropped_cuts_total",
			Help:      "Cut ranges from the language model rejected during validation.",
		}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_tool_invocations_total",
			Help:      "External media tool invocations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runner_queue_depth",
			Help:      "Jobs waiting for an in-process worker.",
		}),
	}
	reg.MustRegister(
		c.transitions,
		c.taskDuration,
		c.droppedCuts,
		c.toolCalls,
		c.queueDepth,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) TaskTransition(kind, state string) {
	if c == nil {
		return
	}
	c.transitions.WithLabelValues(kind, state).Inc()
}

func (c *Collector) TaskFinished(kind, state string, seconds float64) {
	if c == nil {
		return
	}
	c.taskDuration.WithLabelValues(kind, state).Observe(seconds)
}

func (c *Collector) CutsDropped(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.droppedCuts.Add(float64(n))
}

func (c *Collector) ToolInvocation(operation string, err error) {
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.toolCalls.WithLabelValues(operation, outcome).Inc()
}

func (c *Collector) SetQueueDepth(n int) {
	if c == nil {
		return
	}
	c.queueDepth.Set(float64(n))
}
