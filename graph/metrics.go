package graph

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics records workflow execution metrics.
//
// Metrics exposed (all namespaced with "lexgraph_"):
//
//  1. step_latency_ms (histogram): step duration in milliseconds.
//     Labels: node, status (success/error/timeout/internal).
//  2. steps_total (counter): steps executed. Labels: node, status.
//  3. suspensions_total (counter): workflows halted at a suspension node. Labels: node.
//  4. resumes_total (counter): Resume calls accepted. Labels: node.
//  5. workflows_finished_total (counter): terminal transitions. Labels: outcome (completed/failed).
//  6. inflight_workflows (gauge): engine calls currently executing.
//  7. rejected_calls_total (counter): engine calls refused. Labels: reason.
//
// Work IDs are deliberately not used as labels; they are unbounded.
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	metrics := graph.NewPrometheusMetrics(registry)
//	engine, _ := graph.NewEngine(g, graph.WithMetrics(metrics))
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
type PrometheusMetrics struct {
	stepLatency *prometheus.HistogramVec
	steps       *prometheus.CounterVec
	suspensions *prometheus.CounterVec
	resumes     *prometheus.CounterVec
	finished    *prometheus.CounterVec
	rejected    *prometheus.CounterVec
	inflight    prometheus.Gauge

	mu      sync.RWMutex
	enabled bool
}

// NewPrometheusMetrics creates and registers all metrics with registry. A nil
// registry uses prometheus.DefaultRegisterer.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &PrometheusMetrics{
		enabled: true,
		stepLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lexgraph",
			Name:      "step_latency_ms",
			Help:      "Step execution duration in milliseconds",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 60000},
		}, []string{"node", "status"}),
		steps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lexgraph",
			Name:      "steps_total",
			Help:      "Steps executed, by node and outcome",
		}, []string{"node", "status"}),
		suspensions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lexgraph",
			Name:      "suspensions_total",
			Help:      "Workflows suspended awaiting an external decision",
		}, []string{"node"}),
		resumes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lexgraph",
			Name:      "resumes_total",
			Help:      "Workflows resumed from a suspension node",
		}, []string{"node"}),
		finished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lexgraph",
			Name:      "workflows_finished_total",
			Help:      "Workflows that reached a terminal state",
		}, []string{"outcome"}),
		rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lexgraph",
			Name:      "rejected_calls_total",
			Help:      "Engine calls refused before any state change",
		}, []string{"reason"}),
		inflight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "lexgraph",
			Name:      "inflight_workflows",
			Help:      "Engine calls currently executing",
		}),
	}
}

func (pm *PrometheusMetrics) on() bool {
	if pm == nil {
		return false
	}
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.enabled
}

// RecordStep records one executed step.
func (pm *PrometheusMetrics) RecordStep(node string, latency time.Duration, status string) {
	if !pm.on() {
		return
	}
	pm.stepLatency.WithLabelValues(node, status).Observe(float64(latency.Milliseconds()))
	pm.steps.WithLabelValues(node, status).Inc()
}

// IncrementSuspensions counts a suspension at node.
func (pm *PrometheusMetrics) IncrementSuspensions(node string) {
	if !pm.on() {
		return
	}
	pm.suspensions.WithLabelValues(node).Inc()
}

// IncrementResumes counts a resume from node.
func (pm *PrometheusMetrics) IncrementResumes(node string) {
	if !pm.on() {
		return
	}
	pm.resumes.WithLabelValues(node).Inc()
}

// IncrementFinished counts a terminal transition with outcome "completed" or "failed".
func (pm *PrometheusMetrics) IncrementFinished(outcome string) {
	if !pm.on() {
		return
	}
	pm.finished.WithLabelValues(outcome).Inc()
}

// IncrementRejected counts a refused engine call.
func (pm *PrometheusMetrics) IncrementRejected(reason string) {
	if !pm.on() {
		return
	}
	pm.rejected.WithLabelValues(reason).Inc()
}

// AddInflight adjusts the in-flight gauge by delta.
func (pm *PrometheusMetrics) AddInflight(delta int) {
	if !pm.on() {
		return
	}
	pm.inflight.Add(float64(delta))
}

// Disable stops recording until Enable is called.
func (pm *PrometheusMetrics) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

// Enable re-enables metric recording after Disable().
func (pm *PrometheusMetrics) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}
