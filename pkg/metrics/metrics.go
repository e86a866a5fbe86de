// Package metrics exposes Prometheus counters for the approval engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "approvals"

// Recorder owns the engine counters and the registry they are exported from.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	instancesStarted   *prometheus.CounterVec
	instancesCompleted *prometheus.CounterVec
	tasksDispatched    *prometheus.CounterVec
	tasksDecided       *prometheus.CounterVec
	callbackFailures   *prometheus.CounterVec
}

// NewRecorder registers the engine counters on a dedicated registry together
// with the Go runtime and process collectors.
func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Recorder{
		registry: registry,
		instancesStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instances_started_total",
			Help:      "Workflow instances started, by workflow code.",
		}, []string{"workflow_code"}),
		instancesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instances_completed_total",
			Help:      "Workflow instances that reached a terminal status.",
		}, []string{"status"}),
		tasksDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_dispatched_total",
			Help:      "Approval tasks created, by business type.",
		}, []string{"business_type"}),
		tasksDecided: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_decided_total",
			Help:      "Approval task decisions, by action.",
		}, []string{"action"}),
		callbackFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callback_failures_total",
			Help:      "Business callbacks that returned an error.",
		}, []string{"business_type"}),
	}

	registry.MustRegister(
		r.instancesStarted,
		r.instancesCompleted,
		r.tasksDispatched,
		r.tasksDecided,
		r.callbackFailures,
	)

	return r
}

// Registry returns the registry backing the recorder.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}

	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}

	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Recorder) InstanceStarted(workflowCode string) {
	if r == nil {
		return
	}

	r.instancesStarted.WithLabelValues(workflowCode).Inc()
}

func (r *Recorder) InstanceCompleted(status string) {
	if r == nil {
		return
	}

	r.instancesCompleted.WithLabelValues(status).Inc()
}

func (r *Recorder) TasksDispatched(businessType string, count int) {
	if r == nil || count <= 0 {
		return
	}

	r.tasksDispatched.WithLabelValues(businessType).Add(float64(count))
}

func (r *Recorder) TaskDecided(action string) {
	if r == nil {
		return
	}

	r.tasksDecided.WithLabelValues(action).Inc()
}

func (r *Recorder) CallbackFailed(businessType string) {
	if r == nil {
		return
	}

	r.callbackFailures.WithLabelValues(businessType).Inc()
}
