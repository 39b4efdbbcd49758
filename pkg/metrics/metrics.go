package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pctasks"

var (
	Registry = prometheus.NewRegistry()

	TaskTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_transitions_total",
			Help:      "Task run state transitions by target state",
		},
		[]string{"state"},
	)
	WorkflowRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_runs_total",
			Help:      "Workflow runs reaching a terminal state",
		},
		[]string{"status"},
	)
	ExecutorCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executor_calls_total",
			Help:      "Calls into task executors",
		},
		[]string{"executor", "op", "outcome"},
	)
	PartitionsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "partitions_in_flight",
			Help:      "Job partitions currently being driven",
		},
	)
)

func init() {
	Registry.MustRegister(TaskTransitions, WorkflowRuns, ExecutorCalls, PartitionsInFlight)
}

// Outcome labels an executor call result.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
