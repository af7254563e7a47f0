// Package metrics exposes Prometheus counters for pipeline executions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ExecutionsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recforge_executions_started_total",
		Help: "Total pipeline executions started",
	}, []string{"pipeline_id"})

	ExecutionsSucceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recforge_executions_succeeded_total",
		Help: "Total pipeline executions that published a success outcome",
	}, []string{"pipeline_id"})

	ExecutionsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recforge_executions_failed_total",
		Help: "Total pipeline executions that published a failure outcome",
	}, []string{"pipeline_id", "cause"})

	PollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recforge_polls_total",
		Help: "Total readiness polls against the external service",
	}, []string{"pipeline_id", "stage"})

	ExecutionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "recforge_execution_duration_seconds",
		Help: "Wall-clock duration of completed pipeline executions",
		// Executions run minutes to hours; the budget caps them at a day.
		Buckets: []float64{60, 300, 900, 1800, 3600, 7200, 14400, 28800, 57600, 86400},
	}, []string{"pipeline_id"})
)
