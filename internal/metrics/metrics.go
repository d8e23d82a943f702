// Package metrics declares the prometheus collectors of the planner.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "study_planner_llm_requests_total",
			Help: "LLM provider attempts by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	LLMLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "study_planner_llm_latency_seconds",
			Help:    "LLM provider latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"provider"},
	)

	ContextOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "study_planner_context_operations_total",
			Help: "Context store operations by operation and outcome",
		},
		[]string{"op", "outcome"},
	)

	PlansGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "study_planner_plans_generated_total",
			Help: "Plans upserted by source (llm, fallback, adjusted)",
		},
		[]string{"source"},
	)

	JobItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "study_planner_job_items_total",
			Help: "Batch job items processed by job and outcome",
		},
		[]string{"job", "outcome"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "study_planner_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "study_planner_http_request_duration_seconds",
			Help: "HTTP request duration in seconds",
		},
		[]string{"method", "route"},
	)
)

// Outcome labels a success flag.
func Outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
