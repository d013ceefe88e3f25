// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apperrors "ai-planner/internal/common/errors"
)

var (
	PlansGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "planner_plans_generated_total",
			Help: "Total number of plans generated and validated",
		},
	)

	PlanGenerationsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planner_plan_generations_failed_total",
			Help: "Total number of failed plan generations",
		},
		[]string{"error_code"},
	)

	PlanGenerationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "planner_plan_generation_duration_seconds",
			Help:    "Duration of plan generation in seconds, including validation",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 15, 25, 40, 60, 90},
		},
	)

	PlanGenerationsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "planner_plan_generations_active",
			Help: "Number of plan generations waiting on the LLM",
		},
	)

	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planner_llm_requests_total",
			Help: "Outbound requests to the LLM provider by response status",
		},
		[]string{"status"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planner_http_requests_total",
			Help: "HTTP requests served by route and status code",
		},
		[]string{"route", "code"},
	)

	Errors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planner_errors_total",
			Help: "Errors rendered to users by code and category",
		},
		[]string{"error_code", "category"},
	)
)

// ErrorRecorder counts handled errors.
type ErrorRecorder struct{}

func (ErrorRecorder) RecordError(code apperrors.ErrorCode) {
	Errors.WithLabelValues(string(code), apperrors.GetErrorCategory(code)).Inc()
}
