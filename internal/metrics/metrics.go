// Package metrics exposes Prometheus instrumentation for the resolve
// pipeline.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	// Resolve pipeline metrics
	ResolvesStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "medwatch_resolves_started_total",
			Help: "Total number of resolve requests started",
		},
	)

	ResolvesCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medwatch_resolves_completed_total",
			Help: "Total number of resolve requests completed",
		},
		[]string{"status"},
	)

	ResolveDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "medwatch_resolve_duration_seconds",
			Help:    "End-to-end resolve duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Task metrics
	TasksDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medwatch_tasks_dispatched_total",
			Help: "Total number of tasks dispatched by the scheduler",
		},
		[]string{"capability"},
	)

	TasksCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medwatch_tasks_completed_total",
			Help: "Total number of tasks reaching a terminal state",
		},
		[]string{"capability", "status"},
	)

	// Fetch metrics
	FetchPages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "medwatch_fetch_pages_total",
			Help: "Total number of source pages fetched",
		},
	)

	FetchRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "medwatch_fetch_retries_total",
			Help: "Total number of transient source errors retried",
		},
	)

	FetchRecords = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "medwatch_fetch_records_total",
			Help: "Total number of records fetched from the source",
		},
	)

	// Understanding-service metrics
	LLMCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medwatch_llm_calls_total",
			Help: "Total number of understanding-service calls",
		},
		[]string{"site", "status"},
	)

	LLMFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medwatch_llm_fallbacks_total",
			Help: "Total number of deterministic fallbacks substituted for understanding-service output",
		},
		[]string{"site"},
	)

	// Budget metrics
	BudgetReservationsDenied = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "medwatch_budget_reservations_denied_total",
			Help: "Total number of task dispatches denied by the usage ledger",
		},
	)
)

// Serve starts the Prometheus metrics endpoint in a background goroutine.
func Serve(port int, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
			logger.Warn("Metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("Metrics server listening", zap.String("addr", addr))
}
