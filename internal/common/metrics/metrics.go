// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ExtractionRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_extraction_requests_total",
			Help: "Total calls to the understanding service",
		},
		[]string{"status"},
	)

	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_sessions_active",
			Help: "Number of open conversation sessions",
		},
	)

	SessionsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_sessions_expired_total",
			Help: "Sessions discarded by the inactivity sweep",
		},
	)

	SubQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_subqueries_total",
			Help: "Sub-queries executed against the trip store",
		},
		[]string{"status"},
	)

	SubQueryRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_subquery_retries_total",
			Help: "Retry attempts across all sub-queries",
		},
	)

	RetrievalDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "bot_retrieval_duration_seconds",
			Help: "Wall time of whole retrieval invocations",
		},
	)

	PoolConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bot_pool_connections",
			Help: "Data store connections by state",
		},
		[]string{"state"},
	)

	PoolConnectionsReaped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_pool_connections_reaped_total",
			Help: "Idle connections closed by the reaper",
		},
	)

	ReportsGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_reports_generated_total",
			Help: "Excel reports written and handed to the transport",
		},
	)
)
