// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueriesCompiled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_queries_compiled_total",
			Help: "Total number of query bodies compiled",
		},
		[]string{"tenant"},
	)

	FragmentsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_fragments_dropped_total",
			Help: "Total number of malformed optional fragments dropped",
		},
		[]string{"operator"},
	)

	BackendRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_backend_requests_total",
			Help: "Total number of search backend round trips",
		},
		[]string{"operation", "status"},
	)

	BackendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "search_backend_duration_seconds",
			Help: "Duration of search backend round trips in seconds",
		},
		[]string{"operation"},
	)

	MessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sla_messages_processed_total",
			Help: "Total number of messages processed by disposition",
		},
		[]string{"tenant", "disposition"},
	)

	MessagesRetried = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sla_messages_retried_total",
			Help: "Total number of retry attempts by failure source",
		},
		[]string{"tenant", "source"},
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sla_queue_depth",
			Help: "Current depth of per-tenant durable queues",
		},
		[]string{"tenant", "queue"},
	)

	RateLimitDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sla_rate_limit_denials_total",
			Help: "Total number of rate-limited scheduling ticks",
		},
		[]string{"tenant"},
	)
)
