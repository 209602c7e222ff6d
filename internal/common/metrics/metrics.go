// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_jobs_completed_total",
			Help: "Total number of notification jobs completed",
		},
		[]string{"channel", "status"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_jobs_failed_total",
			Help: "Total number of notification job attempts that failed",
		},
		[]string{"channel", "error_code", "will_retry"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notification_job_duration_seconds",
			Help:    "Duration of notification job processing in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"channel"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "notification_jobs_active",
			Help: "Number of jobs currently being handled",
		},
		[]string{"channel"},
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "notification_queue_depth",
			Help: "Jobs per queue state",
		},
		[]string{"state"},
	)

	DispatchOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_dispatch_total",
			Help: "Provider dispatch attempts by outcome",
		},
		[]string{"channel", "provider", "outcome"},
	)

	PushTokensDeactivated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_push_tokens_deactivated_total",
			Help: "Device tokens deactivated after a permanent provider rejection",
		},
	)

	AuthCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_auth_cache_lookups_total",
			Help: "API key verifications by cache result",
		},
		[]string{"result"},
	)

	AuthCacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_auth_cache_evictions_total",
			Help: "Auth cache entries removed by reason",
		},
		[]string{"reason"},
	)

	FanoutMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_fanout_messages_total",
			Help: "Realtime events by delivery path",
		},
		[]string{"path"},
	)

	RealtimeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notification_realtime_connections",
			Help: "Live realtime connections on this process",
		},
	)
)
