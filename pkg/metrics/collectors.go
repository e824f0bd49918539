package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueryDuration tracks store query latency by query name
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clientradar_db_query_duration_seconds",
			Help:    "Store query latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query"},
	)

	// ProbesTotal tracks health probes by outcome
	ProbesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clientradar_probes_total",
			Help: "Total number of health probes",
		},
		[]string{"outcome"},
	)

	// HealthTransitions tracks status changes
	HealthTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clientradar_health_transitions_total",
			Help: "Total number of client health status changes",
		},
		[]string{"from", "to"},
	)

	// EventsTotal tracks appended events
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clientradar_events_total",
			Help: "Total number of events appended to the event log",
		},
		[]string{"type", "severity"},
	)

	// AlertsTriggered tracks rule triggers and cooldown suppressions
	AlertsTriggered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clientradar_alerts_total",
			Help: "Total number of alert rule evaluations that matched",
		},
		[]string{"trigger", "result"},
	)

	// NotificationsTotal tracks notification delivery per channel
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clientradar_notifications_total",
			Help: "Total number of notification deliveries",
		},
		[]string{"channel", "result"},
	)

	// JobRuns tracks background job runs
	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clientradar_job_runs_total",
			Help: "Total number of background job runs",
		},
		[]string{"job", "result"},
	)

	// JobDuration tracks background job wall time
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clientradar_job_duration_seconds",
			Help:    "Background job duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900, 3600},
		},
		[]string{"job"},
	)

	// RetentionDeleted tracks rows purged per tier
	RetentionDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clientradar_retention_deleted_total",
			Help: "Total number of rows deleted by retention cleanup",
		},
		[]string{"tier"},
	)

	// CacheRequests tracks cache lookups
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clientradar_cache_requests_total",
			Help: "Total number of cache lookups",
		},
		[]string{"result"},
	)
)
