package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// AccountLockouts counts lockouts triggered by repeated failures.
	AccountLockouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_account_lockouts_total",
			Help: "Total number of accounts locked after repeated failed logins",
		},
	)

	// SessionsSwept counts expired sessions removed by the sweeper.
	SessionsSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_sessions_swept_total",
			Help: "Total number of expired sessions deleted",
		},
	)

	// LookupRequests counts brokered lookups by service and result (success|validation|config|upstream|error).
	LookupRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_lookup_requests_total",
			Help: "Total number of brokered threat-intel lookups",
		},
		[]string{"service", "result"},
	)

	// LookupLatency measures upstream call duration per service.
	LookupLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentinel_lookup_latency_seconds",
			Help:    "Upstream lookup latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"service"},
	)

	// AuthorizationChecks records role checks by result (allowed|denied).
	AuthorizationChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_authorization_checks_total",
			Help: "Total number of role checks on protected routes",
		},
		[]string{"result"},
	)

	// RateLimited counts requests rejected by the HTTP rate limiter per route.
	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_rate_limited_requests_total",
			Help: "Total number of requests rejected by rate limiting",
		},
		[]string{"path"},
	)

	// MaintenanceRuns records maintenance job executions by job and result.
	MaintenanceRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_maintenance_runs_total",
			Help: "Total number of maintenance job runs",
		},
		[]string{"job", "result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentinel_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
