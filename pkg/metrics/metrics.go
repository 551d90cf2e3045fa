package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records sign-in verification attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clubhouse_auth_attempts_total",
			Help: "Total number of sign-in verification attempts",
		},
		[]string{"result"},
	)

	// ActiveSessions tracks unexpired sessions. It is recounted from the store at startup and on every sweep.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clubhouse_active_sessions",
			Help: "Number of active sessions",
		},
	)

	// OTPIssued counts email one-time codes by outcome (issued|reused).
	OTPIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clubhouse_otp_issued_total",
			Help: "Email one-time codes issued or reused",
		},
		[]string{"purpose", "outcome"},
	)

	// TokenVerifications counts opaque/session token lookups by kind and result (hit|miss).
	TokenVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clubhouse_token_verifications_total",
			Help: "Token verification outcomes",
		},
		[]string{"kind", "result"},
	)

	// RateLimitRejections counts requests rejected by a named limiter.
	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clubhouse_rate_limit_rejections_total",
			Help: "Requests rejected by rate limiters",
		},
		[]string{"limiter"},
	)

	// MaintenanceRemoved counts rows or buckets removed by maintenance sweeps.
	MaintenanceRemoved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clubhouse_maintenance_removed_total",
			Help: "Entries removed by maintenance jobs",
		},
		[]string{"job"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clubhouse_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
