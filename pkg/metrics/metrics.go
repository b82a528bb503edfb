package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result (success|failure|throttled).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ptahnest_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// ActiveSessions tracks sessions that are neither destroyed nor expired.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ptahnest_active_sessions",
			Help: "Number of active sessions",
		},
	)

	// HijackDetections counts sessions destroyed after a fingerprint mismatch.
	HijackDetections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ptahnest_session_hijack_detections_total",
			Help: "Total number of fingerprint mismatches treated as hijack attempts",
		},
	)

	// LoginThrottle counts login attempts denied by the brute-force guard,
	// labelled by guard reason (delay|locked).
	LoginThrottle = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ptahnest_login_throttle_total",
			Help: "Total number of login attempts denied by the brute-force guard",
		},
		[]string{"reason"},
	)

	// JoinRequests counts join-request resolutions (pending|accepted|rejected).
	JoinRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ptahnest_join_requests_total",
			Help: "Total number of join-request state changes",
		},
		[]string{"status"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ptahnest_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
