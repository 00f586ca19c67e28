package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Connection and room gauges
	Connections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "board_ws_connections",
			Help: "Current number of authenticated WebSocket sessions",
		},
	)

	RoomsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "board_rooms_active",
			Help: "Current number of non-empty project rooms",
		},
	)

	// Fan-out
	FramesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "board_frames_sent_total",
			Help: "Frames enqueued to session transports",
		},
		[]string{"type"},
	)

	FramesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "board_frames_dropped_total",
			Help: "Frames dropped because a session transport was full or closed",
		},
		[]string{"type"},
	)

	// Editing locks
	EditingLocks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "board_editing_locks_total",
			Help: "Editing lock transitions",
		},
		[]string{"event"}, // "started", "stopped", "expired", "released", "deleted"
	)

	// Relay
	ChangesRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "board_changes_relayed_total",
			Help: "Committed change events fanned out to rooms",
		},
		[]string{"entity", "action"},
	)

	ChangesRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "board_changes_rejected_total",
			Help: "Change notifications that failed validation or decoding",
		},
	)

	// Access
	AuthFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "board_auth_failures_total",
			Help: "Rejected connection attempts",
		},
		[]string{"reason"},
	)

	JoinDenied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "board_join_denied_total",
			Help: "Refused room joins",
		},
		[]string{"reason"}, // "forbidden", "not_found", "error"
	)

	// Identity collaborator
	IdentityRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "board_identity_requests_total",
			Help: "Profile lookups against the identity service",
		},
		[]string{"result"}, // "ok", "not_found", "failure", "rejected"
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "board_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)

// RecordLock counts one editing lock transition.
func RecordLock(event string, n int) {
	if n <= 0 {
		return
	}
	EditingLocks.WithLabelValues(event).Add(float64(n))
}
