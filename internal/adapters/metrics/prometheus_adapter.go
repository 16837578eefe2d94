package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveConnectionsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_active_connections",
			Help: "Number of live WebSocket connections in any state.",
		},
	)

	ApprovedMembersGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_approved_members",
			Help: "Number of connections currently approved to chat.",
		},
	)

	PendingRequestsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_pending_requests",
			Help: "Number of join requests awaiting an operator decision.",
		},
	)

	FramesReceivedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_frames_received_total",
			Help: "Inbound frames by type, including malformed and ignored ones.",
		},
		[]string{"type"},
	)

	FramesSentCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_frames_sent_total",
			Help: "Outbound frames queued to a connection by type.",
		},
		[]string{"type"},
	)

	FramesDroppedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_frames_dropped_total",
			Help: "Outbound frames dropped before reaching the socket.",
		},
		[]string{"reason"},
	)

	DeliveryFailuresCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_delivery_failures_total",
			Help: "Broadcast deliveries skipped because a consumer was not writable.",
		},
	)

	DecisionsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_decisions_total",
			Help: "Applied approval decisions by action and source.",
		},
		[]string{"action", "source"},
	)

	DecisionRejectionsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_decision_errors_total",
			Help: "Decision requests that were refused, by error code.",
		},
		[]string{"code"},
	)

	NotificationsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_approval_notifications_total",
			Help: "Approval notifications by result.",
		},
		[]string{"result"},
	)
)

// IncrementActiveConnections increments the active connections gauge.
func IncrementActiveConnections() {
	ActiveConnectionsGauge.Inc()
}

// DecrementActiveConnections decrements the active connections gauge.
func DecrementActiveConnections() {
	ActiveConnectionsGauge.Dec()
}

func SetApprovedMembers(n int) {
	ApprovedMembersGauge.Set(float64(n))
}

func SetPendingRequests(n int) {
	PendingRequestsGauge.Set(float64(n))
}

func IncrementFramesReceived(frameType string) {
	FramesReceivedCounter.WithLabelValues(frameType).Inc()
}

func IncrementFramesSent(frameType string) {
	FramesSentCounter.WithLabelValues(frameType).Inc()
}

func IncrementFramesDropped(reason string) {
	FramesDroppedCounter.WithLabelValues(reason).Inc()
}

func IncrementDeliveryFailures() {
	DeliveryFailuresCounter.Inc()
}

func IncrementDecisions(action, source string) {
	DecisionsCounter.WithLabelValues(action, source).Inc()
}

func IncrementDecisionErrors(code string) {
	DecisionRejectionsCounter.WithLabelValues(code).Inc()
}

func IncrementNotifications(result string) {
	NotificationsCounter.WithLabelValues(result).Inc()
}
