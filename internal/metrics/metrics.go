// Package metrics exposes Prometheus instrumentation for the real-time path.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebSocketConnections is the number of registered connections.
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nexus_websocket_connections",
			Help: "Current number of registered WebSocket connections",
		},
	)

	// OnlineUsers is the number of identities with at least one connection.
	OnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nexus_online_users",
			Help: "Current number of users with at least one live connection",
		},
	)

	// EventsRouted counts routed events by kind and resulting delivery state.
	EventsRouted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexus_events_routed_total",
			Help: "Total number of routed events by kind and delivery state",
		},
		[]string{"kind", "state"},
	)

	// SendFailures counts frames that could not be handed to a connection.
	SendFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexus_websocket_send_failures_total",
			Help: "Total number of failed sends to a connection by reason",
		},
		[]string{"reason"},
	)

	// PersistFailures counts offline fallback writes that failed.
	PersistFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nexus_persist_failures_total",
			Help: "Total number of failed offline event writes",
		},
	)

	// InboundDropped counts client frames discarded by the server.
	InboundDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexus_websocket_inbound_dropped_total",
			Help: "Total number of inbound frames dropped by reason",
		},
		[]string{"reason"},
	)
)

// RecordRouted increments EventsRouted.
func RecordRouted(kind, state string) {
	EventsRouted.WithLabelValues(kind, state).Inc()
}
