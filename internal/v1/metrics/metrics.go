package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the broadcast-studio signaling core.
//
// Naming convention: namespace_subsystem_name
// - namespace: broadcast_studio (application-level grouping)
// - subsystem: websocket, room, stream (feature-level grouping)
//
// Metric Types:
// - Gauge: Current state (connections, rooms, participants)
// - Counter: Cumulative events (messages processed, chunks relayed)
// - Histogram: Latency distributions (message handling time)

var (
	// ActiveConnections tracks the current number of open WebSocket connections.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "broadcast_studio",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	// RegisteredPeers tracks how many connections completed registration.
	RegisteredPeers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "broadcast_studio",
		Subsystem: "websocket",
		Name:      "peers_registered",
		Help:      "Current number of registered peer identities",
	})

	// ActiveRooms tracks the current number of live rooms.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "broadcast_studio",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active rooms",
	})

	// RoomParticipants tracks the number of participants per room.
	RoomParticipants = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "broadcast_studio",
		Subsystem: "room",
		Name:      "participants_count",
		Help:      "Number of participants in each room",
	}, []string{"room_id"})

	// SignalingMessages counts every inbound message by type and outcome.
	SignalingMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "broadcast_studio",
		Subsystem: "websocket",
		Name:      "messages_total",
		Help:      "Total signaling messages processed",
	}, []string{"message_type", "status"})

	// MessageHandlingDuration tracks time spent handling inbound messages.
	MessageHandlingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "broadcast_studio",
		Subsystem: "websocket",
		Name:      "message_handling_seconds",
		Help:      "Time spent handling signaling messages",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"message_type"})

	// StreamChunks counts audio chunks accepted onto the egress queue.
	StreamChunks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "broadcast_studio",
		Subsystem: "stream",
		Name:      "chunks_total",
		Help:      "Total audio chunks enqueued for the sink",
	})

	// StreamChunksDropped counts chunks dropped by the bounded egress queue.
	StreamChunksDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "broadcast_studio",
		Subsystem: "stream",
		Name:      "chunks_dropped_total",
		Help:      "Total audio chunks dropped on queue overflow",
	})

	// StreamReconnects counts sink reconnection attempts.
	StreamReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "broadcast_studio",
		Subsystem: "stream",
		Name:      "reconnects_total",
		Help:      "Total sink reconnection attempts",
	})

	// CircuitBreakerState exposes the sink circuit breaker state
	// (0=closed, 1=open, 2=half-open).
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "broadcast_studio",
		Subsystem: "stream",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state: 0=closed, 1=open, 2=half-open",
	}, []string{"target"})
)

func IncConnection() {
	ActiveConnections.Inc()
}

func DecConnection() {
	ActiveConnections.Dec()
}
