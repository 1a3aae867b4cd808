package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry Metrics
var (
	// RegistryConnectedClients tracks the current number of registered connections
	RegistryConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "registry_connected_clients",
			Help: "Current number of registered WebSocket connections",
		},
	)

	// RegistryActiveGroups tracks the current number of non-empty assessment groups
	RegistryActiveGroups = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "registry_active_groups",
			Help: "Current number of non-empty assessment groups",
		},
	)

	// RegistryConnectionsTotal tracks connection attempts by result (accepted/rejected)
	RegistryConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_connections_total",
			Help: "Total connection attempts by result",
		},
		[]string{"result"},
	)

	// RegistryCommandChannelDepth tracks the registry actor command queue depth
	RegistryCommandChannelDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "registry_command_channel_depth",
			Help: "Current depth of the registry command channel",
		},
	)

	// RegistryStopTimeoutsTotal tracks forced shutdowns of the registry actor
	RegistryStopTimeoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "registry_stop_timeouts_total",
			Help: "Total registry stops that exceeded the graceful timeout",
		},
	)
)

// Broadcast Metrics
var (
	// BroadcastsTotal tracks fan-out operations by event name and scope (group/all)
	BroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcasts_total",
			Help: "Total broadcast fan-outs by event name and scope",
		},
		[]string{"event", "scope"},
	)

	// BroadcastFanoutDuration tracks how long a single fan-out takes to enqueue
	BroadcastFanoutDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "broadcast_fanout_duration_seconds",
			Help:    "Duration of broadcast fan-out enqueue loops",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
	)

	// SlowClientsEvicted tracks clients dropped because their send buffer filled
	SlowClientsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "slow_clients_evicted_total",
			Help: "Total slow WebSocket clients evicted due to full send buffer",
		},
	)
)

// WebSocket Metrics
var (
	// WebSocketMessageSendDuration tracks per-message write latency
	WebSocketMessageSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_message_send_duration_seconds",
			Help:    "WebSocket message write duration in seconds",
			Buckets: []float64{.0001, .001, .005, .01, .05, .1, .5, 1},
		},
	)

	// WebSocketPingFailures tracks failed keepalive pings
	WebSocketPingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_ping_failures_total",
			Help: "Total failed WebSocket keepalive pings",
		},
	)

	// WebSocketConnectionDuration tracks how long connections stay open
	WebSocketConnectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_connection_duration_seconds",
			Help:    "WebSocket connection lifetime in seconds",
			Buckets: []float64{1, 10, 60, 300, 1800, 3600, 14400},
		},
	)
)

// Redis Metrics
var (
	// RedisOpsTotal tracks total Redis operations by operation type and status
	RedisOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total Redis operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	// RedisOpDuration tracks Redis operation latency in seconds
	RedisOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Redis operation duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// RedisConnectionErrors tracks Redis connection errors
	RedisConnectionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "redis_connection_errors_total",
			Help: "Total Redis connection errors",
		},
	)

	// CircuitBreakerStateChanges tracks circuit breaker state transitions
	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_changes_total",
			Help: "Circuit breaker state transitions by component and new state",
		},
		[]string{"component", "state"},
	)

	// CircuitBreakerState tracks current circuit breaker state (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)
)
