package presence

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/tomqwilliamson/baap-notify/internal/identity"
	"github.com/tomqwilliamson/baap-notify/internal/logging"
	"github.com/tomqwilliamson/baap-notify/internal/metrics"
)

const (
	commandTimeout     = 5 * time.Second
	stopTimeout        = 10 * time.Second
	commandChannelSize = 256
)

// --- Command types ---

type registryCmd interface{ isRegistryCmd() }

type baseRegistryCmd struct{}

func (baseRegistryCmd) isRegistryCmd() {}

type connectReply struct {
	connectionID string
	err          error
}

type connectCmd struct {
	baseRegistryCmd
	connection   *websocket.Conn
	identity     identity.Identity
	replyChannel chan connectReply
}

type disconnectCmd struct {
	baseRegistryCmd
	connectionID string
}

type joinGroupCmd struct {
	baseRegistryCmd
	connectionID string
	assessmentID string
}

type leaveGroupCmd struct {
	baseRegistryCmd
	connectionID string
	assessmentID string
}

type broadcastGroupCmd struct {
	baseRegistryCmd
	assessmentID string
	event        string
	payload      any
}

type broadcastAllCmd struct {
	baseRegistryCmd
	event   string
	payload any
}

type sendToConnectionCmd struct {
	baseRegistryCmd
	connectionID string
	event        string
	payload      any
}

type listConnectionsCmd struct {
	baseRegistryCmd
	replyChannel chan []Connection
}

type countsCmd struct {
	baseRegistryCmd
	assessmentID string
	replyChannel chan int
}

type stopCmd struct {
	baseRegistryCmd
}

// client is the registry's view of one live connection.
type client struct {
	info   Connection
	writer *clientWriter
	groups map[string]struct{}
}

// Registry tracks live connections and their assessment-group membership,
// and fans out events to groups or to everyone.
type Registry struct {
	cmdCh          chan registryCmd
	clock          clockwork.Clock
	clients        map[string]*client
	groups         map[string]map[string]struct{}
	maxConnections int
	sendBufferSize int
	done           chan struct{}
	stopTimeout    time.Duration
}

// NewRegistry creates and starts a registry.
// maxConnections caps concurrent connections (prevents resource exhaustion).
// sendBufferSize bounds the per-client outbound buffer; a client that falls
// this far behind is evicted.
func NewRegistry(clock clockwork.Clock, maxConnections, sendBufferSize int) *Registry {
	r := &Registry{
		cmdCh:          make(chan registryCmd, commandChannelSize),
		clock:          clock,
		clients:        make(map[string]*client),
		groups:         make(map[string]map[string]struct{}),
		maxConnections: maxConnections,
		sendBufferSize: sendBufferSize,
		done:           make(chan struct{}),
		stopTimeout:    stopTimeout,
	}
	go r.run()
	return r
}

// --- Public API ---

// Connect registers a new connection and announces it to all clients.
// Identity fallbacks: an unknown user is addressed by its connection id and
// displayed as "Anonymous". Returns the issued connection id.
func (r *Registry) Connect(conn *websocket.Conn, id identity.Identity) (string, error) {
	replyCh := make(chan connectReply, 1)
	r.cmdCh <- connectCmd{connection: conn, identity: id, replyChannel: replyCh}

	timer := r.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case reply := <-replyCh:
		return reply.connectionID, reply.err
	case <-timer.Chan():
		return "", fmt.Errorf("connect command timed out after %v", commandTimeout)
	}
}

// Disconnect removes a connection, its group memberships, and announces the
// departure. Disconnecting an unknown connection id is a no-op.
func (r *Registry) Disconnect(connectionID string) {
	r.cmdCh <- disconnectCmd{connectionID: connectionID}
}

// JoinGroup adds the connection to an assessment group (set semantics) and
// notifies the group's members.
func (r *Registry) JoinGroup(connectionID, assessmentID string) {
	r.cmdCh <- joinGroupCmd{connectionID: connectionID, assessmentID: assessmentID}
}

// LeaveGroup removes the connection from an assessment group and notifies the
// remaining members. Leaving a group the connection is not in is a no-op.
func (r *Registry) LeaveGroup(connectionID, assessmentID string) {
	r.cmdCh <- leaveGroupCmd{connectionID: connectionID, assessmentID: assessmentID}
}

// BroadcastToGroup delivers an event to every member of the named group,
// once per member. An unknown group is a no-op.
func (r *Registry) BroadcastToGroup(assessmentID, event string, payload any) {
	metrics.BroadcastsTotal.WithLabelValues(event, "group").Inc()
	r.cmdCh <- broadcastGroupCmd{assessmentID: assessmentID, event: event, payload: payload}
}

// BroadcastToAll delivers an event to every connected client.
func (r *Registry) BroadcastToAll(event string, payload any) {
	metrics.BroadcastsTotal.WithLabelValues(event, "all").Inc()
	r.cmdCh <- broadcastAllCmd{event: event, payload: payload}
}

// SendToConnection delivers an event to a single connection (reply-to-caller
// semantics). An unknown connection id is a no-op.
func (r *Registry) SendToConnection(connectionID, event string, payload any) {
	r.cmdCh <- sendToConnectionCmd{connectionID: connectionID, event: event, payload: payload}
}

// ListConnections returns a point-in-time snapshot of all known connections.
// Returns nil if the command times out.
func (r *Registry) ListConnections() []Connection {
	replyCh := make(chan []Connection, 1)
	r.cmdCh <- listConnectionsCmd{replyChannel: replyCh}

	timer := r.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case snapshot := <-replyCh:
		return snapshot
	case <-timer.Chan():
		slog.Warn("ListConnections timed out", "timeout", commandTimeout)
		return nil
	}
}

// ClientCount returns the number of registered connections.
// Returns -1 if the command times out.
func (r *Registry) ClientCount() int {
	return r.count("")
}

// GroupMemberCount returns the membership size of an assessment group.
// Returns 0 for an unknown group and -1 if the command times out.
func (r *Registry) GroupMemberCount(assessmentID string) int {
	return r.count(assessmentID)
}

func (r *Registry) count(assessmentID string) int {
	replyCh := make(chan int, 1)
	r.cmdCh <- countsCmd{assessmentID: assessmentID, replyChannel: replyCh}

	timer := r.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case n := <-replyCh:
		return n
	case <-timer.Chan():
		return -1
	}
}

// Stop shuts down the registry, closing all client connections.
// Blocks until the registry goroutine has exited or the timeout is reached.
func (r *Registry) Stop() {
	r.cmdCh <- stopCmd{}

	timer := r.clock.NewTimer(r.stopTimeout)
	defer timer.Stop()

	select {
	case <-r.done:
		slog.Info("Registry stopped gracefully")
	case <-timer.Chan():
		slog.Warn("Registry stop timeout exceeded, forcing exit", "timeout", r.stopTimeout)
		metrics.RegistryStopTimeoutsTotal.Inc()
	}
}

// --- Actor loop ---

func (r *Registry) run() {
	defer close(r.done)

	depthTicker := r.clock.NewTicker(1 * time.Second)
	defer depthTicker.Stop()

	for {
		select {
		case <-depthTicker.Chan():
			metrics.RegistryCommandChannelDepth.Set(float64(len(r.cmdCh)))
		case cmd := <-r.cmdCh:
			switch c := cmd.(type) {
			case connectCmd:
				r.handleConnect(c)
			case disconnectCmd:
				r.handleDisconnect(c.connectionID)
			case joinGroupCmd:
				r.handleJoinGroup(c)
			case leaveGroupCmd:
				r.handleLeaveGroup(c)
			case broadcastGroupCmd:
				r.handleBroadcastGroup(c)
			case broadcastAllCmd:
				r.deliverToAll(c.event, c.payload)
			case sendToConnectionCmd:
				r.handleSendToConnection(c)
			case listConnectionsCmd:
				c.replyChannel <- r.snapshot()
			case countsCmd:
				if c.assessmentID == "" {
					c.replyChannel <- len(r.clients)
				} else {
					c.replyChannel <- len(r.groups[c.assessmentID])
				}
			case stopCmd:
				r.handleStop()
				return
			default:
				slog.Warn("Registry received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
			}
		}
	}
}

func (r *Registry) handleConnect(c connectCmd) {
	if len(r.clients) >= r.maxConnections {
		slog.Warn("Rejecting client: max connections reached", "max_connections", r.maxConnections)
		metrics.RegistryConnectionsTotal.WithLabelValues("rejected").Inc()
		_ = c.connection.Close()
		c.replyChannel <- connectReply{err: fmt.Errorf("max connections (%d) reached", r.maxConnections)}
		return
	}

	connectionID := uuid.NewString()

	// Identity is resolved once at connect time and cached here,
	// never re-resolved per event.
	userID := c.identity.UserID
	if userID == "" {
		userID = connectionID
	}
	userName := c.identity.UserName
	if userName == "" {
		userName = "Anonymous"
	}

	r.clients[connectionID] = &client{
		info: Connection{
			ID:          connectionID,
			UserID:      userID,
			UserName:    userName,
			ConnectedAt: r.clock.Now().UTC(),
		},
		writer: newClientWriter(c.connection, r.clock, r.sendBufferSize),
		groups: make(map[string]struct{}),
	}

	metrics.RegistryConnectionsTotal.WithLabelValues("accepted").Inc()
	metrics.RegistryConnectedClients.Set(float64(len(r.clients)))

	slog.Debug("Client connected", "connection_id", connectionID, "user_id", userID, "total_clients", len(r.clients))
	c.replyChannel <- connectReply{connectionID: connectionID}

	r.deliverToAll(EventUserConnected, map[string]any{
		"userId":       userID,
		"userName":     userName,
		"connectionId": connectionID,
	})
}

func (r *Registry) handleDisconnect(connectionID string) {
	cl, exists := r.clients[connectionID]
	if !exists {
		return
	}

	cl.writer.stop()

	// Membership closure: the connection leaves every group it joined,
	// whether or not the client sent explicit leaves first.
	for assessmentID := range cl.groups {
		r.removeFromGroup(connectionID, assessmentID)
	}
	delete(r.clients, connectionID)

	metrics.RegistryConnectedClients.Set(float64(len(r.clients)))
	slog.Debug("Client disconnected", "connection_id", connectionID, "remaining_clients", len(r.clients))

	r.deliverToAll(EventUserDisconnected, map[string]any{
		"userId":       cl.info.UserID,
		"userName":     cl.info.UserName,
		"connectionId": connectionID,
	})
}

func (r *Registry) handleJoinGroup(c joinGroupCmd) {
	cl, exists := r.clients[c.connectionID]
	if !exists {
		return
	}

	members, exists := r.groups[c.assessmentID]
	if !exists {
		members = make(map[string]struct{})
		r.groups[c.assessmentID] = members
		metrics.RegistryActiveGroups.Set(float64(len(r.groups)))
	}

	if _, already := members[c.connectionID]; already {
		return
	}
	members[c.connectionID] = struct{}{}
	cl.groups[c.assessmentID] = struct{}{}

	logging.WithAssessment(c.assessmentID).Debug("Client joined group", "connection_id", c.connectionID, "group_size", len(members))

	// Scoped to the group: only people already interested in this
	// assessment hear about the arrival.
	r.deliverToGroup(c.assessmentID, EventUserJoinedAssessment, map[string]any{
		"userId":       cl.info.UserID,
		"userName":     cl.info.UserName,
		"assessmentId": c.assessmentID,
	})
}

func (r *Registry) handleLeaveGroup(c leaveGroupCmd) {
	cl, exists := r.clients[c.connectionID]
	if !exists {
		return
	}
	if _, member := cl.groups[c.assessmentID]; !member {
		return
	}

	delete(cl.groups, c.assessmentID)
	r.removeFromGroup(c.connectionID, c.assessmentID)

	logging.WithAssessment(c.assessmentID).Debug("Client left group", "connection_id", c.connectionID)

	r.deliverToGroup(c.assessmentID, EventUserLeftAssessment, map[string]any{
		"userId":       cl.info.UserID,
		"userName":     cl.info.UserName,
		"assessmentId": c.assessmentID,
	})
}

// removeFromGroup drops a connection from a group's member set and prunes
// the group when it empties.
func (r *Registry) removeFromGroup(connectionID, assessmentID string) {
	members, exists := r.groups[assessmentID]
	if !exists {
		return
	}
	delete(members, connectionID)
	if len(members) == 0 {
		delete(r.groups, assessmentID)
		metrics.RegistryActiveGroups.Set(float64(len(r.groups)))
	}
}

func (r *Registry) handleBroadcastGroup(c broadcastGroupCmd) {
	r.deliverToGroup(c.assessmentID, c.event, c.payload)
}

func (r *Registry) handleSendToConnection(c sendToConnectionCmd) {
	cl, exists := r.clients[c.connectionID]
	if !exists {
		return
	}
	data, ok := r.encode(c.event, c.payload)
	if !ok {
		return
	}
	if !cl.writer.enqueue(data) {
		r.evictSlow([]string{c.connectionID})
	}
}

// deliverToGroup fans an event out to the group's current members. Unknown
// groups are a benign no-op, never an error.
func (r *Registry) deliverToGroup(assessmentID, event string, payload any) {
	members, exists := r.groups[assessmentID]
	if !exists {
		return
	}

	data, ok := r.encode(event, payload)
	if !ok {
		return
	}

	start := r.clock.Now()
	var slow []string
	for connectionID := range members {
		cl, exists := r.clients[connectionID]
		if !exists {
			continue
		}
		if !cl.writer.enqueue(data) {
			slow = append(slow, connectionID)
		}
	}
	metrics.BroadcastFanoutDuration.Observe(r.clock.Since(start).Seconds())

	r.evictSlow(slow)
}

func (r *Registry) deliverToAll(event string, payload any) {
	data, ok := r.encode(event, payload)
	if !ok {
		return
	}

	start := r.clock.Now()
	var slow []string
	for connectionID, cl := range r.clients {
		if !cl.writer.enqueue(data) {
			slow = append(slow, connectionID)
		}
	}
	metrics.BroadcastFanoutDuration.Observe(r.clock.Since(start).Seconds())

	r.evictSlow(slow)
}

// evictSlow removes clients whose send buffers overflowed. Eviction happens
// after the fan-out loop so one stuck client never aborts delivery to the rest.
func (r *Registry) evictSlow(connectionIDs []string) {
	for _, connectionID := range connectionIDs {
		slog.Warn("Evicting slow client", "connection_id", connectionID)
		metrics.SlowClientsEvicted.Inc()
		r.handleDisconnect(connectionID)
	}
}

func (r *Registry) encode(event string, payload any) ([]byte, bool) {
	data, err := json.Marshal(Envelope{
		Event:     event,
		Timestamp: r.clock.Now().UTC(),
		Payload:   payload,
	})
	if err != nil {
		slog.Error("Failed to marshal event", "event", event, "error", err)
		return nil, false
	}
	return data, true
}

func (r *Registry) snapshot() []Connection {
	connections := make([]Connection, 0, len(r.clients))
	for _, cl := range r.clients {
		connections = append(connections, cl.info)
	}
	return connections
}

func (r *Registry) handleStop() {
	for connectionID, cl := range r.clients {
		cl.writer.stopGraceful("server shutting down")
		delete(r.clients, connectionID)
	}
	for assessmentID := range r.groups {
		delete(r.groups, assessmentID)
	}
	metrics.RegistryConnectedClients.Set(0)
	metrics.RegistryActiveGroups.Set(0)
}
