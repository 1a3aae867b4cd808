package presence

import "time"

// Outbound event names. Clients subscribe to these by name.
const (
	EventUserConnected        = "UserConnected"
	EventUserDisconnected     = "UserDisconnected"
	EventUserJoinedAssessment = "UserJoinedAssessment"
	EventUserLeftAssessment   = "UserLeftAssessment"
	EventConnectedUsers       = "ConnectedUsers"
)

// Envelope wraps every outbound event. The timestamp is attached by the
// registry at the point of transport; payloads pass through verbatim.
type Envelope struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// Connection describes one live client link as seen by the registry.
type Connection struct {
	ID          string    `json:"connectionId"`
	UserID      string    `json:"userId"`
	UserName    string    `json:"userName"`
	ConnectedAt time.Time `json:"connectedAt"`
}
