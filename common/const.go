package common

// Defaults for the daemon's listening addresses.
const (
	// DefaultRPCAddr is the default address of the JSON-RPC HTTP bridge.
	DefaultRPCAddr = "127.0.0.1:4316"

	// DefaultSocketAddr is the default address of the raw JSON-RPC socket
	// used by hushctl.
	DefaultSocketAddr = "127.0.0.1:4317"
)

// EventType identifies a message pushed on the daemon's websocket event stream.
type EventType string

const (
	EventActivated          EventType = "activated"
	EventDeactivated        EventType = "deactivated"
	EventPermissionRequired EventType = "permission_required"
)

// Event is a single notification pushed to websocket subscribers.
type Event struct {
	Type    EventType `json:"type"`
	Profile string    `json:"profile,omitempty"`
	Kind    string    `json:"kind,omitempty"`
	At      int64     `json:"at"`
}
