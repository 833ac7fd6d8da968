package log

import (
	"strings"
	"time"
)

// Event is one entry in the lifecycle journal.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// NodeID is the node that recorded the event.
	NodeID string `cbor:"2,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"3,keyasint"`

	// LocalRole is the role of the recording node.
	LocalRole Role `cbor:"4,keyasint,omitempty"`

	// SubjectID identifies what the event is about: a peer node, a time
	// state, a timeline or a command.
	SubjectID string `cbor:"5,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Node        *NodeEvent        `cbor:"10,keyasint,omitempty"`
	Command     *CommandEvent     `cbor:"11,keyasint,omitempty"`
	Ack         *AckEvent         `cbor:"12,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"13,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"`
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryNode indicates a node registry change.
	CategoryNode Category = 0
	// CategoryCommand indicates a published command.
	CategoryCommand Category = 1
	// CategoryAck indicates a received command acknowledgment.
	CategoryAck Category = 2
	// CategoryTimeState indicates a time state transition.
	CategoryTimeState Category = 3
	// CategoryTimeline indicates a timeline change.
	CategoryTimeline Category = 4
	// CategoryDiscovery indicates a LAN discovery event.
	CategoryDiscovery Category = 5
	// CategoryError indicates an error event.
	CategoryError Category = 6
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryNode:
		return "NODE"
	case CategoryCommand:
		return "COMMAND"
	case CategoryAck:
		return "ACK"
	case CategoryTimeState:
		return "TIMESTATE"
	case CategoryTimeline:
		return "TIMELINE"
	case CategoryDiscovery:
		return "DISCOVERY"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseCategory parses a category name as printed by String.
// Matching is case-insensitive.
func ParseCategory(s string) (Category, bool) {
	for c := CategoryNode; c <= CategoryError; c++ {
		if strings.EqualFold(c.String(), s) {
			return c, true
		}
	}
	return 0, false
}

// Role is the role of a node as recorded in the journal.
type Role uint8

const (
	// RoleUnset means the role was not recorded.
	RoleUnset Role = 0
	// RoleMaster indicates the orchestrating node.
	RoleMaster Role = 1
	// RoleReceiver indicates a node executing the master's commands.
	RoleReceiver Role = 2
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleMaster:
		return "MASTER"
	case RoleReceiver:
		return "RECEIVER"
	default:
		return "UNKNOWN"
	}
}

// NodeEvent captures a node registration, heartbeat or liveness change.
type NodeEvent struct {
	// Action is what happened to the node.
	Action NodeAction `cbor:"1,keyasint"`

	// Role of the peer node.
	Role Role `cbor:"2,keyasint,omitempty"`

	// Address is the peer address (host:port) if known.
	Address string `cbor:"3,keyasint,omitempty"`

	// Version is the peer's advertised version.
	Version string `cbor:"4,keyasint,omitempty"`

	// Online is the peer's liveness after the action.
	Online bool `cbor:"5,keyasint"`
}

// NodeAction indicates what happened to a node.
type NodeAction uint8

const (
	// NodeActionDiscovered indicates the node was found on the LAN.
	NodeActionDiscovered NodeAction = 0
	// NodeActionConnected indicates the node registered with the master.
	NodeActionConnected NodeAction = 1
	// NodeActionDisconnected indicates the node went offline or was removed.
	NodeActionDisconnected NodeAction = 2
	// NodeActionHeartbeat indicates a heartbeat was accepted.
	NodeActionHeartbeat NodeAction = 3
)

// String returns the node action name.
func (a NodeAction) String() string {
	switch a {
	case NodeActionDiscovered:
		return "DISCOVERED"
	case NodeActionConnected:
		return "CONNECTED"
	case NodeActionDisconnected:
		return "DISCONNECTED"
	case NodeActionHeartbeat:
		return "HEARTBEAT"
	default:
		return "UNKNOWN"
	}
}

// CommandEvent captures a command published on the command bus.
type CommandEvent struct {
	// CommandID is the unique command identifier.
	CommandID string `cbor:"1,keyasint"`

	// CommandType is the application-defined action name.
	CommandType string `cbor:"2,keyasint"`

	// Target is the addressed node (empty for broadcast).
	Target string `cbor:"3,keyasint,omitempty"`

	// PayloadSize is the JSON payload length in bytes.
	PayloadSize int `cbor:"4,keyasint"`

	// Delivered is the number of subscribers that received the command.
	Delivered int `cbor:"5,keyasint"`
}

// AckEvent captures a command acknowledgment.
type AckEvent struct {
	// CommandID as reported by the acknowledging node.
	CommandID string `cbor:"1,keyasint"`

	// NodeID is the acknowledging node.
	NodeID string `cbor:"2,keyasint"`

	// Status is "executed", "failed" or "pending".
	Status string `cbor:"3,keyasint"`

	// Error is the failure description, if any.
	Error string `cbor:"4,keyasint,omitempty"`
}

// StateChangeEvent captures time state and timeline lifecycle changes.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityTimeState indicates a time state run-state change.
	StateEntityTimeState StateEntity = 0
	// StateEntityTimeline indicates a timeline change.
	StateEntityTimeline StateEntity = 1
	// StateEntityDiscovery indicates a discovery service change.
	StateEntityDiscovery StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityTimeState:
		return "TIMESTATE"
	case StateEntityTimeline:
		return "TIMELINE"
	case StateEntityDiscovery:
		return "DISCOVERY"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors from any component.
type ErrorEventData struct {
	// Message is the error message.
	Message string `cbor:"1,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"2,keyasint,omitempty"`
}
