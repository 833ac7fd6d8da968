package node

import (
	"time"

	"github.com/rocontrol/rocontrol-go/pkg/command"
)

// EventType identifies a registry event.
type EventType uint8

const (
	// EventDiscovered reports a node resolved on the LAN.
	EventDiscovered EventType = iota
	// EventConnected reports a node that registered with the master.
	EventConnected
	// EventDisconnected reports a node that timed out, unregistered or
	// left the LAN.
	EventDisconnected
	// EventHeartbeat reports an accepted heartbeat.
	EventHeartbeat
	// EventCommandReceived reports a command addressed to this node.
	EventCommandReceived
)

// String returns the event name.
func (t EventType) String() string {
	switch t {
	case EventDiscovered:
		return "node_discovered"
	case EventConnected:
		return "node_connected"
	case EventDisconnected:
		return "node_disconnected"
	case EventHeartbeat:
		return "node_heartbeat"
	case EventCommandReceived:
		return "command_received"
	default:
		return "unknown"
	}
}

// Event is published on every registry change.
type Event struct {
	Type EventType

	// NodeID is the node the event is about. For EventCommandReceived it
	// is the local node.
	NodeID string

	// Time is the registry clock when the event was produced.
	Time time.Time

	// Node is a copy of the entry after the change. Set for
	// EventDiscovered, EventConnected and EventHeartbeat.
	Node *Node

	// Heartbeat is the accepted heartbeat, including the sender timestamp.
	Heartbeat *Heartbeat

	// Command is set for EventCommandReceived.
	Command *command.Command

	// Reason explains an EventDisconnected: "timeout", "unregistered" or
	// "removed".
	Reason string
}

// Disconnect reasons.
const (
	ReasonTimeout      = "timeout"
	ReasonUnregistered = "unregistered"
	ReasonRemoved      = "removed"
)
