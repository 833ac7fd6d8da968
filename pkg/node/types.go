package node

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rocontrol/rocontrol-go/pkg/discovery"
	"github.com/rocontrol/rocontrol-go/pkg/log"
)

// Registry errors.
var (
	ErrNodeNotFound     = errors.New("node not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrUnavailable      = errors.New("node registry unavailable")
	ErrNetwork          = errors.New("network failure")
	ErrSerialization    = errors.New("serialization failure")
	ErrInvalidConfig    = errors.New("invalid node config")
)

// Role is the role of a node in the fleet.
type Role uint8

const (
	// RoleUnknown is a node whose advertised role was not recognised.
	RoleUnknown Role = iota
	// RoleMaster orchestrates the fleet.
	RoleMaster
	// RoleReceiver executes the master's commands.
	RoleReceiver
)

// String returns the lowercase role name.
func (r Role) String() string {
	switch r {
	case RoleMaster:
		return "master"
	case RoleReceiver:
		return "receiver"
	default:
		return "unknown"
	}
}

// ParseRole parses "master" or "receiver", ignoring case.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "master":
		return RoleMaster, nil
	case "receiver":
		return RoleReceiver, nil
	}
	return RoleUnknown, fmt.Errorf("%w: unknown role %q", ErrInvalidConfig, s)
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(text []byte) error {
	if strings.EqualFold(string(text), "unknown") {
		*r = RoleUnknown
		return nil
	}
	role, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = role
	return nil
}

func roleFromDiscovery(r discovery.Role) Role {
	switch r {
	case discovery.RoleMaster:
		return RoleMaster
	case discovery.RoleReceiver:
		return RoleReceiver
	default:
		return RoleUnknown
	}
}

func (r Role) discovery() discovery.Role {
	switch r {
	case RoleMaster:
		return discovery.RoleMaster
	case RoleReceiver:
		return discovery.RoleReceiver
	default:
		return discovery.RoleUnknown
	}
}

func (r Role) journal() log.Role {
	switch r {
	case RoleMaster:
		return log.RoleMaster
	case RoleReceiver:
		return log.RoleReceiver
	default:
		return log.RoleUnset
	}
}

// Capabilities describes what a node can do.
type Capabilities struct {
	DMXOutput       bool `json:"dmx_output" yaml:"dmx_output"`
	MediaPlayback   bool `json:"media_playback" yaml:"media_playback"`
	InputProcessing bool `json:"input_processing" yaml:"input_processing"`
}

// DefaultCapabilities is assumed for nodes that did not report any.
func DefaultCapabilities() Capabilities {
	return Capabilities{DMXOutput: true}
}

// Metrics are the runtime figures carried by a heartbeat.
type Metrics struct {
	DMXFPS           float32 `json:"dmx_fps"`
	CPUUsage         float32 `json:"cpu_usage"`
	MemoryUsage      float32 `json:"memory_usage"`
	NetworkLatencyMS float32 `json:"network_latency_ms"`
}

// Node is a registry entry. Values returned by the registry are copies.
type Node struct {
	NodeID       string       `json:"node_id"`
	Role         Role         `json:"role"`
	Address      string       `json:"address"`
	Port         uint16       `json:"port"`
	Capabilities Capabilities `json:"capabilities"`
	Universes    []uint16     `json:"universes"`

	// LastHeartbeat is taken from the registry clock when a heartbeat,
	// registration or advertisement is received.
	LastHeartbeat time.Time `json:"last_heartbeat"`

	// Online is derived when the copy is made: the node was not swept
	// offline and its last heartbeat is younger than the node timeout.
	Online bool `json:"online"`

	Version string `json:"version"`

	// Metrics are the figures from the latest heartbeat, if any.
	Metrics *Metrics `json:"metrics,omitempty"`
}

func (n *Node) clone() Node {
	c := *n
	c.Universes = append([]uint16(nil), n.Universes...)
	if n.Metrics != nil {
		m := *n.Metrics
		c.Metrics = &m
	}
	return c
}

// Registration is sent by a receiver that joins the master.
type Registration struct {
	NodeID       string       `json:"node_id"`
	Capabilities Capabilities `json:"capabilities"`
	Universes    []uint16     `json:"universes"`
	Version      string       `json:"version"`

	// Address and Port are filled by the transport when known.
	Address string `json:"address,omitempty"`
	Port    uint16 `json:"port,omitempty"`
}

// Validate checks the required fields.
func (r Registration) Validate() error {
	if strings.TrimSpace(r.NodeID) == "" {
		return fmt.Errorf("%w: registration without node_id", ErrSerialization)
	}
	return nil
}

// Heartbeat is a periodic liveness message from a node.
type Heartbeat struct {
	NodeID string `json:"node_id"`

	// Timestamp is the sender's clock. The registry does not use it for
	// liveness.
	Timestamp time.Time `json:"timestamp"`

	Metrics Metrics `json:"metrics"`
}

// Validate checks the required fields.
func (h Heartbeat) Validate() error {
	if strings.TrimSpace(h.NodeID) == "" {
		return fmt.Errorf("%w: heartbeat without node_id", ErrSerialization)
	}
	return nil
}
