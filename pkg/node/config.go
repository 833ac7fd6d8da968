package node

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rocontrol/rocontrol-go/pkg/broadcast"
	"github.com/rocontrol/rocontrol-go/pkg/discovery"
	"github.com/rocontrol/rocontrol-go/pkg/log"
)

// Default node settings.
const (
	DefaultPort              = discovery.DefaultPort
	DefaultHeartbeatInterval = 1 * time.Second
	DefaultNodeTimeout       = 5 * time.Second
	DefaultEventBuffer       = broadcast.DefaultBuffer
)

// Config configures a Registry.
type Config struct {
	// Role of this node. Only a master accepts registrations.
	Role Role `yaml:"role"`

	// NodeID identifies this node. Defaults to DefaultNodeID().
	NodeID string `yaml:"node_id"`

	// ListenPort is the advertised service port.
	ListenPort uint16 `yaml:"listen_port"`

	// MasterAddress and MasterPort locate the master for receivers that do
	// not discover it.
	MasterAddress string `yaml:"master_address,omitempty"`
	MasterPort    uint16 `yaml:"master_port,omitempty"`

	// Universes are the DMX universes handled locally.
	Universes []uint16 `yaml:"universes,omitempty"`

	// Capabilities of this node.
	Capabilities Capabilities `yaml:"capabilities"`

	// AutoDiscover enables LAN browsing.
	AutoDiscover bool `yaml:"auto_discover"`

	// HeartbeatInterval is the receiver heartbeat and health sweep period.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// NodeTimeout is how long a node stays online without a heartbeat.
	NodeTimeout time.Duration `yaml:"node_timeout"`

	// EventBuffer is the per-subscriber event queue length.
	EventBuffer int `yaml:"event_buffer"`

	// Logger is the optional operational logger. If nil, logging is disabled.
	Logger *slog.Logger `yaml:"-"`

	// Journal receives node lifecycle events. If nil, the journal is disabled.
	Journal log.Logger `yaml:"-"`
}

// DefaultConfig returns the configuration of a standalone master.
func DefaultConfig() Config {
	return Config{
		Role:              RoleMaster,
		NodeID:            DefaultNodeID(),
		ListenPort:        DefaultPort,
		Capabilities:      DefaultCapabilities(),
		AutoDiscover:      true,
		HeartbeatInterval: DefaultHeartbeatInterval,
		NodeTimeout:       DefaultNodeTimeout,
		EventBuffer:       DefaultEventBuffer,
	}
}

// DefaultNodeID returns "rocontrol-" followed by the first group of a
// random UUID.
func DefaultNodeID() string {
	first, _, _ := strings.Cut(uuid.NewString(), "-")
	return "rocontrol-" + first
}

// Validate checks the role and node id.
func (c *Config) Validate() error {
	if c.Role != RoleMaster && c.Role != RoleReceiver {
		return fmt.Errorf("%w: role must be master or receiver", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.NodeID) == "" {
		return fmt.Errorf("%w: empty node_id", ErrInvalidConfig)
	}
	if _, err := discovery.InstanceName(c.NodeID); err != nil {
		return fmt.Errorf("%w: node_id: %v", ErrInvalidConfig, err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.NodeID == "" {
		c.NodeID = DefaultNodeID()
	}
	if c.ListenPort == 0 {
		c.ListenPort = DefaultPort
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.NodeTimeout <= 0 {
		c.NodeTimeout = DefaultNodeTimeout
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = DefaultEventBuffer
	}
}

func (c Config) clone() Config {
	c.Universes = append([]uint16(nil), c.Universes...)
	return c
}
