package discovery

import (
	"errors"
	"strings"
	"time"
)

// Service constants for mDNS.
const (
	// ServiceType is the DNS-SD service type of rocontrol nodes.
	ServiceType = "_rocontrol._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// InstancePrefix starts every instance name.
	InstancePrefix = "RoControl"

	// DefaultPort is the default node port.
	DefaultPort = 9000
)

// TXT record keys.
const (
	TXTKeyNodeID  = "node_id"
	TXTKeyRole    = "role"
	TXTKeyVersion = "version"
)

// Timing constants.
const (
	// BrowseTimeout is the default timeout for FindNode.
	BrowseTimeout = 10 * time.Second
)

// Limits.
const (
	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63

	// MaxTXTRecordSize is the maximum total TXT record size.
	MaxTXTRecordSize = 400
)

// Discovery errors.
var (
	ErrInvalidTXTRecord    = errors.New("invalid TXT record format")
	ErrMissingRequired     = errors.New("missing required field")
	ErrInstanceNameTooLong = errors.New("instance name exceeds 63 characters")
	ErrNotAdvertising      = errors.New("not advertising")
	ErrNotFound            = errors.New("service not found")
)

// Role is the advertised node role.
type Role uint8

const (
	// RoleUnknown is any role value that is not recognised.
	RoleUnknown Role = iota
	// RoleMaster is the orchestrating node.
	RoleMaster
	// RoleReceiver executes commands from the master.
	RoleReceiver
)

// String returns the TXT value of the role.
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

// ParseRole decodes a TXT role value. Only "master" and "receiver" (any
// case, surrounding spaces ignored) are recognised.
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "master":
		return RoleMaster
	case "receiver":
		return RoleReceiver
	default:
		return RoleUnknown
	}
}

// NodeInfo contains information for advertising a node.
type NodeInfo struct {
	// NodeID is the unique node identifier.
	NodeID string

	// Role is the node's role.
	Role Role

	// Version is the node's software version.
	Version string

	// Port is the service port.
	Port uint16

	// Host is the hostname to advertise. Empty uses the system hostname.
	Host string
}

// NodeService represents a node found via mDNS.
type NodeService struct {
	// InstanceName is the mDNS instance name (e.g., "RoControl-rocontrol-3f2a9c1e").
	InstanceName string

	// Host is the hostname.
	Host string

	// Port is the service port.
	Port uint16

	// Addresses contains resolved IP addresses.
	Addresses []string

	// NodeID is the node identifier (from TXT "node_id").
	NodeID string

	// Role is the decoded role (from TXT "role").
	Role Role

	// RawRole is the role value as advertised.
	RawRole string

	// Version is the advertised version (from TXT "version").
	Version string
}

// BrowseEventType distinguishes resolved from removed services.
type BrowseEventType uint8

const (
	// BrowseAdded reports a newly resolved service.
	BrowseAdded BrowseEventType = iota
	// BrowseRemoved reports a service that left the network.
	BrowseRemoved
)

// String returns the event type name.
func (t BrowseEventType) String() string {
	switch t {
	case BrowseAdded:
		return "ADDED"
	case BrowseRemoved:
		return "REMOVED"
	default:
		return "UNKNOWN"
	}
}

// BrowseEvent is one change seen while browsing.
type BrowseEvent struct {
	Type BrowseEventType

	// NodeID identifies the node in both added and removed events.
	NodeID string

	// Service is the resolved record. For removals it is the last record
	// seen, or nil if the instance was never resolved.
	Service *NodeService
}

// InstanceName returns the instance name for a node id.
func InstanceName(nodeID string) (string, error) {
	name := InstancePrefix + "-" + nodeID
	if err := ValidateInstanceName(name); err != nil {
		return "", err
	}
	return name, nil
}

// NodeIDFromInstance extracts the node id from an instance or full service
// name. The leading "."-separated token is taken and the instance prefix
// removed.
func NodeIDFromInstance(name string) string {
	token, _, _ := strings.Cut(name, ".")
	return strings.TrimPrefix(token, InstancePrefix+"-")
}
