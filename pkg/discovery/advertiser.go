package discovery

import (
	"context"
	"time"
)

// Advertiser publishes this node on the LAN.
type Advertiser interface {
	// Advertise starts advertising the node, replacing any previous
	// advertisement.
	Advertise(ctx context.Context, info *NodeInfo) error

	// Update replaces the TXT records of the running advertisement.
	Update(info *NodeInfo) error

	// Stop withdraws the advertisement. Stopping when not advertising is
	// not an error.
	Stop() error
}

// AdvertiserConfig configures advertiser behavior.
type AdvertiserConfig struct {
	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string

	// TTL is the record TTL. Zero uses the zeroconf default.
	TTL time.Duration
}

// DefaultAdvertiserConfig returns the default advertiser configuration.
func DefaultAdvertiserConfig() AdvertiserConfig {
	return AdvertiserConfig{}
}
