package discovery

import (
	"context"
	"fmt"
	"time"
)

// Browser provides mDNS service browsing capabilities.
type Browser interface {
	// Browse watches the LAN for rocontrol nodes. The channel is closed
	// when ctx is cancelled or Stop is called.
	Browse(ctx context.Context) (<-chan BrowseEvent, error)

	// Stop stops all active browsing operations.
	Stop()
}

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// BrowseTimeout is the default timeout for FindNode.
	// Default: 10 seconds.
	BrowseTimeout time.Duration

	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		BrowseTimeout: BrowseTimeout,
		Interface:     "",
	}
}

// ServiceEntry is a raw mDNS service entry, independent of the mDNS library.
type ServiceEntry struct {
	Instance string
	Service  string
	Domain   string
	Host     string
	Port     uint16
	Text     []string
	Addrs    []string
}

// ToNodeService converts a ServiceEntry to a NodeService.
func (e *ServiceEntry) ToNodeService() (*NodeService, error) {
	info, rawRole, err := DecodeNodeTXT(StringsToTXTRecords(e.Text))
	if err != nil {
		return nil, err
	}

	return &NodeService{
		InstanceName: e.Instance,
		Host:         e.Host,
		Port:         e.Port,
		Addresses:    append([]string(nil), e.Addrs...),
		NodeID:       info.NodeID,
		Role:         info.Role,
		RawRole:      rawRole,
		Version:      info.Version,
	}, nil
}

// FindNode browses until the node with the given id is resolved or ctx is
// done.
func FindNode(ctx context.Context, b Browser, nodeID string) (*NodeService, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, nodeID)
			}
			if ev.Type == BrowseAdded && ev.NodeID == nodeID {
				return ev.Service, nil
			}
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrNotFound, nodeID, ctx.Err())
		}
	}
}

// aggregator merges per-interface mDNS entries into one record per
// instance and turns them into browse events.
type aggregator struct {
	services map[string]*NodeService
}

func newAggregator() *aggregator {
	return &aggregator{services: make(map[string]*NodeService)}
}

// add records an entry. It reports an event for a new instance or for a
// known instance whose TXT data changed. Entries that fail to decode are
// skipped.
func (a *aggregator) add(e ServiceEntry) (BrowseEvent, bool) {
	svc, err := e.ToNodeService()
	if err != nil {
		return BrowseEvent{}, false
	}

	existing, found := a.services[e.Instance]
	if !found {
		a.services[e.Instance] = svc
		return BrowseEvent{Type: BrowseAdded, NodeID: svc.NodeID, Service: cloneService(svc)}, true
	}

	existing.Addresses = mergeAddresses(existing.Addresses, svc.Addresses)
	if existing.NodeID == svc.NodeID && existing.RawRole == svc.RawRole && existing.Version == svc.Version {
		return BrowseEvent{}, false
	}
	existing.NodeID = svc.NodeID
	existing.Role = svc.Role
	existing.RawRole = svc.RawRole
	existing.Version = svc.Version
	existing.Host = svc.Host
	existing.Port = svc.Port
	return BrowseEvent{Type: BrowseAdded, NodeID: existing.NodeID, Service: cloneService(existing)}, true
}

// remove drops the addresses of an entry. The instance is removed once no
// addresses remain, or immediately if the entry carries none.
func (a *aggregator) remove(e ServiceEntry) (BrowseEvent, bool) {
	existing, found := a.services[e.Instance]
	if !found {
		id := NodeIDFromInstance(e.Instance)
		if id == "" {
			return BrowseEvent{}, false
		}
		return BrowseEvent{Type: BrowseRemoved, NodeID: id}, true
	}

	if len(e.Addrs) > 0 {
		existing.Addresses = removeAddresses(existing.Addresses, e.Addrs)
		if len(existing.Addresses) > 0 {
			return BrowseEvent{}, false
		}
	}

	delete(a.services, e.Instance)
	return BrowseEvent{Type: BrowseRemoved, NodeID: existing.NodeID, Service: existing}, true
}

func cloneService(s *NodeService) *NodeService {
	c := *s
	c.Addresses = append([]string(nil), s.Addresses...)
	return &c
}

// mergeAddresses adds new addresses to existing list, avoiding duplicates.
func mergeAddresses(existing, new []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, addr := range existing {
		seen[addr] = true
	}

	for _, addr := range new {
		if !seen[addr] {
			existing = append(existing, addr)
			seen[addr] = true
		}
	}
	return existing
}

// removeAddresses removes the given addresses from the list.
func removeAddresses(addresses, gone []string) []string {
	toRemove := make(map[string]bool, len(gone))
	for _, addr := range gone {
		toRemove[addr] = true
	}

	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if !toRemove[addr] {
			result = append(result, addr)
		}
	}
	return result
}
