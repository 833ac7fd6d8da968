package node

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rocontrol/rocontrol-go/pkg/broadcast"
	"github.com/rocontrol/rocontrol-go/pkg/command"
	"github.com/rocontrol/rocontrol-go/pkg/log"
)

// Registry owns the nodes known to this process. All access goes through
// its methods; returned nodes are copies.
type Registry struct {
	mu     sync.Mutex
	nodes  map[string]*Node
	cfg    Config
	closed bool

	// events is published under mu so subscribers see changes in the
	// order they were applied. Publishing never blocks.
	events *broadcast.Broadcaster[Event]

	logger  *slog.Logger
	journal log.Logger

	now func() time.Time
}

// NewRegistry creates an empty registry. Zero fields of cfg take their
// defaults; an invalid role or node id is rejected.
func NewRegistry(cfg Config) (*Registry, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Registry{
		nodes:   make(map[string]*Node),
		cfg:     cfg.clone(),
		events:  broadcast.New[Event](cfg.EventBuffer),
		logger:  logger,
		journal: log.OrNoop(cfg.Journal),
		now:     time.Now,
	}, nil
}

// Config returns a copy of the current configuration.
func (r *Registry) Config() Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg.clone()
}

// UpdateConfig replaces the node settings. Logger, Journal and EventBuffer
// are fixed at construction and ignored here.
func (r *Registry) UpdateConfig(cfg Config) error {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrUnavailable
	}
	cfg.Logger = r.cfg.Logger
	cfg.Journal = r.cfg.Journal
	cfg.EventBuffer = r.cfg.EventBuffer
	r.cfg = cfg.clone()
	r.mu.Unlock()

	r.logger.Info("node config updated",
		slog.String("node_id", cfg.NodeID),
		slog.String("role", cfg.Role.String()))
	return nil
}

// Register adds or replaces a receiver. Only a master accepts
// registrations; any other role fails with ErrPermissionDenied.
func (r *Registry) Register(reg Registration) (Node, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return Node{}, ErrUnavailable
	}
	if r.cfg.Role != RoleMaster {
		role := r.cfg.Role
		r.mu.Unlock()
		return Node{}, fmt.Errorf("%w: only a master registers nodes, this node is %s", ErrPermissionDenied, role)
	}
	if err := reg.Validate(); err != nil {
		r.mu.Unlock()
		return Node{}, err
	}

	now := r.now()
	n := &Node{
		NodeID:        reg.NodeID,
		Role:          RoleReceiver,
		Address:       reg.Address,
		Port:          reg.Port,
		Capabilities:  reg.Capabilities,
		Universes:     append([]uint16(nil), reg.Universes...),
		LastHeartbeat: now,
		Online:        true,
		Version:       reg.Version,
	}
	r.nodes[n.NodeID] = n
	snap := r.snapshotLocked(n, now)
	r.publishLocked(Event{Type: EventConnected, NodeID: n.NodeID, Time: now, Node: &snap})
	r.mu.Unlock()

	r.logger.Info("node registered",
		slog.String("node_id", snap.NodeID),
		slog.String("version", snap.Version),
		slog.Any("universes", snap.Universes))
	r.logNode(now, log.CategoryNode, log.NodeActionConnected, &snap)
	return snap, nil
}

// Unregister removes a node.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrUnavailable
	}
	n, ok := r.nodes[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	delete(r.nodes, id)
	now := r.now()
	snap := n.clone()
	snap.Online = false
	r.publishLocked(Event{Type: EventDisconnected, NodeID: id, Time: now, Reason: ReasonUnregistered})
	r.mu.Unlock()

	r.logger.Info("node unregistered", slog.String("node_id", id))
	r.logNode(now, log.CategoryNode, log.NodeActionDisconnected, &snap)
	return nil
}

// UpdateHeartbeat refreshes a known node. Heartbeats never create nodes:
// an unknown id fails with ErrNodeNotFound.
func (r *Registry) UpdateHeartbeat(hb Heartbeat) (Node, error) {
	if err := hb.Validate(); err != nil {
		return Node{}, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return Node{}, ErrUnavailable
	}
	n, ok := r.nodes[hb.NodeID]
	if !ok {
		r.mu.Unlock()
		return Node{}, fmt.Errorf("%w: %s", ErrNodeNotFound, hb.NodeID)
	}

	now := r.now()
	wasOnline := n.Online
	n.LastHeartbeat = now
	n.Online = true
	m := hb.Metrics
	n.Metrics = &m

	snap := r.snapshotLocked(n, now)
	beat := hb
	r.publishLocked(Event{Type: EventHeartbeat, NodeID: n.NodeID, Time: now, Node: &snap, Heartbeat: &beat})
	r.mu.Unlock()

	if !wasOnline {
		r.logger.Info("node back online", slog.String("node_id", hb.NodeID))
	}
	r.logNode(now, log.CategoryNode, log.NodeActionHeartbeat, &snap)
	return snap, nil
}

// CheckHealth marks every online node whose last heartbeat is older than
// the node timeout as offline and emits one EventDisconnected per node
// that changed. Nodes are not removed. It returns the affected ids, sorted.
func (r *Registry) CheckHealth() ([]string, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrUnavailable
	}

	now := r.now()
	timeout := r.cfg.NodeTimeout

	var expired []*Node
	for _, n := range r.nodes {
		if n.Online && now.Sub(n.LastHeartbeat) > timeout {
			n.Online = false
			expired = append(expired, n)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].NodeID < expired[j].NodeID })

	ids := make([]string, 0, len(expired))
	snaps := make([]Node, 0, len(expired))
	for _, n := range expired {
		ids = append(ids, n.NodeID)
		snaps = append(snaps, n.clone())
		r.publishLocked(Event{Type: EventDisconnected, NodeID: n.NodeID, Time: now, Reason: ReasonTimeout})
	}
	r.mu.Unlock()

	for i := range snaps {
		r.logger.Warn("node timed out",
			slog.String("node_id", snaps[i].NodeID),
			slog.Duration("since_heartbeat", now.Sub(snaps[i].LastHeartbeat)))
		r.logNode(now, log.CategoryNode, log.NodeActionDisconnected, &snaps[i])
	}
	return ids, nil
}

// Upsert records a node seen through discovery and emits EventDiscovered.
// For a node that is already known, capabilities, universes and metrics
// are kept and the advertised fields replaced.
func (r *Registry) Upsert(n Node) (Node, error) {
	if n.NodeID == "" {
		return Node{}, fmt.Errorf("%w: node without node_id", ErrSerialization)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return Node{}, ErrUnavailable
	}

	now := r.now()
	stored := n.clone()
	if existing, ok := r.nodes[n.NodeID]; ok {
		stored.Capabilities = existing.Capabilities
		stored.Universes = existing.Universes
		stored.Metrics = existing.Metrics
	}
	stored.LastHeartbeat = now
	stored.Online = true
	r.nodes[stored.NodeID] = &stored

	snap := r.snapshotLocked(&stored, now)
	r.publishLocked(Event{Type: EventDiscovered, NodeID: snap.NodeID, Time: now, Node: &snap})
	r.mu.Unlock()

	r.logger.Info("node discovered",
		slog.String("node_id", snap.NodeID),
		slog.String("role", snap.Role.String()),
		slog.String("address", snap.hostPort()))
	r.logNode(now, log.CategoryDiscovery, log.NodeActionDiscovered, &snap)
	return snap, nil
}

// RemoveDiscovered deletes a node that left the LAN and emits
// EventDisconnected. It reports whether the node was known.
func (r *Registry) RemoveDiscovered(id string) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	n, ok := r.nodes[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.nodes, id)
	now := r.now()
	snap := n.clone()
	snap.Online = false
	r.publishLocked(Event{Type: EventDisconnected, NodeID: id, Time: now, Reason: ReasonRemoved})
	r.mu.Unlock()

	r.logger.Info("node left the network", slog.String("node_id", id))
	r.logNode(now, log.CategoryDiscovery, log.NodeActionDisconnected, &snap)
	return true
}

// NotifyCommand emits EventCommandReceived for a command delivered to this
// node.
func (r *Registry) NotifyCommand(cmd command.Command) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	now := r.now()
	nodeID := r.cfg.NodeID
	c := cmd
	r.publishLocked(Event{Type: EventCommandReceived, NodeID: nodeID, Time: now, Command: &c})
	r.mu.Unlock()

	r.logger.Debug("command received",
		slog.String("command_id", cmd.CommandID),
		slog.String("command_type", cmd.CommandType))
	r.journal.Log(log.Event{
		Timestamp: now,
		NodeID:    nodeID,
		Category:  log.CategoryCommand,
		LocalRole: r.localRole(),
		SubjectID: cmd.CommandID,
		Command: &log.CommandEvent{
			CommandID:   cmd.CommandID,
			CommandType: cmd.CommandType,
			Target:      cmd.TargetNode,
			PayloadSize: len(cmd.Payload),
			Delivered:   1,
		},
	})
}

// Get returns a copy of one node.
func (r *Registry) Get(id string) (Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return Node{}, ErrUnavailable
	}
	n, ok := r.nodes[id]
	if !ok {
		return Node{}, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	return r.snapshotLocked(n, r.now()), nil
}

// All returns copies of every node sorted by id.
func (r *Registry) All() []Node {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	out := make([]Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, r.snapshotLocked(n, now))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out
}

// Len returns the number of known nodes.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.nodes)
}

// Events subscribes to registry events published after this call.
func (r *Registry) Events() *broadcast.Subscription[Event] {
	return r.events.Subscribe()
}

// DroppedEvents returns how many event deliveries were lost to slow
// subscribers.
func (r *Registry) DroppedEvents() uint64 {
	return r.events.Dropped()
}

// RunHealthCheck calls CheckHealth every interval until ctx is done or the
// registry is closed. A non-positive interval uses the heartbeat interval.
func (r *Registry) RunHealthCheck(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = r.Config().HeartbeatInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.CheckHealth(); err != nil {
				return nil
			}
		}
	}
}

// Close rejects further operations and ends every event subscription.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()
	r.events.Close()
}

func (r *Registry) snapshotLocked(n *Node, now time.Time) Node {
	c := n.clone()
	c.Online = n.Online && now.Sub(n.LastHeartbeat) < r.cfg.NodeTimeout
	return c
}

func (r *Registry) publishLocked(ev Event) {
	r.events.Publish(ev)
}

func (r *Registry) localRole() log.Role {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg.Role.journal()
}

func (r *Registry) logNode(ts time.Time, cat log.Category, action log.NodeAction, n *Node) {
	r.mu.Lock()
	nodeID := r.cfg.NodeID
	role := r.cfg.Role.journal()
	r.mu.Unlock()

	r.journal.Log(log.Event{
		Timestamp: ts,
		NodeID:    nodeID,
		Category:  cat,
		LocalRole: role,
		SubjectID: n.NodeID,
		Node: &log.NodeEvent{
			Action:  action,
			Role:    n.Role.journal(),
			Address: n.hostPort(),
			Version: n.Version,
			Online:  n.Online,
		},
	})
}

func (n *Node) hostPort() string {
	if n.Address == "" {
		return ""
	}
	return net.JoinHostPort(n.Address, strconv.Itoa(int(n.Port)))
}
