package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/rocontrol/rocontrol-go/pkg/discovery"
	"github.com/rocontrol/rocontrol-go/pkg/log"
	"github.com/rocontrol/rocontrol-go/pkg/version"
)

// DiscoveryConfig configures a Discovery service.
type DiscoveryConfig struct {
	// Version is advertised in the TXT record. Defaults to version.Current.
	Version string

	// Logger is the optional operational logger. If nil, logging is disabled.
	Logger *slog.Logger

	// Journal receives discovery service state changes. If nil, the
	// journal is disabled.
	Journal log.Logger
}

// Discovery advertises the local node and feeds browsed nodes into a
// Registry.
type Discovery struct {
	registry   *Registry
	advertiser discovery.Advertiser
	browser    discovery.Browser
	version    string
	logger     *slog.Logger
	journal    log.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewDiscovery creates a discovery service over the given registry.
// Either adv or br may be nil to disable that side.
func NewDiscovery(reg *Registry, adv discovery.Advertiser, br discovery.Browser, cfg DiscoveryConfig) *Discovery {
	if cfg.Version == "" {
		cfg.Version = version.Current
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Discovery{
		registry:   reg,
		advertiser: adv,
		browser:    br,
		version:    cfg.Version,
		logger:     logger,
		journal:    log.OrNoop(cfg.Journal),
	}
}

// AdvertiseSelf publishes {node_id, role, version} for the local node as
// RoControl-<node_id>. Failures wrap ErrNetwork and are safe to retry.
func (d *Discovery) AdvertiseSelf(ctx context.Context) error {
	if d.advertiser == nil {
		return fmt.Errorf("%w: no advertiser configured", ErrNetwork)
	}

	cfg := d.registry.Config()
	info := &discovery.NodeInfo{
		NodeID:  cfg.NodeID,
		Role:    cfg.Role.discovery(),
		Version: d.version,
		Port:    cfg.ListenPort,
	}
	if err := d.advertiser.Advertise(ctx, info); err != nil {
		d.logState(cfg, "", "failed", err.Error())
		return fmt.Errorf("%w: advertise %s: %w", ErrNetwork, cfg.NodeID, err)
	}

	d.logger.Info("advertising node",
		slog.String("node_id", cfg.NodeID),
		slog.String("role", cfg.Role.String()),
		slog.Int("port", int(cfg.ListenPort)))
	d.logState(cfg, "", "advertising", "")
	return nil
}

// Start browses the LAN in a background goroutine until Stop or ctx is
// done. It is a no-op when the registry config disables auto-discovery
// and when already running.
func (d *Discovery) Start(ctx context.Context) error {
	cfg := d.registry.Config()
	if !cfg.AutoDiscover {
		d.logger.Debug("auto-discovery disabled")
		return nil
	}
	if d.browser == nil {
		return fmt.Errorf("%w: no browser configured", ErrNetwork)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	events, err := d.browser.Browse(ctx)
	if err != nil {
		cancel()
		d.logState(cfg, "", "failed", err.Error())
		return fmt.Errorf("%w: browse: %w", ErrNetwork, err)
	}

	d.running = true
	d.cancel = cancel
	d.done = make(chan struct{})
	go d.run(ctx, events, d.done)

	d.logger.Info("discovery started", slog.String("service", discovery.ServiceType))
	d.logState(cfg, "stopped", "browsing", "")
	return nil
}

// Running reports whether the browse loop is active.
func (d *Discovery) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Stop ends browsing and advertising and waits for the browse loop to
// exit. It is safe to call Stop more than once.
func (d *Discovery) Stop() error {
	d.mu.Lock()
	cancel, done, running := d.cancel, d.done, d.running
	d.running = false
	d.cancel = nil
	d.done = nil
	d.mu.Unlock()

	if running {
		cancel()
		if d.browser != nil {
			d.browser.Stop()
		}
		<-done
		d.logState(d.registry.Config(), "browsing", "stopped", "")
	}

	var err error
	if d.advertiser != nil {
		err = d.advertiser.Stop()
	}
	return err
}

func (d *Discovery) run(ctx context.Context, events <-chan discovery.BrowseEvent, done chan struct{}) {
	defer close(done)

	for {
		// The registry lock is only taken inside handle.
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			d.handle(ev)
		}
	}
}

func (d *Discovery) handle(ev discovery.BrowseEvent) {
	local := d.registry.Config().NodeID
	if ev.NodeID == local {
		return
	}

	switch ev.Type {
	case discovery.BrowseAdded:
		if ev.Service == nil {
			return
		}
		svc := ev.Service
		if svc.Role == discovery.RoleUnknown {
			d.logger.Warn("node advertises unknown role",
				slog.String("node_id", svc.NodeID),
				slog.String("role", svc.RawRole))
		}
		d.checkVersion(svc)

		n := Node{
			NodeID:       svc.NodeID,
			Role:         roleFromDiscovery(svc.Role),
			Port:         svc.Port,
			Capabilities: DefaultCapabilities(),
			Version:      svc.Version,
		}
		if len(svc.Addresses) > 0 {
			n.Address = svc.Addresses[0]
		}
		if _, err := d.registry.Upsert(n); err != nil && !errors.Is(err, ErrUnavailable) {
			d.logger.Debug("discovered node rejected", slog.String("node_id", svc.NodeID), slog.Any("error", err))
		}

	case discovery.BrowseRemoved:
		if !d.registry.RemoveDiscovered(ev.NodeID) {
			d.logger.Debug("removal for unknown node", slog.String("node_id", ev.NodeID))
		}
	}
}

func (d *Discovery) checkVersion(svc *discovery.NodeService) {
	if svc.Version == "" {
		return
	}
	peer, err := version.Parse(svc.Version)
	if err != nil {
		d.logger.Warn("node advertises unparsable version",
			slog.String("node_id", svc.NodeID),
			slog.String("version", svc.Version))
		return
	}
	local, err := version.Parse(d.version)
	if err != nil {
		return
	}
	if !local.Compatible(peer) {
		d.logger.Warn("node major version differs",
			slog.String("node_id", svc.NodeID),
			slog.String("peer_version", peer.String()),
			slog.String("local_version", local.String()))
	}
}

func (d *Discovery) logState(cfg Config, from, to, reason string) {
	d.journal.Log(log.Event{
		Timestamp: d.registry.now(),
		NodeID:    cfg.NodeID,
		Category:  log.CategoryDiscovery,
		LocalRole: cfg.Role.journal(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityDiscovery,
			OldState: from,
			NewState: to,
			Reason:   reason,
		},
	})
}
