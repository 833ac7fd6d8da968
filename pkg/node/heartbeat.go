package node

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"time"
)

// HeartbeatSender delivers heartbeats to the master.
type HeartbeatSender interface {
	SendHeartbeat(ctx context.Context, hb Heartbeat) error
}

// MetricsFunc samples the local runtime metrics.
type MetricsFunc func() Metrics

// HeartbeatConfig configures a HeartbeatEmitter.
type HeartbeatConfig struct {
	// NodeID is the local node.
	NodeID string

	// Interval between heartbeats. Defaults to DefaultHeartbeatInterval.
	Interval time.Duration

	// Metrics samples the figures sent with each heartbeat. If nil, zero
	// metrics are sent.
	Metrics MetricsFunc

	// Logger is the optional operational logger. If nil, logging is disabled.
	Logger *slog.Logger
}

// HeartbeatEmitter sends heartbeats from a single goroutine, so sends
// never overlap or reorder. Ticks that fall due while a send is still in
// flight are skipped.
type HeartbeatEmitter struct {
	sender   HeartbeatSender
	nodeID   string
	interval time.Duration
	metrics  MetricsFunc
	logger   *slog.Logger

	sent   atomic.Uint64
	failed atomic.Uint64

	now func() time.Time
}

// NewHeartbeatEmitter creates an emitter. Call Run to start sending.
func NewHeartbeatEmitter(sender HeartbeatSender, cfg HeartbeatConfig) *HeartbeatEmitter {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultHeartbeatInterval
	}
	if cfg.Metrics == nil {
		cfg.Metrics = func() Metrics { return Metrics{} }
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &HeartbeatEmitter{
		sender:   sender,
		nodeID:   cfg.NodeID,
		interval: cfg.Interval,
		metrics:  cfg.Metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Run sends one heartbeat immediately and then one per interval until ctx
// is done. Send errors are logged and swallowed.
func (e *HeartbeatEmitter) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.beat(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.beat(ctx)
		}
	}
}

func (e *HeartbeatEmitter) beat(ctx context.Context) {
	hb := Heartbeat{
		NodeID:    e.nodeID,
		Timestamp: e.now(),
		Metrics:   e.metrics(),
	}
	if err := e.sender.SendHeartbeat(ctx, hb); err != nil {
		e.failed.Add(1)
		e.logger.Debug("heartbeat not delivered", slog.String("node_id", e.nodeID), slog.Any("error", err))
		return
	}
	e.sent.Add(1)
}

// Stats returns the number of delivered and failed heartbeats.
func (e *HeartbeatEmitter) Stats() (sent, failed uint64) {
	return e.sent.Load(), e.failed.Load()
}

// RegistrySender delivers heartbeats straight into a local registry.
type RegistrySender struct {
	Registry *Registry
}

// SendHeartbeat implements HeartbeatSender.
func (s RegistrySender) SendHeartbeat(_ context.Context, hb Heartbeat) error {
	_, err := s.Registry.UpdateHeartbeat(hb)
	return err
}
