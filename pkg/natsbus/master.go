package natsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/rocontrol/rocontrol-go/pkg/command"
	"github.com/rocontrol/rocontrol-go/pkg/node"
)

// MasterConfig configures a Master.
type MasterConfig struct {
	// Prefix of every subject. Defaults to DefaultPrefix.
	Prefix string

	// Logger is the optional operational logger. If nil, logging is disabled.
	Logger *slog.Logger
}

// Master serves registrations, heartbeats and acks from receivers and
// forwards bus commands to them.
type Master struct {
	conn     Conn
	registry *node.Registry
	bus      *command.Bus
	subjects subjects
	logger   *slog.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

// NewMaster creates the master side of the transport.
func NewMaster(conn Conn, reg *node.Registry, bus *command.Bus, cfg MasterConfig) *Master {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Master{
		conn:     conn,
		registry: reg,
		bus:      bus,
		subjects: newSubjects(cfg.Prefix),
		logger:   logger,
	}
}

// Start subscribes to the inbound subjects.
func (m *Master) Start() error {
	handlers := []struct {
		suffix string
		cb     nats.MsgHandler
	}{
		{SubjectRegister, m.handleRegister},
		{SubjectUnregister, m.handleUnregister},
		{SubjectHeartbeat, m.handleHeartbeat},
		{SubjectAck, m.handleAck},
	}

	subs := make([]*nats.Subscription, 0, len(handlers))
	for _, h := range handlers {
		sub, err := m.conn.Subscribe(m.subjects.of(h.suffix), h.cb)
		if err != nil {
			unsubscribeAll(subs)
			return fmt.Errorf("%w: subscribe %s: %w", node.ErrNetwork, m.subjects.of(h.suffix), err)
		}
		subs = append(subs, sub)
	}

	m.mu.Lock()
	m.subs = append(m.subs, subs...)
	m.mu.Unlock()
	return nil
}

// Run forwards every command published on the bus to the receivers until
// ctx is done or the bus is closed. Publish failures are logged and the
// command is dropped.
func (m *Master) Run(ctx context.Context) error {
	sub := m.bus.Subscribe()
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd, ok := <-sub.C:
			if !ok {
				return nil
			}
			m.forward(cmd)
		}
	}
}

func (m *Master) forward(cmd command.Command) {
	data, err := cmd.Encode()
	if err != nil {
		m.logger.Warn("command not encodable", slog.String("command_id", cmd.CommandID), slog.Any("error", err))
		return
	}
	if err := m.conn.Publish(m.subjects.of(SubjectCommand), data); err != nil {
		m.logger.Debug("command not forwarded", slog.String("command_id", cmd.CommandID), slog.Any("error", err))
	}
}

// Close unsubscribes from the inbound subjects.
func (m *Master) Close() error {
	m.mu.Lock()
	subs := m.subs
	m.subs = nil
	m.mu.Unlock()

	unsubscribeAll(subs)
	return nil
}

func (m *Master) handleRegister(msg *nats.Msg) {
	var reg node.Registration
	if err := json.Unmarshal(msg.Data, &reg); err != nil {
		m.reply(msg, errorReply(fmt.Errorf("%w: registration: %v", node.ErrSerialization, err)))
		return
	}

	n, err := m.registry.Register(reg)
	if err != nil {
		m.logger.Info("registration rejected", slog.String("node_id", reg.NodeID), slog.Any("error", err))
		m.reply(msg, errorReply(err))
		return
	}
	m.reply(msg, okReply(fmt.Sprintf("node %s registered", n.NodeID)))
}

func (m *Master) handleUnregister(msg *nats.Msg) {
	var req UnregisterRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		m.reply(msg, errorReply(fmt.Errorf("%w: unregister: %v", node.ErrSerialization, err)))
		return
	}
	if err := m.registry.Unregister(req.NodeID); err != nil {
		m.reply(msg, errorReply(err))
		return
	}
	m.reply(msg, okReply(fmt.Sprintf("node %s unregistered", req.NodeID)))
}

func (m *Master) handleHeartbeat(msg *nats.Msg) {
	var hb node.Heartbeat
	if err := json.Unmarshal(msg.Data, &hb); err != nil {
		m.logger.Debug("malformed heartbeat", slog.Any("error", err))
		return
	}
	if _, err := m.registry.UpdateHeartbeat(hb); err != nil {
		m.logger.Debug("heartbeat rejected", slog.String("node_id", hb.NodeID), slog.Any("error", err))
	}
}

func (m *Master) handleAck(msg *nats.Msg) {
	ack, err := command.DecodeAck(msg.Data)
	if err != nil {
		m.logger.Debug("malformed ack", slog.Any("error", err))
		return
	}
	if err := m.bus.HandleAck(ack); err != nil {
		m.logger.Debug("ack rejected", slog.Any("error", err))
	}
}

func (m *Master) reply(msg *nats.Msg, r Reply) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(r)
	if err != nil {
		return
	}
	if err := m.conn.Publish(msg.Reply, data); err != nil {
		m.logger.Debug("reply not sent", slog.String("subject", msg.Reply), slog.Any("error", err))
	}
}
