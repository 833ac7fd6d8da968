package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/rocontrol/rocontrol-go/pkg/command"
	"github.com/rocontrol/rocontrol-go/pkg/node"
	"github.com/rocontrol/rocontrol-go/pkg/version"
)

// DefaultRequestTimeout bounds register and unregister requests when the
// caller's context has no deadline.
const DefaultRequestTimeout = 2 * time.Second

// ReceiverConfig configures a Receiver.
type ReceiverConfig struct {
	// Prefix of every subject. Defaults to DefaultPrefix.
	Prefix string

	// RequestTimeout bounds requests without a context deadline.
	RequestTimeout time.Duration

	// Address is reported to the master on registration.
	Address string

	// Version is reported to the master. Defaults to version.Current.
	Version string

	// Logger is the optional operational logger. If nil, logging is disabled.
	Logger *slog.Logger
}

// Receiver is the receiver side of the transport. It implements
// node.HeartbeatSender.
type Receiver struct {
	conn     Conn
	registry *node.Registry
	subjects subjects
	timeout  time.Duration
	address  string
	version  string
	logger   *slog.Logger

	mu  sync.Mutex
	sub *nats.Subscription
}

var _ node.HeartbeatSender = (*Receiver)(nil)

// NewReceiver creates the receiver side of the transport. reg is the local
// registry; its config supplies the node id, capabilities and universes.
func NewReceiver(conn Conn, reg *node.Registry, cfg ReceiverConfig) *Receiver {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Version == "" {
		cfg.Version = version.Current
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Receiver{
		conn:     conn,
		registry: reg,
		subjects: newSubjects(cfg.Prefix),
		timeout:  cfg.RequestTimeout,
		address:  cfg.Address,
		version:  cfg.Version,
		logger:   logger,
	}
}

// Register announces this node to the master.
func (r *Receiver) Register(ctx context.Context) error {
	cfg := r.registry.Config()
	reg := node.Registration{
		NodeID:       cfg.NodeID,
		Capabilities: cfg.Capabilities,
		Universes:    cfg.Universes,
		Version:      r.version,
		Address:      r.address,
		Port:         cfg.ListenPort,
	}
	reply, err := r.request(ctx, SubjectRegister, reg)
	if err != nil {
		return err
	}
	r.logger.Info("registered with master", slog.String("node_id", cfg.NodeID), slog.String("reply", reply.Message))
	return nil
}

// Unregister removes this node from the master.
func (r *Receiver) Unregister(ctx context.Context) error {
	_, err := r.request(ctx, SubjectUnregister, UnregisterRequest{NodeID: r.registry.Config().NodeID})
	return err
}

func (r *Receiver) request(ctx context.Context, suffix string, body any) (Reply, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return Reply{}, fmt.Errorf("%w: %v", node.ErrSerialization, err)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	msg, err := r.conn.RequestWithContext(ctx, r.subjects.of(suffix), data)
	if err != nil {
		return Reply{}, fmt.Errorf("%w: %s: %w", node.ErrNetwork, suffix, err)
	}
	reply, err := decodeReply(msg.Data)
	if err != nil {
		return Reply{}, err
	}
	return reply, reply.Err()
}

// SendHeartbeat publishes a heartbeat. It implements node.HeartbeatSender.
func (r *Receiver) SendHeartbeat(_ context.Context, hb node.Heartbeat) error {
	data, err := json.Marshal(hb)
	if err != nil {
		return fmt.Errorf("%w: %v", node.ErrSerialization, err)
	}
	if err := r.conn.Publish(r.subjects.of(SubjectHeartbeat), data); err != nil {
		return fmt.Errorf("%w: heartbeat: %w", node.ErrNetwork, err)
	}
	return nil
}

// Ack reports the outcome of a command to the master.
func (r *Receiver) Ack(commandID string, status command.AckStatus, errMsg string) error {
	ack := command.Ack{
		CommandID: commandID,
		NodeID:    r.registry.Config().NodeID,
		Status:    status,
		Error:     errMsg,
	}
	if err := ack.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(ack)
	if err != nil {
		return fmt.Errorf("%w: %v", command.ErrSerialization, err)
	}
	if err := r.conn.Publish(r.subjects.of(SubjectAck), data); err != nil {
		return fmt.Errorf("%w: ack: %w", node.ErrNetwork, err)
	}
	return nil
}

// Start subscribes to commands. Commands addressed to this node are
// published as node.EventCommandReceived on the local registry.
func (r *Receiver) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sub != nil {
		return nil
	}

	sub, err := r.conn.Subscribe(r.subjects.of(SubjectCommand), r.handleCommand)
	if err != nil {
		return fmt.Errorf("%w: subscribe commands: %w", node.ErrNetwork, err)
	}
	r.sub = sub
	return nil
}

// Close unsubscribes from commands.
func (r *Receiver) Close() error {
	r.mu.Lock()
	sub := r.sub
	r.sub = nil
	r.mu.Unlock()

	if sub == nil {
		return nil
	}
	if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return err
	}
	return nil
}

func (r *Receiver) handleCommand(msg *nats.Msg) {
	cmd, err := command.DecodeCommand(msg.Data)
	if err != nil {
		r.logger.Debug("malformed command", slog.Any("error", err))
		return
	}
	if !cmd.AddressedTo(r.registry.Config().NodeID) {
		return
	}
	r.registry.NotifyCommand(cmd)
}
