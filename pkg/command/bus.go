package command

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rocontrol/rocontrol-go/pkg/broadcast"
	"github.com/rocontrol/rocontrol-go/pkg/log"
)

// DefaultBuffer is the per-subscriber command queue length.
const DefaultBuffer = broadcast.DefaultBuffer

// Config configures a Bus.
type Config struct {
	// NodeID identifies the publishing node in journal events.
	NodeID string

	// Buffer is the per-subscriber queue length.
	Buffer int

	// Logger is the optional operational logger. If nil, logging is disabled.
	Logger *slog.Logger

	// Journal receives command and ack events. If nil, the journal is disabled.
	Journal log.Logger
}

// Bus fans commands out to the transports subscribed at send time.
type Bus struct {
	subs    *broadcast.Broadcaster[Command]
	closed  atomic.Bool
	nodeID  string
	logger  *slog.Logger
	journal log.Logger

	sent  atomic.Uint64
	acked atomic.Uint64

	now   func() time.Time
	newID func() string
}

// NewBus creates a bus with no subscribers.
func NewBus(cfg Config) *Bus {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Bus{
		subs:    broadcast.New[Command](cfg.Buffer),
		nodeID:  cfg.NodeID,
		logger:  logger,
		journal: log.OrNoop(cfg.Journal),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// TriggerAction packages and publishes a command. An empty target
// broadcasts to every node. The payload is marshalled to JSON; a
// json.RawMessage is used as is after validation.
//
// Having no subscribers is not an error: the command is reported as sent.
func (b *Bus) TriggerAction(target, commandType string, payload any) (Command, error) {
	if b.closed.Load() {
		return Command{}, ErrClosed
	}
	if commandType == "" {
		return Command{}, fmt.Errorf("%w: empty command type", ErrInvalidCommand)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return Command{}, fmt.Errorf("%w: payload: %v", ErrSerialization, err)
	}

	cmd := Command{
		CommandID:   b.newID(),
		CommandType: commandType,
		TargetNode:  target,
		Payload:     raw,
		Timestamp:   b.now(),
	}
	b.Publish(cmd)
	return cmd, nil
}

// Publish delivers an already built command and returns the number of
// subscribers that received it.
func (b *Bus) Publish(cmd Command) int {
	delivered := b.subs.Publish(cmd)
	b.sent.Add(1)

	if delivered == 0 {
		b.logger.Debug("command published without receivers",
			slog.String("command_id", cmd.CommandID),
			slog.String("command_type", cmd.CommandType))
	} else {
		b.logger.Debug("command published",
			slog.String("command_id", cmd.CommandID),
			slog.String("command_type", cmd.CommandType),
			slog.String("target", cmd.TargetNode),
			slog.Int("delivered", delivered))
	}

	b.journal.Log(log.Event{
		Timestamp: b.now(),
		NodeID:    b.nodeID,
		Category:  log.CategoryCommand,
		SubjectID: cmd.CommandID,
		Command: &log.CommandEvent{
			CommandID:   cmd.CommandID,
			CommandType: cmd.CommandType,
			Target:      cmd.TargetNode,
			PayloadSize: len(cmd.Payload),
			Delivered:   delivered,
		},
	})
	return delivered
}

// Subscribe registers a transport. It receives commands published after
// this call only.
func (b *Bus) Subscribe() *broadcast.Subscription[Command] {
	return b.subs.Subscribe()
}

// Subscribers returns the number of subscribed transports.
func (b *Bus) Subscribers() int {
	return b.subs.Subscribers()
}

// HandleAck validates and records an acknowledgment.
func (b *Bus) HandleAck(ack Ack) error {
	if err := ack.Validate(); err != nil {
		return err
	}
	b.acked.Add(1)

	attrs := []any{
		slog.String("command_id", ack.CommandID),
		slog.String("node_id", ack.NodeID),
		slog.String("status", string(ack.Status)),
	}
	if ack.Status == AckFailed {
		b.logger.Warn("command failed on node", append(attrs, slog.String("error", ack.Error))...)
	} else {
		b.logger.Info("command acknowledged", attrs...)
	}

	b.journal.Log(log.Event{
		Timestamp: b.now(),
		NodeID:    b.nodeID,
		Category:  log.CategoryAck,
		SubjectID: ack.CommandID,
		Ack: &log.AckEvent{
			CommandID: ack.CommandID,
			NodeID:    ack.NodeID,
			Status:    string(ack.Status),
			Error:     ack.Error,
		},
	})
	return nil
}

// Stats returns the number of published commands and accepted acks.
func (b *Bus) Stats() (sent, acked uint64) {
	return b.sent.Load(), b.acked.Load()
}

// Dropped returns how many deliveries were lost to full subscribers.
func (b *Bus) Dropped() uint64 {
	return b.subs.Dropped()
}

// Close closes every subscription. Later TriggerAction calls fail with
// ErrClosed.
func (b *Bus) Close() {
	b.closed.Store(true)
	b.subs.Close()
}
