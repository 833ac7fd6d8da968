package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes journal events to an slog.Logger.
// Useful for development when you want to see lifecycle events in console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger at Debug level.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("node_id", event.NodeID),
		slog.String("category", event.Category.String()),
	}

	if event.LocalRole != RoleUnset {
		attrs = append(attrs, slog.String("role", event.LocalRole.String()))
	}
	if event.SubjectID != "" {
		attrs = append(attrs, slog.String("subject", event.SubjectID))
	}

	switch {
	case event.Node != nil:
		attrs = append(attrs,
			slog.String("action", event.Node.Action.String()),
			slog.Bool("online", event.Node.Online),
		)
		if event.Node.Role != RoleUnset {
			attrs = append(attrs, slog.String("peer_role", event.Node.Role.String()))
		}
		if event.Node.Address != "" {
			attrs = append(attrs, slog.String("address", event.Node.Address))
		}
		if event.Node.Version != "" {
			attrs = append(attrs, slog.String("version", event.Node.Version))
		}
	case event.Command != nil:
		attrs = append(attrs,
			slog.String("command_id", event.Command.CommandID),
			slog.String("command_type", event.Command.CommandType),
			slog.Int("payload_size", event.Command.PayloadSize),
			slog.Int("delivered", event.Command.Delivered),
		)
		if event.Command.Target != "" {
			attrs = append(attrs, slog.String("target", event.Command.Target))
		}
	case event.Ack != nil:
		attrs = append(attrs,
			slog.String("command_id", event.Ack.CommandID),
			slog.String("ack_node", event.Ack.NodeID),
			slog.String("status", event.Ack.Status),
		)
		if event.Ack.Error != "" {
			attrs = append(attrs, slog.String("ack_error", event.Ack.Error))
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "journal", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
