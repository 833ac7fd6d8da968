package commands

import (
	"fmt"
	"io"

	"github.com/rocontrol/rocontrol-go/pkg/log"
)

// RunView executes the view command.
func RunView(path string, filter log.Filter, output io.Writer) error {
	return each(path, filter, func(event log.Event) error {
		formatEvent(output, event)
		return nil
	})
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")

	fmt.Fprintf(w, "%s [%s] %s %s", ts, event.NodeID, event.Category.String(), typeLabel(event))
	if event.SubjectID != "" {
		fmt.Fprintf(w, " %s", event.SubjectID)
	}
	fmt.Fprintln(w)

	switch {
	case event.Node != nil:
		formatNodeDetails(w, event.Node)
	case event.Command != nil:
		formatCommandDetails(w, event.Command)
	case event.Ack != nil:
		formatAckDetails(w, event.Ack)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w)
}

// typeLabel names the payload carried by the event.
func typeLabel(event log.Event) string {
	switch {
	case event.Node != nil:
		return event.Node.Action.String()
	case event.Command != nil:
		return "Command"
	case event.Ack != nil:
		return "Ack"
	case event.StateChange != nil:
		return "State"
	case event.Error != nil:
		return "Error"
	default:
		return "Unknown"
	}
}

func formatNodeDetails(w io.Writer, n *log.NodeEvent) {
	if n.Role != log.RoleUnset {
		fmt.Fprintf(w, "  Role: %s\n", n.Role.String())
	}
	if n.Address != "" {
		fmt.Fprintf(w, "  Address: %s\n", n.Address)
	}
	if n.Version != "" {
		fmt.Fprintf(w, "  Version: %s\n", n.Version)
	}
	fmt.Fprintf(w, "  Online: %t\n", n.Online)
}

func formatCommandDetails(w io.Writer, c *log.CommandEvent) {
	fmt.Fprintf(w, "  CommandID: %s\n", c.CommandID)
	fmt.Fprintf(w, "  Type: %s\n", c.CommandType)
	if c.Target != "" {
		fmt.Fprintf(w, "  Target: %s\n", c.Target)
	} else {
		fmt.Fprintln(w, "  Target: (broadcast)")
	}
	fmt.Fprintf(w, "  Payload: %d bytes, delivered to %d\n", c.PayloadSize, c.Delivered)
}

func formatAckDetails(w io.Writer, a *log.AckEvent) {
	fmt.Fprintf(w, "  CommandID: %s\n", a.CommandID)
	fmt.Fprintf(w, "  Node: %s\n", a.NodeID)
	fmt.Fprintf(w, "  Status: %s\n", a.Status)
	if a.Error != "" {
		fmt.Fprintf(w, "  Error: %s\n", a.Error)
	}
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	fmt.Fprintf(w, "  Entity: %s\n", sc.Entity.String())
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatErrorDetails(w io.Writer, err *log.ErrorEventData) {
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
}
