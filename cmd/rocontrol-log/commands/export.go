package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rocontrol/rocontrol-go/pkg/log"
)

// RunExport exports the journal to the specified format.
func RunExport(path string, filter log.Filter, format, output string) error {
	if format != "jsonl" && format != "csv" {
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if format == "csv" {
		return exportCSV(path, filter, w)
	}
	return exportJSONL(path, filter, w)
}

func exportJSONL(path string, filter log.Filter, w io.Writer) error {
	encoder := json.NewEncoder(w)
	return each(path, filter, func(event log.Event) error {
		if err := encoder.Encode(event); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
		return nil
	})
}

func exportCSV(path string, filter log.Filter, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"timestamp", "node_id", "local_role", "category", "type", "subject_id", "detail"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	return each(path, filter, func(event log.Event) error {
		row := []string{
			event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
			event.NodeID,
			event.LocalRole.String(),
			event.Category.String(),
			typeLabel(event),
			event.SubjectID,
			detail(event),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
		return nil
	})
}

// detail is a one-line summary of the event payload.
func detail(event log.Event) string {
	switch {
	case event.Node != nil:
		return fmt.Sprintf("online=%t", event.Node.Online)
	case event.Command != nil:
		return fmt.Sprintf("%s target=%s delivered=%d", event.Command.CommandType, event.Command.Target, event.Command.Delivered)
	case event.Ack != nil:
		return fmt.Sprintf("%s from %s", event.Ack.Status, event.Ack.NodeID)
	case event.StateChange != nil:
		return fmt.Sprintf("%s->%s", event.StateChange.OldState, event.StateChange.NewState)
	case event.Error != nil:
		return event.Error.Message
	default:
		return ""
	}
}
