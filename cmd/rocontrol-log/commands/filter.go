// Package commands implements the rocontrol-log CLI commands.
package commands

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rocontrol/rocontrol-go/pkg/log"
)

// FilterOptions holds the raw filter flag values shared by all commands.
type FilterOptions struct {
	Category  string
	NodeID    string
	SubjectID string
	TimeStart string
	TimeEnd   string
}

// Build validates the options and converts them to a journal filter.
func (o FilterOptions) Build() (log.Filter, error) {
	f := log.Filter{
		NodeID:    o.NodeID,
		SubjectID: o.SubjectID,
	}

	if o.Category != "" {
		c, ok := log.ParseCategory(o.Category)
		if !ok {
			return log.Filter{}, fmt.Errorf("invalid category: %s (must be node, command, ack, timestate, timeline, discovery, or error)", o.Category)
		}
		f.Category = &c
	}

	if o.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, o.TimeStart)
		if err != nil {
			return log.Filter{}, fmt.Errorf("invalid time-start: %w", err)
		}
		f.TimeStart = &t
	}

	if o.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, o.TimeEnd)
		if err != nil {
			return log.Filter{}, fmt.Errorf("invalid time-end: %w", err)
		}
		f.TimeEnd = &t
	}

	if f.TimeStart != nil && f.TimeEnd != nil && !f.TimeStart.Before(*f.TimeEnd) {
		return log.Filter{}, errors.New("time-start must be before time-end")
	}

	return f, nil
}

// each calls fn for every event in the journal at path that matches filter.
func each(path string, filter log.Filter, fn func(log.Event) error) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := fn(event); err != nil {
			return err
		}
	}
}
