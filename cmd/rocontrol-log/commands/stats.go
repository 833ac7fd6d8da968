package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/rocontrol/rocontrol-go/pkg/log"
)

// Stats holds aggregate statistics about a journal.
type Stats struct {
	TotalEvents      int
	EventsByCategory map[log.Category]int
	NodeActions      map[log.NodeAction]int
	Subjects         map[string]*SubjectStats
	Commands         int
	AcksByStatus     map[string]int
	Errors           int
	TimeRange        struct {
		Start time.Time
		End   time.Time
	}
}

// SubjectStats holds statistics for a single node subject.
type SubjectStats struct {
	FirstSeen  time.Time
	LastSeen   time.Time
	Events     int
	Heartbeats int
	Online     bool
}

// RunStats analyzes the journal and prints statistics.
func RunStats(path string, filter log.Filter, w io.Writer) error {
	stats := &Stats{
		EventsByCategory: make(map[log.Category]int),
		NodeActions:      make(map[log.NodeAction]int),
		Subjects:         make(map[string]*SubjectStats),
		AcksByStatus:     make(map[string]int),
	}

	err := each(path, filter, func(event log.Event) error {
		stats.add(event)
		return nil
	})
	if err != nil {
		return err
	}

	printStats(w, stats)
	return nil
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByCategory[event.Category]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	switch {
	case event.Node != nil:
		s.NodeActions[event.Node.Action]++
		sub, ok := s.Subjects[event.SubjectID]
		if !ok {
			sub = &SubjectStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
			s.Subjects[event.SubjectID] = sub
		}
		sub.Events++
		if event.Node.Action == log.NodeActionHeartbeat {
			sub.Heartbeats++
		}
		if !event.Timestamp.Before(sub.LastSeen) {
			sub.LastSeen = event.Timestamp
			sub.Online = event.Node.Online
		}
	case event.Command != nil:
		s.Commands++
	case event.Ack != nil:
		s.AcksByStatus[event.Ack.Status]++
	case event.Error != nil:
		s.Errors++
	}
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== rocontrol Journal Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for c := log.CategoryNode; c <= log.CategoryError; c++ {
		if count := stats.EventsByCategory[c]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", c.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	if len(stats.NodeActions) > 0 {
		fmt.Fprintln(w, "Node Actions:")
		for a := log.NodeActionDiscovered; a <= log.NodeActionHeartbeat; a++ {
			if count := stats.NodeActions[a]; count > 0 {
				fmt.Fprintf(w, "  %-14s %d\n", a.String()+":", count)
			}
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Nodes: %d\n", len(stats.Subjects))
	if len(stats.Subjects) > 0 {
		ids := make([]string, 0, len(stats.Subjects))
		for id := range stats.Subjects {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			return stats.Subjects[ids[i]].FirstSeen.Before(stats.Subjects[ids[j]].FirstSeen)
		})
		for _, id := range ids {
			sub := stats.Subjects[id]
			state := "offline"
			if sub.Online {
				state = "online"
			}
			fmt.Fprintf(w, "  [%s] %d events, %d heartbeats, last seen %s (%s)\n",
				id, sub.Events, sub.Heartbeats, sub.LastSeen.Format(time.RFC3339), state)
		}
	}

	if stats.Commands > 0 || len(stats.AcksByStatus) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Commands: %d\n", stats.Commands)
		for _, status := range []string{"executed", "failed", "pending"} {
			if count := stats.AcksByStatus[status]; count > 0 {
				fmt.Fprintf(w, "  Acks %-9s %d\n", status+":", count)
			}
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
