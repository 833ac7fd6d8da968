package commands

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rocontrol/rocontrol-go/pkg/log"
)

var baseTime = time.Date(2026, 4, 18, 20, 0, 0, 0, time.UTC)

func createTestJournal(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.rlog")

	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()

	return path
}

func sampleEvents() []log.Event {
	return []log.Event{
		{
			Timestamp: baseTime,
			NodeID:    "master-1",
			Category:  log.CategoryNode,
			LocalRole: log.RoleMaster,
			SubjectID: "recv-1",
			Node:      &log.NodeEvent{Action: log.NodeActionConnected, Role: log.RoleReceiver, Address: "10.0.0.5:7400", Online: true},
		},
		{
			Timestamp: baseTime.Add(time.Second),
			NodeID:    "master-1",
			Category:  log.CategoryNode,
			LocalRole: log.RoleMaster,
			SubjectID: "recv-1",
			Node:      &log.NodeEvent{Action: log.NodeActionHeartbeat, Online: true},
		},
		{
			Timestamp: baseTime.Add(2 * time.Second),
			NodeID:    "master-1",
			Category:  log.CategoryCommand,
			SubjectID: "cmd-1",
			Command:   &log.CommandEvent{CommandID: "cmd-1", CommandType: "blackout", PayloadSize: 2, Delivered: 1},
		},
		{
			Timestamp: baseTime.Add(3 * time.Second),
			NodeID:    "master-1",
			Category:  log.CategoryAck,
			SubjectID: "cmd-1",
			Ack:       &log.AckEvent{CommandID: "cmd-1", NodeID: "recv-1", Status: "failed", Error: "no output"},
		},
		{
			Timestamp:   baseTime.Add(4 * time.Second),
			NodeID:      "master-1",
			Category:    log.CategoryTimeState,
			SubjectID:   "video-1",
			StateChange: &log.StateChangeEvent{Entity: log.StateEntityTimeState, OldState: "stopped", NewState: "playing", Reason: "start"},
		},
		{
			Timestamp: baseTime.Add(10 * time.Second),
			NodeID:    "master-1",
			Category:  log.CategoryNode,
			SubjectID: "recv-1",
			Node:      &log.NodeEvent{Action: log.NodeActionDisconnected, Online: false},
		},
		{
			Timestamp: baseTime.Add(11 * time.Second),
			NodeID:    "recv-1",
			Category:  log.CategoryError,
			Error:     &log.ErrorEventData{Message: "nats: timeout", Context: "register"},
		},
	}
}
