package log

import (
	"sync"
	"testing"
	"time"
)

// mockLogger records events for testing
type mockLogger struct {
	mu     sync.Mutex
	events []Event
}

func (m *mockLogger) Log(event Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

func (m *mockLogger) snapshot() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

func TestMultiLoggerCallsAll(t *testing.T) {
	mock1 := &mockLogger{}
	mock2 := &mockLogger{}
	mock3 := &mockLogger{}

	multi := NewMultiLogger(mock1, mock2, mock3)

	multi.Log(Event{
		Timestamp: time.Now(),
		NodeID:    "node-123",
		Category:  CategoryNode,
	})

	for i, mock := range []*mockLogger{mock1, mock2, mock3} {
		events := mock.snapshot()
		if len(events) != 1 {
			t.Errorf("logger %d: got %d events, want 1", i, len(events))
			continue
		}
		if events[0].NodeID != "node-123" {
			t.Errorf("logger %d: NodeID = %q, want %q", i, events[0].NodeID, "node-123")
		}
	}
}

func TestMultiLoggerEmptyList(t *testing.T) {
	multi := NewMultiLogger()
	multi.Log(Event{Timestamp: time.Now(), NodeID: "node-123"})
}

func TestMultiLoggerSkipsNil(t *testing.T) {
	mock := &mockLogger{}
	multi := NewMultiLogger(nil, mock, nil)

	multi.Log(Event{Timestamp: time.Now(), NodeID: "node-456", Category: CategoryAck})

	if got := len(mock.snapshot()); got != 1 {
		t.Fatalf("got %d events, want 1", got)
	}
}
