package node

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rocontrol/rocontrol-go/pkg/broadcast"
	"github.com/rocontrol/rocontrol-go/pkg/log"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 4, 18, 20, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func masterConfig() Config {
	cfg := DefaultConfig()
	cfg.NodeID = "master-1"
	return cfg
}

func receiverConfig() Config {
	cfg := DefaultConfig()
	cfg.Role = RoleReceiver
	cfg.NodeID = "recv-local"
	return cfg
}

func newTestRegistry(t *testing.T, cfg Config) (*Registry, *fakeClock) {
	t.Helper()
	r, err := NewRegistry(cfg)
	require.NoError(t, err)
	clock := newFakeClock()
	r.now = clock.Now
	t.Cleanup(r.Close)
	return r, clock
}

func registration(id string) Registration {
	return Registration{
		NodeID:       id,
		Capabilities: Capabilities{DMXOutput: true, MediaPlayback: true},
		Universes:    []uint16{1, 2},
		Version:      "0.1.0",
	}
}

// drain returns the events currently buffered in sub.
func drain(sub *broadcast.Subscription[Event]) []Event {
	var out []Event
	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

// waitEvent receives events until one of type want arrives.
func waitEvent(t *testing.T, sub *broadcast.Subscription[Event], want EventType) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-sub.C:
			require.True(t, ok, "subscription closed while waiting for %s", want)
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func countType(events []Event, typ EventType) int {
	n := 0
	for _, ev := range events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

type recordingJournal struct {
	mu     sync.Mutex
	events []log.Event
}

func (r *recordingJournal) Log(e log.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recordingJournal) snapshot() []log.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]log.Event(nil), r.events...)
}
