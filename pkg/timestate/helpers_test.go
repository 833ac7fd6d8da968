package timestate

import (
	"sync"
	"time"

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

func newTestManager(cfg Config) (*Manager, *fakeClock) {
	m := NewManager(cfg)
	clock := newFakeClock()
	m.now = clock.Now
	return m, clock
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

func clip(id string, ms uint64) Registration {
	return Registration{ID: id, Name: id, SourceType: SourceVideoPlayback, DurationType: FiniteDuration(ms)}
}

func stream(id string) Registration {
	return Registration{ID: id, Name: id, SourceType: SourceNdiStream, DurationType: IndefiniteDuration()}
}
