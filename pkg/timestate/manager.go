package timestate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rocontrol/rocontrol-go/pkg/broadcast"
	"github.com/rocontrol/rocontrol-go/pkg/log"
	"github.com/rocontrol/rocontrol-go/pkg/timecode"
)

// Default manager settings.
const (
	DefaultTickInterval   = 100 * time.Millisecond
	DefaultSnapshotBuffer = 16
)

// Config configures a Manager.
type Config struct {
	// MasterFramerate is applied to timecodes of started states.
	MasterFramerate timecode.Framerate

	// TickInterval is the Run update period.
	TickInterval time.Duration

	// SnapshotBuffer is the per-subscriber snapshot queue length.
	SnapshotBuffer int

	// NodeID identifies this node in journal events.
	NodeID string

	// Logger is the optional operational logger. If nil, logging is disabled.
	Logger *slog.Logger

	// Journal receives lifecycle events. If nil, the journal is disabled.
	Journal log.Logger
}

// DefaultConfig returns the default manager configuration.
func DefaultConfig() Config {
	return Config{
		MasterFramerate: timecode.DefaultFramerate,
		TickInterval:    DefaultTickInterval,
		SnapshotBuffer:  DefaultSnapshotBuffer,
	}
}

// Manager owns the set of time states. All access goes through its methods;
// returned states are copies.
type Manager struct {
	mu        sync.Mutex
	states    map[string]*TimeState
	framerate timecode.Framerate
	closed    bool

	tick      time.Duration
	nodeID    string
	logger    *slog.Logger
	journal   log.Logger
	snapshots *broadcast.Broadcaster[[]TimeState]

	now func() time.Time
}

// NewManager creates an empty manager.
func NewManager(cfg Config) *Manager {
	if !cfg.MasterFramerate.Valid() {
		cfg.MasterFramerate = timecode.DefaultFramerate
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.SnapshotBuffer <= 0 {
		cfg.SnapshotBuffer = DefaultSnapshotBuffer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Manager{
		states:    make(map[string]*TimeState),
		framerate: cfg.MasterFramerate,
		tick:      cfg.TickInterval,
		nodeID:    cfg.NodeID,
		logger:    logger,
		journal:   log.OrNoop(cfg.Journal),
		snapshots: broadcast.New[[]TimeState](cfg.SnapshotBuffer),
		now:       time.Now,
	}
}

// MasterFramerate returns the framerate applied on Start.
func (m *Manager) MasterFramerate() timecode.Framerate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.framerate
}

// SetMasterFramerate changes the framerate used by later Start calls.
func (m *Manager) SetMasterFramerate(fr timecode.Framerate) error {
	if !fr.Valid() {
		return fmt.Errorf("%w: %d", timecode.ErrInvalidFramerate, uint8(fr))
	}
	m.mu.Lock()
	m.framerate = fr
	m.mu.Unlock()
	return nil
}

// Register creates a stopped state. Registering an existing id fails with
// ErrStateExists.
func (m *Manager) Register(reg Registration) (TimeState, error) {
	if err := reg.Validate(); err != nil {
		return TimeState{}, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return TimeState{}, ErrUnavailable
	}
	if _, ok := m.states[reg.ID]; ok {
		m.mu.Unlock()
		return TimeState{}, fmt.Errorf("%w: %s", ErrStateExists, reg.ID)
	}
	s := newWithClock(reg, m.now)
	m.states[reg.ID] = s
	snap := s.Clone()
	m.mu.Unlock()

	m.logger.Info("time state registered",
		slog.String("state_id", reg.ID),
		slog.String("source_type", reg.SourceType.String()),
		slog.String("duration", reg.DurationType.String()))
	m.logTransition(reg.ID, "", Stopped, "registered")
	return snap, nil
}

// Restore inserts a previously saved state, replacing any state with the
// same id. A state that was Playing when saved is restored Paused at its
// saved position.
func (m *Manager) Restore(state TimeState) error {
	reg := Registration{ID: state.ID, Name: state.Name, SourceType: state.SourceType, DurationType: state.DurationType}
	if err := reg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrUnavailable
	}

	s := state.Clone()
	s.now = m.now
	if s.RunState == Playing {
		s.RunState = Paused
	}
	s.StartTime = nil
	m.states[s.ID] = &s
	return nil
}

// Start starts or resumes the state with the master framerate.
func (m *Manager) Start(id string) (TimeState, error) {
	fr := m.MasterFramerate()
	return m.transition(id, "start", func(s *TimeState) error { return s.Start(&fr) })
}

// Pause pauses a playing state.
func (m *Manager) Pause(id string) (TimeState, error) {
	return m.transition(id, "pause", (*TimeState).Pause)
}

// Stop stops the state and resets its position.
func (m *Manager) Stop(id string) (TimeState, error) {
	return m.transition(id, "stop", func(s *TimeState) error {
		s.Stop()
		return nil
	})
}

// Cue moves a stopped state into pre-roll.
func (m *Manager) Cue(id string) (TimeState, error) {
	return m.transition(id, "cue", (*TimeState).Cue)
}

// Fail puts the state into Error with the given reason.
func (m *Manager) Fail(id, reason string) (TimeState, error) {
	return m.transition(id, reason, func(s *TimeState) error {
		s.Fail(reason)
		return nil
	})
}

func (m *Manager) transition(id, reason string, fn func(*TimeState) error) (TimeState, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return TimeState{}, ErrUnavailable
	}
	s, ok := m.states[id]
	if !ok {
		m.mu.Unlock()
		return TimeState{}, fmt.Errorf("%w: %s", ErrStateNotFound, id)
	}
	old := s.RunState
	err := fn(s)
	snap := s.Clone()
	m.mu.Unlock()

	if err != nil {
		m.logger.Debug("time state transition rejected",
			slog.String("state_id", id),
			slog.String("run_state", old.String()),
			slog.Any("error", err))
		return snap, err
	}
	if old != snap.RunState {
		m.logTransition(id, old.String(), snap.RunState, reason)
	}
	return snap, nil
}

// UpdateAll advances every playing state.
func (m *Manager) UpdateAll() {
	var completed []string

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	for id, s := range m.states {
		if s.Update() {
			completed = append(completed, id)
		}
	}
	m.mu.Unlock()

	sort.Strings(completed)
	for _, id := range completed {
		m.logger.Info("time state completed", slog.String("state_id", id))
		m.logTransition(id, Playing.String(), Stopped, "end of media")
	}
}

// Get returns a copy of one state.
func (m *Manager) Get(id string) (TimeState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return TimeState{}, ErrUnavailable
	}
	s, ok := m.states[id]
	if !ok {
		return TimeState{}, fmt.Errorf("%w: %s", ErrStateNotFound, id)
	}
	return s.Clone(), nil
}

// All returns copies of every state sorted by id.
func (m *Manager) All() []TimeState {
	return m.filter(func(*TimeState) bool { return true })
}

// Playing returns copies of the playing states sorted by id.
func (m *Manager) Playing() []TimeState {
	return m.filter(func(s *TimeState) bool { return s.RunState == Playing })
}

// ByType returns copies of the states of one source type sorted by id.
func (m *Manager) ByType(st SourceType) []TimeState {
	return m.filter(func(s *TimeState) bool { return s.SourceType == st })
}

func (m *Manager) filter(keep func(*TimeState) bool) []TimeState {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]TimeState, 0, len(m.states))
	for _, s := range m.states {
		if keep(s) {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of registered states.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.states)
}

// Remove deletes a state.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrUnavailable
	}
	s, ok := m.states[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrStateNotFound, id)
	}
	old := s.RunState
	delete(m.states, id)
	m.mu.Unlock()

	m.logger.Info("time state removed", slog.String("state_id", id))
	m.journal.Log(log.Event{
		Timestamp: m.now(),
		NodeID:    m.nodeID,
		Category:  log.CategoryTimeState,
		SubjectID: id,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityTimeState,
			OldState: old.String(),
			NewState: "removed",
		},
	})
	return nil
}

// SetMetadata sets one metadata entry.
func (m *Manager) SetMetadata(id, key, value string) error {
	return m.mutate(id, func(s *TimeState) {
		s.Metadata[key] = value
	})
}

// ReportFrame counts a delivered or dropped frame.
func (m *Manager) ReportFrame(id string, dropped bool) error {
	return m.mutate(id, func(s *TimeState) {
		s.ReportFrame(dropped)
	})
}

// SetLatency records the measured output latency.
func (m *Manager) SetLatency(id string, latencyMS float64) error {
	return m.mutate(id, func(s *TimeState) {
		s.LatencyMS = latencyMS
	})
}

func (m *Manager) mutate(id string, fn func(*TimeState)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrUnavailable
	}
	s, ok := m.states[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrStateNotFound, id)
	}
	if s.Metadata == nil {
		s.Metadata = make(map[string]string)
	}
	fn(s)
	return nil
}

// Snapshots subscribes to the full state list published on every Run tick.
// Slow subscribers lose snapshots.
func (m *Manager) Snapshots() *broadcast.Subscription[[]TimeState] {
	return m.snapshots.Subscribe()
}

// Run updates all states and publishes a snapshot every tick until ctx is
// done or the manager is closed.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if m.isClosed() {
				return nil
			}
			m.UpdateAll()
			m.snapshots.Publish(m.All())
		}
	}
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Close rejects further operations and closes snapshot subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.snapshots.Close()
}

func (m *Manager) logTransition(id, old string, to RunState, reason string) {
	m.logger.Debug("time state transition",
		slog.String("state_id", id),
		slog.String("from", old),
		slog.String("to", to.String()))
	m.journal.Log(log.Event{
		Timestamp: m.now(),
		NodeID:    m.nodeID,
		Category:  log.CategoryTimeState,
		SubjectID: id,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityTimeState,
			OldState: old,
			NewState: to.String(),
			Reason:   reason,
		},
	})
}
