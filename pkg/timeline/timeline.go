// Package timeline groups time states into named, ordered timelines.
//
// A timeline holds state ids only. It never owns, drives or mutates the
// states it names; ids that no longer resolve are reported at read time.
package timeline

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rocontrol/rocontrol-go/pkg/log"
	"github.com/rocontrol/rocontrol-go/pkg/timecode"
	"github.com/rocontrol/rocontrol-go/pkg/timestate"
)

// Errors returned by the registry.
var (
	ErrTimelineNotFound = errors.New("timeline not found")
	ErrInvalidName      = errors.New("invalid timeline name")
)

// Timeline is a passive grouping of time state ids.
type Timeline struct {
	ID             string            `json:"id" yaml:"id"`
	Name           string            `json:"name" yaml:"name"`
	MasterTimecode timecode.Timecode `json:"master_timecode" yaml:"master_timecode"`
	TimeStates     []string          `json:"time_states" yaml:"time_states"`
	SyncEnabled    bool              `json:"sync_enabled" yaml:"sync_enabled"`
	CreatedAt      time.Time         `json:"created_at" yaml:"created_at"`
}

func (t *Timeline) clone() Timeline {
	c := *t
	c.TimeStates = append([]string(nil), t.TimeStates...)
	return c
}

// StateReader looks up time states by id. *timestate.Manager satisfies it.
type StateReader interface {
	Get(id string) (timestate.TimeState, error)
}

// Resolved is a timeline with its member states looked up.
type Resolved struct {
	Timeline Timeline
	// States are the members that exist, in timeline order.
	States []timestate.TimeState
	// Missing are member ids that no longer resolve.
	Missing []string
}

// FramerateSource reports the current master framerate.
// *timestate.Manager satisfies it.
type FramerateSource interface {
	MasterFramerate() timecode.Framerate
}

// Config configures a Registry.
type Config struct {
	// Framerate of newly created master timecodes when FramerateSource is
	// nil.
	Framerate timecode.Framerate

	// FramerateSource, if set, is read on every Create so that master
	// timecodes follow runtime framerate changes.
	FramerateSource FramerateSource

	// NodeID identifies this node in journal events.
	NodeID string

	// Logger is the optional operational logger. If nil, logging is disabled.
	Logger *slog.Logger

	// Journal receives lifecycle events. If nil, the journal is disabled.
	Journal log.Logger
}

// Registry owns the timelines of one node.
type Registry struct {
	mu        sync.Mutex
	timelines map[string]*Timeline
	framerate timecode.Framerate
	source    FramerateSource

	nodeID  string
	logger  *slog.Logger
	journal log.Logger

	now   func() time.Time
	newID func() string
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config) *Registry {
	if !cfg.Framerate.Valid() {
		cfg.Framerate = timecode.DefaultFramerate
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Registry{
		timelines: make(map[string]*Timeline),
		framerate: cfg.Framerate,
		source:    cfg.FramerateSource,
		nodeID:    cfg.NodeID,
		logger:    logger,
		journal:   log.OrNoop(cfg.Journal),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

func (r *Registry) masterFramerate() timecode.Framerate {
	if r.source != nil {
		if fr := r.source.MasterFramerate(); fr.Valid() {
			return fr
		}
	}
	return r.framerate
}

// Create stores a new timeline over the given state ids and returns its id.
// The ids are not checked against any state registry.
func (r *Registry) Create(name string, stateIDs []string) (string, error) {
	if name == "" {
		return "", ErrInvalidName
	}

	tl := &Timeline{
		ID:             r.newID(),
		Name:           name,
		MasterTimecode: timecode.Zero(r.masterFramerate()),
		TimeStates:     append([]string(nil), stateIDs...),
		SyncEnabled:    true,
		CreatedAt:      r.now(),
	}

	r.mu.Lock()
	r.timelines[tl.ID] = tl
	r.mu.Unlock()

	r.logger.Info("timeline created",
		slog.String("timeline_id", tl.ID),
		slog.String("name", name),
		slog.Int("states", len(stateIDs)))
	r.journalChange(tl.ID, "", "created", name)
	return tl.ID, nil
}

// Restore inserts a saved timeline, replacing any with the same id.
func (r *Registry) Restore(tl Timeline) error {
	if tl.ID == "" || tl.Name == "" {
		return fmt.Errorf("%w: restore needs id and name", ErrInvalidName)
	}
	c := tl.clone()
	r.mu.Lock()
	r.timelines[c.ID] = &c
	r.mu.Unlock()
	return nil
}

// Get returns a copy of one timeline.
func (r *Registry) Get(id string) (Timeline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tl, ok := r.timelines[id]
	if !ok {
		return Timeline{}, fmt.Errorf("%w: %s", ErrTimelineNotFound, id)
	}
	return tl.clone(), nil
}

// All returns copies of every timeline ordered by creation time, then id.
func (r *Registry) All() []Timeline {
	r.mu.Lock()
	out := make([]Timeline, 0, len(r.timelines))
	for _, tl := range r.timelines {
		out = append(out, tl.clone())
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Remove deletes a timeline. Its member states are untouched.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	_, ok := r.timelines[id]
	delete(r.timelines, id)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrTimelineNotFound, id)
	}
	r.logger.Info("timeline removed", slog.String("timeline_id", id))
	r.journalChange(id, "created", "removed", "")
	return nil
}

// SetSync enables or disables the sync flag.
func (r *Registry) SetSync(id string, enabled bool) error {
	r.mu.Lock()
	tl, ok := r.timelines[id]
	if ok {
		tl.SyncEnabled = enabled
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrTimelineNotFound, id)
	}
	state := "sync_off"
	if enabled {
		state = "sync_on"
	}
	r.journalChange(id, "", state, "")
	return nil
}

// Resolve looks up the member states of a timeline through states. It reads
// the timeline under the registry lock and queries states after releasing
// it, so no two registry locks are ever held together.
func (r *Registry) Resolve(id string, states StateReader) (Resolved, error) {
	tl, err := r.Get(id)
	if err != nil {
		return Resolved{}, err
	}

	res := Resolved{Timeline: tl}
	for _, sid := range tl.TimeStates {
		s, err := states.Get(sid)
		if err != nil {
			res.Missing = append(res.Missing, sid)
			continue
		}
		res.States = append(res.States, s)
	}
	return res, nil
}

func (r *Registry) journalChange(id, old, state, reason string) {
	r.journal.Log(log.Event{
		Timestamp: r.now(),
		NodeID:    r.nodeID,
		Category:  log.CategoryTimeline,
		SubjectID: id,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityTimeline,
			OldState: old,
			NewState: state,
			Reason:   reason,
		},
	})
}
