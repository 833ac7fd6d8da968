package persistence

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rocontrol/rocontrol-go/pkg/node"
	"github.com/rocontrol/rocontrol-go/pkg/timecode"
	"github.com/rocontrol/rocontrol-go/pkg/timeline"
	"github.com/rocontrol/rocontrol-go/pkg/timestate"
)

// SessionVersion is the current version of the session file format.
const SessionVersion = 1

// ErrUnsupportedVersion is returned by Load for files written by a newer
// format.
var ErrUnsupportedVersion = errors.New("unsupported session version")

// Session is the persisted state of one node.
type Session struct {
	// Version is the session file format version.
	Version int `yaml:"version"`

	// SavedAt is when the session was last saved.
	SavedAt time.Time `yaml:"saved_at"`

	// Config is the node configuration in effect when saved.
	Config *node.Config `yaml:"config,omitempty"`

	// Framerate is the master framerate.
	Framerate timecode.Framerate `yaml:"framerate,omitempty"`

	// States are the registered time states.
	States []timestate.TimeState `yaml:"states,omitempty"`

	// Timelines are the registered timelines.
	Timelines []timeline.Timeline `yaml:"timelines,omitempty"`
}

// Empty reports whether the session holds nothing to restore.
func (s *Session) Empty() bool {
	return s == nil || (s.Config == nil && len(s.States) == 0 && len(s.Timelines) == 0)
}

// StateSource lists and restores time states. *timestate.Manager
// satisfies it.
type StateSource interface {
	All() []timestate.TimeState
	Restore(timestate.TimeState) error
	MasterFramerate() timecode.Framerate
	SetMasterFramerate(timecode.Framerate) error
}

// TimelineSource lists and restores timelines. *timeline.Registry
// satisfies it.
type TimelineSource interface {
	All() []timeline.Timeline
	Restore(timeline.Timeline) error
}

// Capture builds a session from the running registries. cfg may be nil.
func Capture(cfg *node.Config, states StateSource, timelines TimelineSource) *Session {
	s := &Session{Version: SessionVersion}
	if cfg != nil {
		c := *cfg
		c.Logger = nil
		c.Journal = nil
		s.Config = &c
	}
	if states != nil {
		s.Framerate = states.MasterFramerate()
		s.States = states.All()
	}
	if timelines != nil {
		s.Timelines = timelines.All()
	}
	return s
}

// Apply restores the saved time states and timelines. States are restored
// first so that timelines resolve. All entries are attempted; the returned
// error joins every failure.
func (s *Session) Apply(states StateSource, timelines TimelineSource) error {
	if s == nil {
		return nil
	}

	var errs []error
	if states != nil {
		if s.Framerate.Valid() {
			if err := states.SetMasterFramerate(s.Framerate); err != nil {
				errs = append(errs, err)
			}
		}
		for _, st := range s.States {
			if err := states.Restore(st); err != nil {
				errs = append(errs, fmt.Errorf("state %s: %w", st.ID, err))
			}
		}
	}
	if timelines != nil {
		for _, tl := range s.Timelines {
			if err := timelines.Restore(tl); err != nil {
				errs = append(errs, fmt.Errorf("timeline %s: %w", tl.ID, err))
			}
		}
	}
	return errors.Join(errs...)
}

// SessionStore manages persistence of a session to a YAML file.
type SessionStore struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewSessionStore creates a new session store.
func NewSessionStore(path string) *SessionStore {
	return &SessionStore{path: path, now: time.Now}
}

// Path returns the session file path.
func (s *SessionStore) Path() string {
	return s.path
}

// Save persists the session to disk. The file is written to a temporary
// name and renamed into place.
func (s *SessionStore) Save(session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	session.Version = SessionVersion
	if session.SavedAt.IsZero() {
		session.SavedAt = s.now()
	}

	data, err := yaml.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Load reads the session from disk. A missing file loads as an empty
// session.
func (s *SessionStore) Load() (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return &Session{Version: SessionVersion}, nil
	}
	if err != nil {
		return nil, err
	}

	session := &Session{}
	if err := yaml.Unmarshal(data, session); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", s.path, err)
	}
	if session.Version > SessionVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, session.Version)
	}
	return session, nil
}

// Clear removes the session file.
func (s *SessionStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
