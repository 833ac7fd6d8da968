package persistence

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocontrol/rocontrol-go/pkg/node"
	"github.com/rocontrol/rocontrol-go/pkg/timecode"
	"github.com/rocontrol/rocontrol-go/pkg/timeline"
	"github.com/rocontrol/rocontrol-go/pkg/timestate"
)

func TestSessionStore(t *testing.T) {
	t.Run("LoadNonExistent", func(t *testing.T) {
		store := NewSessionStore(filepath.Join(t.TempDir(), "session.yaml"))

		got, err := store.Load()
		require.NoError(t, err)
		assert.True(t, got.Empty())
		assert.Equal(t, SessionVersion, got.Version)
	})

	t.Run("SaveCreatesDirectory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "dir", "session.yaml")
		store := NewSessionStore(path)

		require.NoError(t, store.Save(&Session{}))
		_, err := os.Stat(path)
		assert.NoError(t, err)
		_, err = os.Stat(path + ".tmp")
		assert.True(t, errors.Is(err, os.ErrNotExist))
	})

	t.Run("SaveSetsVersionAndTime", func(t *testing.T) {
		store := NewSessionStore(filepath.Join(t.TempDir(), "session.yaml"))
		fixed := time.Date(2026, 4, 18, 20, 0, 0, 0, time.UTC)
		store.now = func() time.Time { return fixed }

		s := &Session{Version: 0}
		require.NoError(t, store.Save(s))
		assert.Equal(t, SessionVersion, s.Version)
		assert.Equal(t, fixed, s.SavedAt)

		got, err := store.Load()
		require.NoError(t, err)
		assert.True(t, fixed.Equal(got.SavedAt))
	})

	t.Run("Clear", func(t *testing.T) {
		store := NewSessionStore(filepath.Join(t.TempDir(), "session.yaml"))
		require.NoError(t, store.Save(&Session{}))
		require.NoError(t, store.Clear())
		require.NoError(t, store.Clear())

		got, err := store.Load()
		require.NoError(t, err)
		assert.True(t, got.Empty())
	})

	t.Run("Corrupt", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.yaml")
		require.NoError(t, os.WriteFile(path, []byte("states: [unterminated"), 0644))

		_, err := NewSessionStore(path).Load()
		assert.Error(t, err)
	})

	t.Run("NewerVersion", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.yaml")
		require.NoError(t, os.WriteFile(path, []byte("version: 99\n"), 0644))

		_, err := NewSessionStore(path).Load()
		assert.ErrorIs(t, err, ErrUnsupportedVersion)
	})
}

func TestConfigRoundTrip(t *testing.T) {
	store := NewSessionStore(filepath.Join(t.TempDir(), "session.yaml"))

	cfg := node.DefaultConfig()
	cfg.Role = node.RoleReceiver
	cfg.NodeID = "recv-stage-left"
	cfg.Universes = []uint16{1, 2}
	cfg.MasterAddress = "192.168.1.10"
	cfg.MasterPort = 7400
	cfg.HeartbeatInterval = 2 * time.Second

	require.NoError(t, store.Save(Capture(&cfg, nil, nil)))

	got, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, got.Config)
	assert.Equal(t, node.RoleReceiver, got.Config.Role)
	assert.Equal(t, "recv-stage-left", got.Config.NodeID)
	assert.Equal(t, []uint16{1, 2}, got.Config.Universes)
	assert.Equal(t, "192.168.1.10", got.Config.MasterAddress)
	assert.Equal(t, uint16(7400), got.Config.MasterPort)
	assert.Equal(t, 2*time.Second, got.Config.HeartbeatInterval)
	assert.Equal(t, cfg.Capabilities, got.Config.Capabilities)
}

func TestCaptureAndApply(t *testing.T) {
	states := timestate.NewManager(timestate.DefaultConfig())
	defer states.Close()
	timelines := timeline.NewRegistry(timeline.Config{})

	require.NoError(t, states.SetMasterFramerate(timecode.Fps25))
	_, err := states.Register(timestate.Registration{
		ID:           "video-1",
		Name:         "Intro clip",
		SourceType:   timestate.SourceVideoPlayback,
		DurationType: timestate.FiniteDuration(60000),
	})
	require.NoError(t, err)
	_, err = states.Register(timestate.Registration{
		ID:           "cues",
		Name:         "Main cue list",
		SourceType:   timestate.SourceCueList,
		DurationType: timestate.IndefiniteDuration(),
	})
	require.NoError(t, err)
	_, err = states.Start("video-1")
	require.NoError(t, err)
	require.NoError(t, states.SetMetadata("cues", "operator", "desk-a"))

	tlID, err := timelines.Create("Act 1", []string{"video-1", "cues"})
	require.NoError(t, err)

	store := NewSessionStore(filepath.Join(t.TempDir(), "session.yaml"))
	require.NoError(t, store.Save(Capture(nil, states, timelines)))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Len(t, loaded.States, 2)
	require.Len(t, loaded.Timelines, 1)
	assert.Equal(t, timecode.Fps25, loaded.Framerate)

	restoredStates := timestate.NewManager(timestate.DefaultConfig())
	defer restoredStates.Close()
	restoredTimelines := timeline.NewRegistry(timeline.Config{})
	require.NoError(t, loaded.Apply(restoredStates, restoredTimelines))

	assert.Equal(t, timecode.Fps25, restoredStates.MasterFramerate())

	video, err := restoredStates.Get("video-1")
	require.NoError(t, err)
	assert.Equal(t, timestate.Paused, video.RunState)
	assert.Equal(t, timestate.FiniteDuration(60000), video.DurationType)
	assert.Equal(t, "Intro clip", video.Name)

	cues, err := restoredStates.Get("cues")
	require.NoError(t, err)
	assert.Equal(t, timestate.Stopped, cues.RunState)
	assert.Equal(t, "desk-a", cues.Metadata["operator"])

	tl, err := restoredTimelines.Get(tlID)
	require.NoError(t, err)
	assert.Equal(t, "Act 1", tl.Name)
	assert.Equal(t, []string{"video-1", "cues"}, tl.TimeStates)
}

func TestApplyCollectsErrors(t *testing.T) {
	s := &Session{
		States: []timestate.TimeState{
			{ID: "", Name: "broken", SourceType: timestate.SourceExecutor},
			{ID: "ok", Name: "fine", SourceType: timestate.SourceExecutor},
		},
		Timelines: []timeline.Timeline{{ID: "tl-1"}},
	}

	states := timestate.NewManager(timestate.DefaultConfig())
	defer states.Close()
	timelines := timeline.NewRegistry(timeline.Config{})

	err := s.Apply(states, timelines)
	require.Error(t, err)
	assert.ErrorIs(t, err, timestate.ErrInvalidRegistration)
	assert.ErrorIs(t, err, timeline.ErrInvalidName)

	_, getErr := states.Get("ok")
	assert.NoError(t, getErr)
}

func TestApplyNilSession(t *testing.T) {
	var s *Session
	assert.NoError(t, s.Apply(nil, nil))
	assert.True(t, s.Empty())
}
