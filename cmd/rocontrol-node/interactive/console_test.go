package interactive

import (
	"bytes"
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocontrol/rocontrol-go/pkg/command"
	"github.com/rocontrol/rocontrol-go/pkg/node"
	"github.com/rocontrol/rocontrol-go/pkg/timecode"
	"github.com/rocontrol/rocontrol-go/pkg/timeline"
	"github.com/rocontrol/rocontrol-go/pkg/timestate"
)

type fixture struct {
	console *Console
	out     *bytes.Buffer
	deps    Deps
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := node.DefaultConfig()
	cfg.NodeID = "master-1"
	cfg.AutoDiscover = false
	registry, err := node.NewRegistry(cfg)
	require.NoError(t, err)

	states := timestate.NewManager(timestate.DefaultConfig())
	deps := Deps{
		Registry:  registry,
		States:    states,
		Timelines: timeline.NewRegistry(timeline.Config{FramerateSource: states}),
		Bus:       command.NewBus(command.Config{NodeID: "master-1"}),
	}
	t.Cleanup(func() {
		deps.Bus.Close()
		deps.States.Close()
		registry.Close()
	})

	out := &bytes.Buffer{}
	return &fixture{console: newWithWriter(deps, out), out: out, deps: deps}
}

// run executes line and returns what it printed.
func (f *fixture) run(line string) string {
	f.out.Reset()
	f.console.Execute(line)
	return f.out.String()
}

func TestExecuteEmptyAndUnknown(t *testing.T) {
	f := newFixture(t)

	assert.False(t, f.console.Execute("   "))
	assert.Empty(t, f.out.String())

	assert.Contains(t, f.run("frobnicate"), "Unknown command: frobnicate")
	assert.Contains(t, f.run("help"), "register-state <id> <type>")
}

func TestExecuteQuit(t *testing.T) {
	f := newFixture(t)
	for _, line := range []string{"quit", "exit", "q", "QUIT"} {
		assert.True(t, f.console.Execute(line), line)
	}
}

func TestNodes(t *testing.T) {
	f := newFixture(t)
	assert.Contains(t, f.run("nodes"), "No known nodes")

	_, err := f.deps.Registry.Register(node.Registration{
		NodeID:    "recv-1",
		Address:   "10.0.0.2",
		Port:      9000,
		Universes: []uint16{1, 2},
		Version:   "0.1.0",
	})
	require.NoError(t, err)

	out := f.run("nodes")
	assert.Contains(t, out, "recv-1")
	assert.Contains(t, out, "10.0.0.2:9000")
	assert.Contains(t, out, "receiver")

	out = f.run("node recv-1")
	assert.Contains(t, out, "Online:         yes")
	assert.Contains(t, out, "[1 2]")

	assert.Contains(t, f.run("node ghost"), "Error:")
	assert.Contains(t, f.run("node"), "Usage: node <id>")
}

func TestStateLifecycle(t *testing.T) {
	f := newFixture(t)
	assert.Contains(t, f.run("states"), "No time states")

	assert.Contains(t, f.run("register-state video-1 video_playback 10000 Opening Titles"),
		"Registered video-1 (video_playback, finite(10000ms))")
	assert.Contains(t, f.run("reg cues cue_list"), "Registered cues (cue_list, indefinite)")

	s, err := f.deps.States.Get("video-1")
	require.NoError(t, err)
	assert.Equal(t, "Opening Titles", s.Name)

	out := f.run("states")
	assert.Contains(t, out, "video-1")
	assert.Contains(t, out, "cues")

	assert.Contains(t, f.run("start video-1"), "video-1: playing at 00:00:00:00")
	assert.Contains(t, f.run("pause video-1"), "video-1: paused")
	assert.Contains(t, f.run("stop video-1"), "video-1: stopped")
	assert.Contains(t, f.run("cue video-1"), "video-1: cueing")
	assert.Contains(t, f.run("pause cues"), "Error:")

	out = f.run("state video-1")
	assert.Contains(t, out, "Time state video-1 (Opening Titles)")
	assert.Contains(t, out, "Remaining: 10000ms")

	out = f.run("states cue_list")
	assert.Contains(t, out, "cues")
	assert.NotContains(t, out, "video-1")
	assert.Contains(t, f.run("states hologram"), "Error:")

	assert.Contains(t, f.run("meta video-1 operator Sam K"), "video-1: operator set")
	assert.Contains(t, f.run("state video-1"), "operator: Sam K")
	assert.Contains(t, f.run("fail video-1 decoder stalled"), "video-1: error (decoder stalled)")
	assert.Contains(t, f.run("start video-1"), "Error:")
	assert.Contains(t, f.run("meta ghost k v"), "Error:")

	assert.Contains(t, f.run("remove-state cues"), "Removed cues")
	assert.Equal(t, 1, f.deps.States.Len())
}

func TestRegisterStateInvalid(t *testing.T) {
	f := newFixture(t)
	assert.Contains(t, f.run("register-state x"), "Usage:")
	assert.Contains(t, f.run("register-state x hologram"), "Error:")
	assert.Contains(t, f.run("register-state x cue_list soon"), "Invalid duration: soon")

	f.run("register-state x cue_list")
	assert.Contains(t, f.run("register-state x cue_list"), "already registered")
}

func TestTimelines(t *testing.T) {
	f := newFixture(t)
	assert.Contains(t, f.run("timelines"), "No timelines")

	f.run("register-state video-1 video_playback 10000")
	out := f.run("timeline create Act1 video-1 ghost")
	require.Contains(t, out, "Created timeline ")
	id := regexp.MustCompile(`Created timeline (\S+)`).FindStringSubmatch(out)[1]

	assert.Contains(t, f.run("timelines"), "Act1")

	out = f.run("tl show " + id)
	assert.Contains(t, out, "Timeline "+id+" (Act1)")
	assert.Contains(t, out, "- video-1 stopped")
	assert.Contains(t, out, "- ghost (missing)")

	assert.Contains(t, f.run("timeline sync "+id+" off"), "sync off")
	tl, err := f.deps.Timelines.Get(id)
	require.NoError(t, err)
	assert.False(t, tl.SyncEnabled)

	assert.Contains(t, f.run("timeline rm "+id), "Removed timeline")
	assert.Contains(t, f.run("timeline show "+id), "Error:")
	assert.Contains(t, f.run("timeline bogus"), "Unknown timeline command")
}

func TestFramerate(t *testing.T) {
	f := newFixture(t)
	assert.Contains(t, f.run("fps"), "Master framerate: 30")
	assert.Contains(t, f.run("framerate 25"), "Master framerate: 25")
	assert.Equal(t, timecode.Fps25, f.deps.States.MasterFramerate())
	assert.Contains(t, f.run("framerate 12"), "Error:")

	out := f.run("timeline create Act2")
	id := regexp.MustCompile(`Created timeline (\S+)`).FindStringSubmatch(out)[1]
	assert.Contains(t, f.run("timeline show "+id), "Master timecode: 00:00:00:00")
	tl, err := f.deps.Timelines.Get(id)
	require.NoError(t, err)
	assert.Equal(t, timecode.Fps25, tl.MasterTimecode.Framerate)
}

func TestSend(t *testing.T) {
	f := newFixture(t)
	sub := f.deps.Bus.Subscribe()
	defer sub.Close()

	assert.Contains(t, f.run(`send * timestate.start {"state_id": "video-1"}`), "(broadcast)")
	cmd := <-sub.C
	assert.True(t, cmd.Broadcast())
	assert.Equal(t, "timestate.start", cmd.CommandType)
	assert.JSONEq(t, `{"state_id":"video-1"}`, string(cmd.Payload))

	assert.Contains(t, f.run("send recv-1 blackout"), "(to recv-1)")
	cmd = <-sub.C
	assert.Equal(t, "recv-1", cmd.TargetNode)

	assert.Contains(t, f.run("send recv-1 blackout {broken"), "Error:")
	assert.Contains(t, f.run("send recv-1"), "Usage:")
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	f.run("register-state video-1 video_playback")
	f.run("start video-1")

	out := f.run("status")
	assert.Contains(t, out, "master-1 (master)")
	assert.Contains(t, out, "Discovery:  off")
	assert.Contains(t, out, "States:     1 registered, 1 playing")
	assert.Contains(t, out, "Framerate:  30")
}

func TestSave(t *testing.T) {
	f := newFixture(t)
	assert.Contains(t, f.run("save"), "No session file configured")

	calls := 0
	f.console.deps.Save = func() error {
		calls++
		return nil
	}
	assert.Contains(t, f.run("save"), "Session saved")
	assert.Equal(t, 1, calls)

	f.console.deps.Save = func() error { return errors.New("disk full") }
	assert.Contains(t, f.run("save"), "Error: disk full")
}
