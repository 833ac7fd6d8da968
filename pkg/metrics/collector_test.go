package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocontrol/rocontrol-go/pkg/node"
	"github.com/rocontrol/rocontrol-go/pkg/timestate"
)

type fakeNodes struct {
	nodes   []node.Node
	dropped uint64
}

func (f fakeNodes) All() []node.Node      { return f.nodes }
func (f fakeNodes) DroppedEvents() uint64 { return f.dropped }

type fakeStates []timestate.TimeState

func (f fakeStates) All() []timestate.TimeState { return f }

type fakeBus struct{ sent, acked, dropped uint64 }

func (f fakeBus) Stats() (uint64, uint64) { return f.sent, f.acked }
func (f fakeBus) Dropped() uint64         { return f.dropped }

func TestCollectorNodes(t *testing.T) {
	c := NewCollector(fakeNodes{
		nodes: []node.Node{
			{NodeID: "m", Role: node.RoleMaster, Online: true},
			{NodeID: "r1", Role: node.RoleReceiver, Online: true},
			{NodeID: "r2", Role: node.RoleReceiver, Online: false},
			{NodeID: "r3", Role: node.RoleReceiver, Online: true},
		},
		dropped: 3,
	}, nil, nil)

	expected := `
# HELP rocontrol_nodes Known nodes by role and liveness
# TYPE rocontrol_nodes gauge
rocontrol_nodes{online="false",role="master"} 0
rocontrol_nodes{online="false",role="receiver"} 1
rocontrol_nodes{online="false",role="unknown"} 0
rocontrol_nodes{online="true",role="master"} 1
rocontrol_nodes{online="true",role="receiver"} 2
rocontrol_nodes{online="true",role="unknown"} 0
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected), "rocontrol_nodes"))

	dropped := `
# HELP rocontrol_dropped_events Deliveries lost to slow subscribers
# TYPE rocontrol_dropped_events gauge
rocontrol_dropped_events{source="node_events"} 3
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(dropped), "rocontrol_dropped_events"))
}

func TestCollectorTimeStates(t *testing.T) {
	now := time.Now()
	c := NewCollector(nil, fakeStates{
		{ID: "a", RunState: timestate.Playing, LastUpdate: now},
		{ID: "b", RunState: timestate.Playing, LastUpdate: now},
		{ID: "c", RunState: timestate.Paused, LastUpdate: now.Add(-time.Minute)},
	}, nil)

	// 5 run states plus the alive gauge.
	assert.Equal(t, 6, testutil.CollectAndCount(c))

	expected := `
# HELP rocontrol_time_states_alive Time states updated within the liveness window
# TYPE rocontrol_time_states_alive gauge
rocontrol_time_states_alive 2
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected), "rocontrol_time_states_alive"))

	playing := `
# HELP rocontrol_time_states Registered time states by run state
# TYPE rocontrol_time_states gauge
rocontrol_time_states{run_state="cueing"} 0
rocontrol_time_states{run_state="error"} 0
rocontrol_time_states{run_state="paused"} 1
rocontrol_time_states{run_state="playing"} 2
rocontrol_time_states{run_state="stopped"} 0
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(playing), "rocontrol_time_states"))
}

func TestCollectorBus(t *testing.T) {
	c := NewCollector(nil, nil, fakeBus{sent: 10, acked: 4, dropped: 2})

	expected := `
# HELP rocontrol_command_acks_total Command acknowledgments accepted
# TYPE rocontrol_command_acks_total counter
rocontrol_command_acks_total 4
# HELP rocontrol_dropped_events Deliveries lost to slow subscribers
# TYPE rocontrol_dropped_events gauge
rocontrol_dropped_events{source="commands"} 2
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"rocontrol_command_acks_total", "rocontrol_dropped_events"))
}

func TestCollectorRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(NewCollector(fakeNodes{}, fakeStates{}, fakeBus{})))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.ElementsMatch(t, []string{
		"rocontrol_nodes",
		"rocontrol_time_states",
		"rocontrol_time_states_alive",
		"rocontrol_dropped_events",
		"rocontrol_command_acks_total",
	}, names)
}
