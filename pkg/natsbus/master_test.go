package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/rocontrol/rocontrol-go/pkg/command"
	"github.com/rocontrol/rocontrol-go/pkg/node"
)

func newRegistry(t *testing.T, role node.Role, id string) *node.Registry {
	t.Helper()
	cfg := node.DefaultConfig()
	cfg.Role = role
	cfg.NodeID = id
	r, err := node.NewRegistry(cfg)
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func startedMaster(t *testing.T, role node.Role) (*Master, *mockConn, *node.Registry, *command.Bus) {
	t.Helper()
	conn := newMockConn()
	conn.On("Subscribe", mock.Anything, mock.Anything).Return(nil, nil)
	conn.On("Publish", mock.Anything, mock.Anything).Return(nil)

	reg := newRegistry(t, role, "master-1")
	bus := command.NewBus(command.Config{NodeID: "master-1"})
	t.Cleanup(bus.Close)

	m := NewMaster(conn, reg, bus, MasterConfig{})
	require.NoError(t, m.Start())
	t.Cleanup(func() { _ = m.Close() })
	return m, conn, reg, bus
}

func lastReply(t *testing.T, conn *mockConn, subj string) Reply {
	t.Helper()
	msgs := conn.published(subj)
	require.NotEmpty(t, msgs, "no reply on %s", subj)
	var r Reply
	require.NoError(t, json.Unmarshal(msgs[len(msgs)-1], &r))
	return r
}

func TestMasterSubscribes(t *testing.T) {
	_, conn, _, _ := startedMaster(t, node.RoleMaster)

	for _, subj := range []string{"rocontrol.register", "rocontrol.unregister", "rocontrol.heartbeat", "rocontrol.ack"} {
		conn.AssertCalled(t, "Subscribe", subj, mock.Anything)
	}
}

func TestMasterSubscribeFailure(t *testing.T) {
	conn := newMockConn()
	conn.On("Subscribe", "rocontrol.register", mock.Anything).Return(nil, nil)
	conn.On("Subscribe", "rocontrol.unregister", mock.Anything).Return(nil, errors.New("permissions violation"))

	m := NewMaster(conn, newRegistry(t, node.RoleMaster, "m"), command.NewBus(command.Config{}), MasterConfig{})
	err := m.Start()
	assert.ErrorIs(t, err, node.ErrNetwork)
}

func TestMasterRegister(t *testing.T) {
	_, conn, reg, _ := startedMaster(t, node.RoleMaster)

	body, _ := json.Marshal(node.Registration{NodeID: "recv-1", Universes: []uint16{4}, Version: "0.1.0"})
	require.True(t, conn.deliver("rocontrol.register", "_INBOX.1", body))

	r := lastReply(t, conn, "_INBOX.1")
	assert.True(t, r.OK)
	assert.Equal(t, "node recv-1 registered", r.Message)

	n, err := reg.Get("recv-1")
	require.NoError(t, err)
	assert.Equal(t, []uint16{4}, n.Universes)
}

func TestMasterRegisterErrors(t *testing.T) {
	_, conn, _, _ := startedMaster(t, node.RoleReceiver)

	body, _ := json.Marshal(node.Registration{NodeID: "recv-1"})
	conn.deliver("rocontrol.register", "_INBOX.1", body)
	r := lastReply(t, conn, "_INBOX.1")
	assert.False(t, r.OK)
	assert.Equal(t, CodePermissionDenied, r.Code)
	assert.ErrorIs(t, r.Err(), node.ErrPermissionDenied)

	conn.deliver("rocontrol.register", "_INBOX.2", []byte("{"))
	r = lastReply(t, conn, "_INBOX.2")
	assert.Equal(t, CodeSerialization, r.Code)
}

func TestMasterUnregister(t *testing.T) {
	_, conn, reg, _ := startedMaster(t, node.RoleMaster)
	_, err := reg.Register(node.Registration{NodeID: "recv-1"})
	require.NoError(t, err)

	body, _ := json.Marshal(UnregisterRequest{NodeID: "recv-1"})
	conn.deliver("rocontrol.unregister", "_INBOX.1", body)
	assert.True(t, lastReply(t, conn, "_INBOX.1").OK)

	conn.deliver("rocontrol.unregister", "_INBOX.2", body)
	r := lastReply(t, conn, "_INBOX.2")
	assert.Equal(t, CodeNotFound, r.Code)
	assert.ErrorIs(t, r.Err(), node.ErrNodeNotFound)
}

func TestMasterHeartbeat(t *testing.T) {
	_, conn, reg, _ := startedMaster(t, node.RoleMaster)
	_, err := reg.Register(node.Registration{NodeID: "recv-1"})
	require.NoError(t, err)

	body, _ := json.Marshal(node.Heartbeat{NodeID: "recv-1", Timestamp: time.Now(), Metrics: node.Metrics{CPUUsage: 33}})
	conn.deliver("rocontrol.heartbeat", "", body)

	n, err := reg.Get("recv-1")
	require.NoError(t, err)
	require.NotNil(t, n.Metrics)
	assert.Equal(t, float32(33), n.Metrics.CPUUsage)

	// Unknown nodes are ignored, not created.
	body, _ = json.Marshal(node.Heartbeat{NodeID: "ghost"})
	conn.deliver("rocontrol.heartbeat", "", body)
	conn.deliver("rocontrol.heartbeat", "", []byte("garbage"))
	assert.Equal(t, 1, reg.Len())
}

func TestMasterAck(t *testing.T) {
	_, conn, _, bus := startedMaster(t, node.RoleMaster)

	body, _ := json.Marshal(command.Ack{CommandID: "c-1", NodeID: "recv-1", Status: command.AckExecuted})
	conn.deliver("rocontrol.ack", "", body)
	conn.deliver("rocontrol.ack", "", []byte(`{"command_id":"c-2","node_id":"n","status":"lost"}`))

	_, acked := bus.Stats()
	assert.Equal(t, uint64(1), acked)
}

func TestMasterForwardsCommands(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	conn := newMockConn()
	published := make(chan []byte, 4)
	conn.On("Publish", "rocontrol.command", mock.Anything).
		Run(func(args mock.Arguments) { published <- args.Get(1).([]byte) }).
		Return(nil)

	reg := newRegistry(t, node.RoleMaster, "master-1")
	bus := command.NewBus(command.Config{})
	defer bus.Close()
	m := NewMaster(conn, reg, bus, MasterConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return bus.Subscribers() == 1 }, time.Second, time.Millisecond)
	sent, err := bus.TriggerAction("recv-2", "cue_go", map[string]int{"cue": 3})
	require.NoError(t, err)

	select {
	case data := <-published:
		got, err := command.DecodeCommand(data)
		require.NoError(t, err)
		assert.Equal(t, sent.CommandID, got.CommandID)
		assert.Equal(t, "recv-2", got.TargetNode)
	case <-time.After(time.Second):
		t.Fatal("command not forwarded")
	}

	cancel()
	require.NoError(t, <-done)
}
