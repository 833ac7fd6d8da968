package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rocontrol/rocontrol-go/pkg/command"
	"github.com/rocontrol/rocontrol-go/pkg/node"
)

func replyMsg(t *testing.T, r Reply) *nats.Msg {
	t.Helper()
	data, err := json.Marshal(r)
	require.NoError(t, err)
	return &nats.Msg{Data: data}
}

func TestReceiverRegister(t *testing.T) {
	conn := newMockConn()
	reg := newRegistry(t, node.RoleReceiver, "recv-1")

	var sent node.Registration
	conn.On("RequestWithContext", mock.Anything, "rocontrol.register", mock.Anything).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline, "requests are bounded")
			require.NoError(t, json.Unmarshal(args.Get(2).([]byte), &sent))
		}).
		Return(replyMsg(t, okReply("node recv-1 registered")), nil)

	rc := NewReceiver(conn, reg, ReceiverConfig{Address: "10.0.0.9", Version: "0.1.0"})
	require.NoError(t, rc.Register(context.Background()))

	assert.Equal(t, "recv-1", sent.NodeID)
	assert.Equal(t, "10.0.0.9", sent.Address)
	assert.Equal(t, uint16(node.DefaultPort), sent.Port)
	assert.True(t, sent.Capabilities.DMXOutput)
}

func TestReceiverRegisterErrors(t *testing.T) {
	reg := newRegistry(t, node.RoleReceiver, "recv-1")

	conn := newMockConn()
	conn.On("RequestWithContext", mock.Anything, "rocontrol.register", mock.Anything).
		Return(replyMsg(t, errorReply(node.ErrPermissionDenied)), nil)
	err := NewReceiver(conn, reg, ReceiverConfig{}).Register(context.Background())
	assert.ErrorIs(t, err, node.ErrPermissionDenied)

	conn = newMockConn()
	conn.On("RequestWithContext", mock.Anything, "rocontrol.register", mock.Anything).
		Return(nil, nats.ErrNoResponders)
	err = NewReceiver(conn, reg, ReceiverConfig{}).Register(context.Background())
	assert.ErrorIs(t, err, node.ErrNetwork)
	assert.ErrorIs(t, err, nats.ErrNoResponders)

	conn = newMockConn()
	conn.On("RequestWithContext", mock.Anything, "rocontrol.register", mock.Anything).
		Return(&nats.Msg{Data: []byte("<html>")}, nil)
	err = NewReceiver(conn, reg, ReceiverConfig{}).Register(context.Background())
	assert.ErrorIs(t, err, node.ErrSerialization)
}

func TestReceiverUnregister(t *testing.T) {
	conn := newMockConn()
	reg := newRegistry(t, node.RoleReceiver, "recv-1")
	conn.On("RequestWithContext", mock.Anything, "rocontrol.unregister", []byte(`{"node_id":"recv-1"}`)).
		Return(replyMsg(t, Reply{Code: CodeNotFound, Error: "node not found: recv-1"}), nil)

	err := NewReceiver(conn, reg, ReceiverConfig{}).Unregister(context.Background())
	assert.ErrorIs(t, err, node.ErrNodeNotFound)
}

func TestReceiverSendHeartbeat(t *testing.T) {
	conn := newMockConn()
	reg := newRegistry(t, node.RoleReceiver, "recv-1")
	conn.On("Publish", "rocontrol.heartbeat", mock.Anything).Return(nil).Once()
	conn.On("Publish", "rocontrol.heartbeat", mock.Anything).Return(nats.ErrConnectionClosed)

	rc := NewReceiver(conn, reg, ReceiverConfig{})
	hb := node.Heartbeat{NodeID: "recv-1", Timestamp: time.Now(), Metrics: node.Metrics{DMXFPS: 44}}
	require.NoError(t, rc.SendHeartbeat(context.Background(), hb))

	var got node.Heartbeat
	require.NoError(t, json.Unmarshal(conn.published("rocontrol.heartbeat")[0], &got))
	assert.Equal(t, float32(44), got.Metrics.DMXFPS)

	err := rc.SendHeartbeat(context.Background(), hb)
	assert.ErrorIs(t, err, node.ErrNetwork)
}

func TestReceiverAck(t *testing.T) {
	conn := newMockConn()
	reg := newRegistry(t, node.RoleReceiver, "recv-1")
	conn.On("Publish", "rocontrol.ack", mock.Anything).Return(nil)

	rc := NewReceiver(conn, reg, ReceiverConfig{})
	require.NoError(t, rc.Ack("c-1", command.AckFailed, "fixture offline"))

	ack, err := command.DecodeAck(conn.published("rocontrol.ack")[0])
	require.NoError(t, err)
	assert.Equal(t, "recv-1", ack.NodeID)
	assert.Equal(t, "fixture offline", ack.Error)

	assert.ErrorIs(t, rc.Ack("c-2", "done", ""), command.ErrSerialization)
}

func TestReceiverFiltersCommands(t *testing.T) {
	conn := newMockConn()
	conn.On("Subscribe", "rocontrol.command", mock.Anything).Return(nil, nil).Once()
	reg := newRegistry(t, node.RoleReceiver, "recv-1")
	events := reg.Events()

	rc := NewReceiver(conn, reg, ReceiverConfig{})
	require.NoError(t, rc.Start())
	defer rc.Close()

	send := func(target, id string) {
		data, err := command.Command{CommandID: id, CommandType: "go", TargetNode: target, Payload: json.RawMessage(`null`)}.Encode()
		require.NoError(t, err)
		require.True(t, conn.deliver("rocontrol.command", "", data))
	}
	send("recv-2", "not-mine")
	send("", "broadcast")
	send("recv-1", "mine")
	conn.deliver("rocontrol.command", "", []byte("{}"))

	var got []string
	for len(got) < 2 {
		select {
		case ev := <-events.C:
			require.Equal(t, node.EventCommandReceived, ev.Type)
			got = append(got, ev.Command.CommandID)
		case <-time.After(time.Second):
			t.Fatalf("received %v", got)
		}
	}
	assert.Equal(t, []string{"broadcast", "mine"}, got)

	select {
	case ev := <-events.C:
		t.Fatalf("unexpected event %s", ev.Type)
	default:
	}
}

func TestReceiverStartFailure(t *testing.T) {
	conn := newMockConn()
	conn.On("Subscribe", "rocontrol.command", mock.Anything).Return(nil, errors.New("denied"))

	rc := NewReceiver(conn, newRegistry(t, node.RoleReceiver, "recv-1"), ReceiverConfig{})
	assert.ErrorIs(t, rc.Start(), node.ErrNetwork)
	assert.NoError(t, rc.Close())
}

func TestCustomPrefix(t *testing.T) {
	conn := newMockConn()
	conn.On("Publish", "stage.heartbeat", mock.Anything).Return(nil)

	rc := NewReceiver(conn, newRegistry(t, node.RoleReceiver, "recv-1"), ReceiverConfig{Prefix: "stage"})
	require.NoError(t, rc.SendHeartbeat(context.Background(), node.Heartbeat{NodeID: "recv-1"}))
	conn.AssertExpectations(t)
}
