package natsbus

import (
	"context"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/mock"
)

// mockConn is a Conn that records handlers so tests can inject messages.
type mockConn struct {
	mock.Mock

	mu       sync.Mutex
	handlers map[string]nats.MsgHandler
}

func newMockConn() *mockConn {
	return &mockConn{handlers: make(map[string]nats.MsgHandler)}
}

func (m *mockConn) Publish(subj string, data []byte) error {
	return m.Called(subj, data).Error(0)
}

func (m *mockConn) Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error) {
	args := m.Called(subj, cb)
	if args.Error(1) == nil {
		m.mu.Lock()
		m.handlers[subj] = cb
		m.mu.Unlock()
	}
	sub, _ := args.Get(0).(*nats.Subscription)
	return sub, args.Error(1)
}

func (m *mockConn) RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error) {
	args := m.Called(ctx, subj, data)
	msg, _ := args.Get(0).(*nats.Msg)
	return msg, args.Error(1)
}

// deliver invokes the handler subscribed to subj.
func (m *mockConn) deliver(subj, reply string, data []byte) bool {
	m.mu.Lock()
	cb, ok := m.handlers[subj]
	m.mu.Unlock()
	if !ok {
		return false
	}
	cb(&nats.Msg{Subject: subj, Reply: reply, Data: data})
	return true
}

// published returns the payloads published on subj.
func (m *mockConn) published(subj string) [][]byte {
	var out [][]byte
	for _, call := range m.Calls {
		if call.Method == "Publish" && call.Arguments.String(0) == subj {
			out = append(out, call.Arguments.Get(1).([]byte))
		}
	}
	return out
}
