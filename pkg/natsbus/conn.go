package natsbus

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultPrefix is the subject prefix.
const DefaultPrefix = "rocontrol"

// Subject suffixes.
const (
	SubjectRegister   = "register"
	SubjectUnregister = "unregister"
	SubjectHeartbeat  = "heartbeat"
	SubjectAck        = "ack"
	SubjectCommand    = "command"
)

// Conn is the part of *nats.Conn used by this package.
type Conn interface {
	Publish(subj string, data []byte) error
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
	RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error)
}

var _ Conn = (*nats.Conn)(nil)

// Connect dials a NATS server and keeps reconnecting for the life of the
// process.
func Connect(url, name string, logger *slog.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	opts := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("nats disconnected", slog.Any("error", err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", url, err)
	}
	return nc, nil
}

// Close drains and closes a connection.
func Close(nc *nats.Conn) {
	if nc == nil || nc.IsClosed() {
		return
	}
	_ = nc.Drain()
	nc.Close()
}

type subjects struct {
	prefix string
}

func (s subjects) of(suffix string) string {
	return s.prefix + "." + suffix
}

func newSubjects(prefix string) subjects {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return subjects{prefix: prefix}
}

func unsubscribeAll(subs []*nats.Subscription) {
	for _, s := range subs {
		if s != nil {
			_ = s.Unsubscribe()
		}
	}
}
