package log

import (
	"sync"
	"sync/atomic"
)

// DefaultQueueSize is the queue capacity used by the node binary.
const DefaultQueueSize = 256

// QueueLogger forwards events to another Logger from a single goroutine.
// Events are delivered in the order Log was called. When the queue is full
// the event is dropped and counted, so callers never wait for the sink.
type QueueLogger struct {
	next  Logger
	queue chan Event
	done  chan struct{}

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

// NewQueueLogger starts a queue of the given capacity in front of next.
// A size below 1 uses DefaultQueueSize.
func NewQueueLogger(next Logger, size int) *QueueLogger {
	if size < 1 {
		size = DefaultQueueSize
	}
	q := &QueueLogger{
		next:  OrNoop(next),
		queue: make(chan Event, size),
		done:  make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *QueueLogger) run() {
	defer close(q.done)
	for event := range q.queue {
		q.next.Log(event)
	}
}

// Log enqueues the event without blocking.
func (q *QueueLogger) Log(event Event) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.dropped.Add(1)
		return
	}

	select {
	case q.queue <- event:
	default:
		q.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded because the queue was full
// or closed.
func (q *QueueLogger) Dropped() uint64 {
	return q.dropped.Load()
}

// Close stops accepting events and waits until every queued event has been
// handed to the next logger. It does not close the next logger.
func (q *QueueLogger) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return nil
	}
	q.closed = true
	close(q.queue)
	q.mu.Unlock()

	<-q.done
	return nil
}

// Compile-time interface satisfaction check.
var _ Logger = (*QueueLogger)(nil)
