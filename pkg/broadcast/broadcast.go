package broadcast

import (
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the per-subscriber buffer used when New is given a
// non-positive capacity.
const DefaultBuffer = 100

// Broadcaster fans values out to all current subscribers.
// It is safe for concurrent use.
type Broadcaster[T any] struct {
	mu     sync.Mutex
	subs   map[uint64]*Subscription[T]
	nextID uint64
	buffer int
	closed bool

	dropped atomic.Uint64
}

// Subscription receives values published after it was created.
type Subscription[T any] struct {
	// C delivers published values. It is closed when the subscription or
	// the broadcaster is closed.
	C <-chan T

	ch   chan T
	id   uint64
	b    *Broadcaster[T]
	once sync.Once
}

// New creates a Broadcaster whose subscribers buffer up to buffer values.
func New[T any](buffer int) *Broadcaster[T] {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broadcaster[T]{
		subs:   make(map[uint64]*Subscription[T]),
		buffer: buffer,
	}
}

// Subscribe registers a new subscriber. Subscribing to a closed broadcaster
// returns a subscription whose channel is already closed.
func (b *Broadcaster[T]) Subscribe() *Subscription[T] {
	ch := make(chan T, b.buffer)
	sub := &Subscription[T]{C: ch, ch: ch, b: b}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		sub.once.Do(func() {})
		return sub
	}

	b.nextID++
	sub.id = b.nextID
	b.subs[sub.id] = sub
	return sub
}

// Publish delivers v to every subscriber with free buffer space and returns
// the number of subscribers that received it. Zero means nobody was
// listening (or everybody was full); callers decide whether that matters.
func (b *Broadcaster[T]) Publish(v T) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0
	}

	delivered := 0
	for _, sub := range b.subs {
		select {
		case sub.ch <- v:
			delivered++
		default:
			b.dropped.Add(1)
		}
	}
	return delivered
}

// Subscribers returns the number of active subscriptions.
func (b *Broadcaster[T]) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber's
// buffer was full.
func (b *Broadcaster[T]) Dropped() uint64 {
	return b.dropped.Load()
}

// Close closes all subscriptions. Later Publish calls are no-ops.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for id, sub := range b.subs {
		sub.once.Do(func() { close(sub.ch) })
		delete(b.subs, id)
	}
}

// Close unsubscribes. Buffered values not yet received are discarded.
// It is safe to call Close more than once.
func (s *Subscription[T]) Close() {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()

	delete(s.b.subs, s.id)
	s.once.Do(func() { close(s.ch) })
}
