package broadcast

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	b := New[int](4)
	s1 := b.Subscribe()
	s2 := b.Subscribe()

	n := b.Publish(7)
	assert.Equal(t, 2, n)
	assert.Equal(t, 7, <-s1.C)
	assert.Equal(t, 7, <-s2.C)
}

func TestPublishWithoutSubscribers(t *testing.T) {
	b := New[string](1)
	assert.Equal(t, 0, b.Publish("nobody"))
	assert.Equal(t, uint64(0), b.Dropped())
}

func TestLateSubscriberSeesNoReplay(t *testing.T) {
	b := New[int](4)
	early := b.Subscribe()
	b.Publish(1)

	late := b.Subscribe()
	b.Publish(2)

	assert.Equal(t, 1, <-early.C)
	assert.Equal(t, 2, <-early.C)
	assert.Equal(t, 2, <-late.C)
	select {
	case v := <-late.C:
		t.Fatalf("late subscriber received replayed value %d", v)
	default:
	}
}

func TestSlowSubscriberLosesValues(t *testing.T) {
	b := New[int](2)
	slow := b.Subscribe()
	fast := b.Subscribe()

	for i := 0; i < 5; i++ {
		b.Publish(i)
		<-fast.C
	}

	assert.Equal(t, uint64(3), b.Dropped())
	assert.Equal(t, 0, <-slow.C)
	assert.Equal(t, 1, <-slow.C)
}

func TestSubscriptionClose(t *testing.T) {
	b := New[int](1)
	sub := b.Subscribe()
	require.Equal(t, 1, b.Subscribers())

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, b.Subscribers())

	_, ok := <-sub.C
	assert.False(t, ok, "channel should be closed")
	assert.Equal(t, 0, b.Publish(1))
}

func TestBroadcasterClose(t *testing.T) {
	b := New[int](1)
	sub := b.Subscribe()

	b.Close()
	b.Close()

	_, ok := <-sub.C
	assert.False(t, ok)
	assert.Equal(t, 0, b.Publish(1))

	after := b.Subscribe()
	_, ok = <-after.C
	assert.False(t, ok, "subscribing after Close yields a closed channel")
	after.Close()
	sub.Close()
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	b := New[int](16)
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := b.Subscribe()
			for j := 0; j < 10; j++ {
				b.Publish(j)
			}
			sub.Close()
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, b.Subscribers())
}
