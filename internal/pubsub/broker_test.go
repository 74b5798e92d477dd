package pubsub

import (
	"context"
	"sync"
	"testing"

	"github.com/datapowersync/counters/internal/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroker_Subscribe(t *testing.T) {
	broker := NewBroker[string](logr.Discard(), "test")
	ctx, cancel := context.WithCancel(context.Background())

	sub, _ := broker.Subscribe(ctx)
	assert.Equal(t, 1, broker.Subscribers())

	cancel()
	_, ok := <-sub
	assert.False(t, ok, "channel should be closed")
	assert.Equal(t, 0, broker.Subscribers())
}

func TestBroker_Unsubscribe(t *testing.T) {
	broker := NewBroker[string](logr.Discard(), "test")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, unsub := broker.Subscribe(ctx)
	unsub()
	_, ok := <-sub
	assert.False(t, ok, "channel should be closed")
	assert.Equal(t, 0, broker.Subscribers())

	t.Run("idempotent", func(t *testing.T) {
		unsub()
		cancel()
		unsub()
		assert.Equal(t, 0, broker.Subscribers())
	})
}

func TestBroker_Publish(t *testing.T) {
	ctx := context.Background()
	broker := NewBroker[string](logr.Discard(), "test")

	t.Run("events received in publication order", func(t *testing.T) {
		sub, unsub := broker.Subscribe(ctx)
		defer unsub()

		want := []string{"e1", "e2", "e3", "e4", "e5"}
		for _, ev := range want {
			broker.Publish(ev)
		}
		for _, ev := range want {
			assert.Equal(t, ev, <-sub)
		}
	})

	t.Run("no delivery after unsubscribe", func(t *testing.T) {
		sub, unsub := broker.Subscribe(ctx)
		broker.Publish("before")
		unsub()
		broker.Publish("after")

		// the event delivered before unsubscribing is still readable.
		assert.Equal(t, "before", <-sub)
		_, ok := <-sub
		assert.False(t, ok, "channel should be closed")
	})

	t.Run("late subscriber misses earlier events", func(t *testing.T) {
		sub1, unsub1 := broker.Subscribe(ctx)
		defer unsub1()
		sub2, unsub2 := broker.Subscribe(ctx)
		defer unsub2()

		broker.Publish("first")

		sub3, unsub3 := broker.Subscribe(ctx)
		defer unsub3()

		broker.Publish("second")

		assert.Equal(t, "first", <-sub1)
		assert.Equal(t, "first", <-sub2)
		assert.Equal(t, "second", <-sub1)
		assert.Equal(t, "second", <-sub2)
		assert.Equal(t, "second", <-sub3)
		assert.Empty(t, sub3)
	})

	t.Run("no subscribers", func(t *testing.T) {
		broker.Publish("nobody listening")
	})
}

func TestBroker_FullSubscriber(t *testing.T) {
	ctx := context.Background()
	broker := NewBroker[int](logr.Discard(), "test", WithBufferSize(2))

	slow, unsubSlow := broker.Subscribe(ctx)
	defer unsubSlow()
	fast, unsubFast := broker.Subscribe(ctx)
	defer unsubFast()

	var got []int
	for i := range 3 {
		broker.Publish(i)
		got = append(got, <-fast)
	}
	assert.Equal(t, []int{0, 1, 2}, got)

	// slow subscriber received what fitted in its buffer and was then
	// dropped.
	assert.Equal(t, 0, <-slow)
	assert.Equal(t, 1, <-slow)
	_, ok := <-slow
	assert.False(t, ok, "slow subscriber should have been dropped")
	assert.Equal(t, 1, broker.Subscribers())
}

func TestBroker_Close(t *testing.T) {
	broker := NewBroker[string](logr.Discard(), "test")
	sub1, _ := broker.Subscribe(context.Background())
	sub2, _ := broker.Subscribe(context.Background())

	broker.Close()

	_, ok := <-sub1
	assert.False(t, ok)
	_, ok = <-sub2
	assert.False(t, ok)
	assert.Equal(t, 0, broker.Subscribers())
}

func TestBroker_Concurrent(t *testing.T) {
	broker := NewBroker[int](logr.Discard(), "test", WithBufferSize(1000))
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				sub, unsub := broker.Subscribe(ctx)
				unsub()
				// drain whatever was delivered before unsubscribing
				for range sub {
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range 500 {
			broker.Publish(i)
		}
	}()
	wg.Wait()

	require.Equal(t, 0, broker.Subscribers())
}
