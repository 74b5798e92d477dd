package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/datapowersync/counters/internal/changefeed"
	"github.com/datapowersync/counters/internal/logr"
	"github.com/datapowersync/counters/internal/pubsub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker := pubsub.NewBroker[changefeed.ChangeEvent](logr.Discard(), "relay-test")
	sink := &fakeSink{fail: map[string]bool{"bad": true}}
	relay := New(logr.Discard(), sink, broker)

	done := make(chan error)
	go func() {
		done <- relay.Start(ctx)
	}()
	require.Eventually(t, func() bool { return broker.Subscribers() == 1 }, 5*time.Second, 10*time.Millisecond)

	broker.Publish(changefeed.ChangeEvent{Kind: changefeed.InsertedKind, ID: "c1"})
	// failures are skipped
	broker.Publish(changefeed.ChangeEvent{Kind: changefeed.InsertedKind, ID: "bad"})
	broker.Publish(changefeed.ChangeEvent{Kind: changefeed.DeletedKind, ID: "c1"})

	assert.Eventually(t, func() bool { return len(sink.published()) == 2 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []changefeed.ChangeEvent{
		{Kind: changefeed.InsertedKind, ID: "c1"},
		{Kind: changefeed.DeletedKind, ID: "c1"},
	}, sink.published())

	cancel()
	assert.NoError(t, <-done)
}

func TestRelay_Dropped(t *testing.T) {
	broker := pubsub.NewBroker[changefeed.ChangeEvent](logr.Discard(), "relay-test")
	relay := New(logr.Discard(), &fakeSink{}, broker)

	done := make(chan error)
	go func() {
		done <- relay.Start(context.Background())
	}()
	require.Eventually(t, func() bool { return broker.Subscribers() == 1 }, 5*time.Second, 10*time.Millisecond)

	// closing the broker ends all subscriptions
	broker.Close()
	assert.ErrorIs(t, <-done, ErrSubscriptionDropped)
}

type fakeSink struct {
	fail   map[string]bool
	events []changefeed.ChangeEvent
	mu     sync.Mutex
}

func (f *fakeSink) Name() string { return "fake" }

func (f *fakeSink) Publish(_ context.Context, event changefeed.ChangeEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail[event.ID] {
		return errors.New("publish failed")
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeSink) Close() {}

func (f *fakeSink) published() []changefeed.ChangeEvent {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.events
}
