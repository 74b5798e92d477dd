package counter_test

import (
	"context"
	"testing"
	"time"

	"github.com/datapowersync/counters/internal/changefeed"
	"github.com/datapowersync/counters/internal/counter"
	"github.com/datapowersync/counters/internal/inmem"
	"github.com/datapowersync/counters/internal/logr"
	"github.com/datapowersync/counters/internal/pubsub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testStack struct {
	*counter.Service

	broker *pubsub.Broker[changefeed.ChangeEvent]
}

// newTestStack wires a counter service to an in-memory store whose changes
// are relayed via a listener and broker back to the service's watchers.
func newTestStack(t *testing.T, store counter.Store, source changefeed.Source) *testStack {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	broker := pubsub.NewBroker[changefeed.ChangeEvent](logr.Discard(), "counters")
	listener := changefeed.NewListener(changefeed.ListenerOptions{
		Logger:    logr.Discard(),
		Source:    source,
		Table:     counter.TableName,
		Publisher: broker,
	})
	go listener.Start(ctx)

	select {
	case <-listener.Started():
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for listener to subscribe")
	}

	svc := counter.NewService(counter.Options{
		Logger: logr.Discard(),
		Store:  store,
		Events: broker,
	})
	return &testStack{Service: svc, broker: broker}
}

func newInmemStack(t *testing.T) *testStack {
	store := inmem.NewStore()
	return newTestStack(t, store, store)
}

// waitSubscribers waits until the broker has the given number of
// subscribers.
func (s *testStack) waitSubscribers(t *testing.T, n int) {
	t.Helper()

	assert.Eventually(t, func() bool {
		return s.broker.Subscribers() == n
	}, 5*time.Second, 10*time.Millisecond)
}

// next receives the next event, failing the test if none arrives in time.
func next(t *testing.T, events <-chan changefeed.ChangeEvent) changefeed.ChangeEvent {
	t.Helper()

	select {
	case event, ok := <-events:
		require.True(t, ok, "subscription closed unexpectedly")
		return event
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for event")
		return changefeed.ChangeEvent{}
	}
}

// assertNoEvent asserts no event is pending.
func assertNoEvent(t *testing.T, events <-chan changefeed.ChangeEvent) {
	t.Helper()

	select {
	case event := <-events:
		t.Errorf("unexpected event: %v", event)
	default:
	}
}
