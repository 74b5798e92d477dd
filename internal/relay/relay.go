// Package relay forwards counter change events to external brokers, so that
// consumers outside the daemon observe the same stream as its subscribers.
package relay

import (
	"context"
	"errors"

	"github.com/datapowersync/counters/internal/changefeed"
	"github.com/datapowersync/counters/internal/logr"
	"github.com/datapowersync/counters/internal/pubsub"
)

// ErrSubscriptionDropped is returned when the broker drops the relay's
// subscription because it fell behind.
var ErrSubscriptionDropped = errors.New("relay subscription dropped by broker")

type (
	// Sink is an external destination for change events.
	Sink interface {
		// Name identifies the sink in logs and metrics.
		Name() string
		Publish(ctx context.Context, event changefeed.ChangeEvent) error
		Close()
	}

	// Relay subscribes to change events and publishes each to a sink.
	Relay struct {
		logr.Logger

		sink   Sink
		events pubsub.Subscriber[changefeed.ChangeEvent]
	}
)

func New(logger logr.Logger, sink Sink, events pubsub.Subscriber[changefeed.ChangeEvent]) *Relay {
	return &Relay{
		Logger: logger.WithValues("component", "relay", "sink", sink.Name()),
		sink:   sink,
		events: events,
	}
}

// Start relays events until ctx is canceled. Failures to publish an event are
// logged and the event skipped.
func (r *Relay) Start(ctx context.Context) error {
	events, unsubscribe := r.events.Subscribe(ctx)
	defer unsubscribe()

	for event := range events {
		if err := r.sink.Publish(ctx, event); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			relayed.WithLabelValues(r.sink.Name(), "error").Inc()
			r.Error(err, "relaying change event", "event", event)
			continue
		}
		relayed.WithLabelValues(r.sink.Name(), "ok").Inc()
		r.V(2).Info("relayed change event", "event", event)
	}
	if ctx.Err() != nil {
		return nil
	}
	return ErrSubscriptionDropped
}

// Close releases the sink's resources.
func (r *Relay) Close() {
	r.sink.Close()
}
