// Package pubsub provides process-local publishing and subscribing of events.
package pubsub

import "context"

type (
	// Publisher publishes events to subscribers.
	Publisher[T any] interface {
		Publish(event T)
	}

	// Subscriber provides subscriptions to events. The returned channel is
	// closed once the subscription ends, either because ctx is done, the
	// returned func is called, or the publisher dropped the subscription.
	Subscriber[T any] interface {
		Subscribe(ctx context.Context) (<-chan T, func())
	}
)
