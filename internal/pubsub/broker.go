package pubsub

import (
	"context"
	"sync"

	"github.com/datapowersync/counters/internal/logr"
)

// DefaultBufferSize is the default capacity of each subscription's delivery
// buffer.
const DefaultBufferSize = 100

var (
	_ Publisher[any]  = (*Broker[any])(nil)
	_ Subscriber[any] = (*Broker[any])(nil)
)

type (
	// Broker fans out published events to subscribers. Delivery is
	// at-most-once: there is no persistence and no replay, and a subscriber
	// only receives events published while it is subscribed.
	Broker[T any] struct {
		logr.Logger

		name       string // identifies broker in metrics
		bufferSize int

		subs []*subscription[T] // in order of registration
		mu   sync.Mutex         // sync access to subs
	}

	subscription[T any] struct {
		ch     chan T
		closed bool
	}

	// BrokerOption configures a Broker.
	BrokerOption func(*brokerOptions)

	brokerOptions struct {
		bufferSize int
	}
)

// WithBufferSize sets the capacity of each subscription's delivery buffer.
// A subscriber whose buffer is full when an event is published is
// unsubscribed.
func WithBufferSize(size int) BrokerOption {
	return func(o *brokerOptions) {
		if size > 0 {
			o.bufferSize = size
		}
	}
}

// NewBroker constructs a broker. The name identifies the broker in logs and
// metrics.
func NewBroker[T any](logger logr.Logger, name string, opts ...BrokerOption) *Broker[T] {
	o := brokerOptions{bufferSize: DefaultBufferSize}
	for _, fn := range opts {
		fn(&o)
	}
	return &Broker[T]{
		Logger:     logger.WithValues("component", "broker", "broker", name),
		name:       name,
		bufferSize: o.bufferSize,
	}
}

// Subscribe subscribes the caller to a stream of events. The subscription
// ends when ctx is done or when the returned func is called, whichever comes
// first, at which point the channel is closed. Events delivered before the
// subscription ended remain readable from the channel.
func (b *Broker[T]) Subscribe(ctx context.Context) (<-chan T, func()) {
	sub := &subscription[T]{ch: make(chan T, b.bufferSize)}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	total := len(b.subs)
	b.mu.Unlock()

	subscribers.WithLabelValues(b.name).Inc()
	b.V(1).Info("subscribed", "subscribers", total)

	// when the context is canceled remove the subscriber
	done := make(chan struct{})
	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			close(done)
			b.unsubscribe(sub)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-done:
		}
	}()
	return sub.ch, unsubscribe
}

// Publish sends an event to every subscriber, in order of subscription.
// Publish never blocks: a subscriber whose buffer is full is unsubscribed and
// left to re-subscribe.
func (b *Broker[T]) Publish(event T) {
	published.WithLabelValues(b.name).Inc()

	b.mu.Lock()
	defer b.mu.Unlock()

	var full []*subscription[T]
	for _, sub := range b.subs {
		select {
		case sub.ch <- event:
		default:
			full = append(full, sub)
		}
	}
	// drop full subscribers before releasing the lock, so that they never
	// receive a later event having missed this one.
	for _, sub := range full {
		b.Error(nil, "unsubscribing full subscriber", "queue_length", b.bufferSize)
		dropped.WithLabelValues(b.name).Inc()
		b.remove(sub)
	}
	b.V(9).Info("published event", "subscribers", len(b.subs), "dropped", len(full))
}

// Subscribers returns the number of current subscribers.
func (b *Broker[T]) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.subs)
}

// Close terminates all subscriptions.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	subs := make([]*subscription[T], len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, sub := range subs {
		b.unsubscribe(sub)
	}
}

// unsubscribe removes the subscription and closes its channel. It is
// idempotent.
func (b *Broker[T]) unsubscribe(sub *subscription[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.remove(sub)
}

// remove removes the subscription and closes its channel, unless already
// removed. Caller must hold the lock.
func (b *Broker[T]) remove(sub *subscription[T]) {
	if sub.closed {
		return
	}
	sub.closed = true
	close(sub.ch)
	for i, s := range b.subs {
		if s == sub {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			break
		}
	}
	subscribers.WithLabelValues(b.name).Dec()
	b.V(1).Info("unsubscribed", "subscribers", len(b.subs))
}
