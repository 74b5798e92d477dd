package changefeed

import (
	"context"
	"sync"

	"github.com/datapowersync/counters/internal/logr"
	"github.com/datapowersync/counters/internal/pubsub"
)

var _ Handler = (*Listener)(nil)

type (
	// Listener attaches to a Source for the lifetime of the process,
	// normalizing each change and publishing it as a ChangeEvent.
	Listener struct {
		logr.Logger

		source    Source
		table     string
		publisher pubsub.Publisher[ChangeEvent]

		started   chan struct{} // closed upon first subscription to feed
		startOnce sync.Once

		status Status
		mu     sync.Mutex // sync access to status
	}

	ListenerOptions struct {
		logr.Logger

		Source    Source
		Table     string
		Publisher pubsub.Publisher[ChangeEvent]
	}
)

func NewListener(opts ListenerOptions) *Listener {
	return &Listener{
		Logger:    opts.Logger.WithValues("component", "listener", "table", opts.Table),
		source:    opts.Source,
		table:     opts.Table,
		publisher: opts.Publisher,
		started:   make(chan struct{}),
	}
}

// Start attaches to the source and blocks until ctx is canceled or the source
// fails.
func (l *Listener) Start(ctx context.Context) error {
	defer l.HandleStatus(StatusClosed, nil)

	return l.source.Start(ctx, l)
}

// Started returns a channel that is closed once the listener has first
// subscribed to the feed.
func (l *Listener) Started() <-chan struct{} {
	return l.started
}

// Status returns the current state of the connection to the feed.
func (l *Listener) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.status
}

// HandleStatus records a connection state transition.
func (l *Listener) HandleStatus(status Status, err error) {
	l.mu.Lock()
	previous := l.status
	l.status = status
	l.mu.Unlock()

	setStatusMetric(status)

	switch status {
	case StatusSubscribed:
		l.Info("subscribed to change feed")
		l.startOnce.Do(func() { close(l.started) })
	case StatusError, StatusTimedOut:
		l.Error(err, "change feed subscription failed", "status", status)
	default:
		if previous != status {
			l.V(1).Info("change feed status", "status", status)
		}
	}
}

// HandleChange normalizes a change and publishes it.
func (l *Listener) HandleChange(ctx context.Context, change RawChange) {
	event, err := Normalize(l.table, change)
	if err != nil {
		l.Error(err, "discarding change", "table", change.Table, "action", change.Action)
		return
	}
	changes.WithLabelValues(string(event.Kind)).Inc()
	l.V(2).Info("received change", "event", event)
	l.publisher.Publish(event)
}
