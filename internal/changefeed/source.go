package changefeed

import (
	"context"
	"time"
)

const (
	// StatusSubscribed is reported once a source is attached to the feed.
	StatusSubscribed Status = "subscribed"
	// StatusError is reported when the connection to the feed fails.
	StatusError Status = "error"
	// StatusTimedOut is reported when attaching to the feed takes too long.
	StatusTimedOut Status = "timed_out"
	// StatusClosed is reported once the listener has detached from the feed.
	StatusClosed Status = "closed"

	// DefaultSubscribeTimeout is the default time permitted for a source to
	// attach to its feed before reporting StatusTimedOut.
	DefaultSubscribeTimeout = 10 * time.Second
)

type (
	// Status is the state of a source's connection to its feed.
	Status string

	// Source is an external feed of row-level changes. Start blocks until ctx
	// is canceled, reporting changes and connection state transitions to the
	// handler. Reconnecting after a dropped connection is the source's
	// responsibility.
	Source interface {
		Start(ctx context.Context, h Handler) error
	}

	// Handler receives changes and connection state transitions from a
	// Source. Changes are delivered sequentially, in feed order.
	Handler interface {
		HandleChange(ctx context.Context, change RawChange)
		HandleStatus(status Status, err error)
	}
)
