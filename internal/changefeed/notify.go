package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/datapowersync/counters/internal/logr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultNotifyChannel is the postgres notification channel to which the
// counters table trigger sends changes.
const DefaultNotifyChannel = "counter_changes"

var _ Source = (*NotifySource)(nil)

type (
	// NotifySource is a Source backed by postgres LISTEN/NOTIFY. A trigger on
	// the table sends each row change as a JSON payload to the channel.
	NotifySource struct {
		logr.Logger

		pool    pool
		channel string
		timeout time.Duration
	}

	NotifySourceOptions struct {
		logr.Logger

		Pool             *pgxpool.Pool
		Channel          string
		SubscribeTimeout time.Duration
	}

	// pool from which to acquire a dedicated connection to postgres
	pool interface {
		Acquire(ctx context.Context) (*pgxpool.Conn, error)
	}
)

func NewNotifySource(opts NotifySourceOptions) *NotifySource {
	s := &NotifySource{
		Logger:  opts.Logger.WithValues("component", "notify_source"),
		pool:    opts.Pool,
		channel: opts.Channel,
		timeout: opts.SubscribeTimeout,
	}
	if s.channel == "" {
		s.channel = DefaultNotifyChannel
	}
	if s.timeout == 0 {
		s.timeout = DefaultSubscribeTimeout
	}
	return s
}

// Start listens for notifications on the channel, relaying them to the
// handler. Upon losing its connection it reconnects with exponential backoff.
func (s *NotifySource) Start(ctx context.Context, h Handler) error {
	bo := backoff.NewExponentialBackOff(backoff.WithMaxElapsedTime(0))
	op := func() error {
		conn, err := s.subscribe(ctx, h)
		if err != nil {
			return err
		}
		defer conn.Release()

		// Successfully subscribed, so reset backoff for the next failure.
		bo.Reset()

		for {
			notification, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() != nil {
					// parent has decided to shutdown so exit without error
					return nil
				}
				h.HandleStatus(StatusError, err)
				// destroy the connection rather than return it to the pool
				conn.Conn().Close(context.Background())
				return err
			}
			change, err := parseNotification(notification.Payload)
			if err != nil {
				s.Error(err, "unmarshaling postgres notification", "payload", notification.Payload)
				continue
			}
			h.HandleChange(ctx, change)
		}
	}
	policy := backoff.WithContext(bo, ctx)
	err := backoff.RetryNotify(op, policy, func(err error, next time.Duration) {
		s.Error(err, "reconnecting to change feed", "backoff", next)
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// subscribe acquires a dedicated connection and issues LISTEN, reporting
// StatusTimedOut if this takes longer than the subscribe timeout.
func (s *NotifySource) subscribe(ctx context.Context, h Handler) (*pgxpool.Conn, error) {
	subCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	fail := func(err error) error {
		switch {
		case ctx.Err() != nil:
			return backoff.Permanent(ctx.Err())
		case errors.Is(subCtx.Err(), context.DeadlineExceeded):
			h.HandleStatus(StatusTimedOut, err)
		default:
			h.HandleStatus(StatusError, err)
		}
		return err
	}

	conn, err := s.pool.Acquire(subCtx)
	if err != nil {
		return nil, fail(fmt.Errorf("acquiring postgres connection: %w", err))
	}
	if _, err := conn.Exec(subCtx, "LISTEN "+pgx.Identifier{s.channel}.Sanitize()); err != nil {
		conn.Release()
		return nil, fail(fmt.Errorf("listening on channel %s: %w", s.channel, err))
	}
	h.HandleStatus(StatusSubscribed, nil)
	return conn, nil
}

func parseNotification(payload string) (RawChange, error) {
	var change RawChange
	if err := json.Unmarshal([]byte(payload), &change); err != nil {
		return RawChange{}, err
	}
	return change, nil
}
