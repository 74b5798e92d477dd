package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/datapowersync/counters/internal/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"
)

var restarts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "counters",
	Subsystem: "daemon",
	Name:      "subsystem_restarts_total",
	Help:      "Total number of times a subsystem has been restarted following an error.",
}, []string{"subsystem"})

type (
	// Subsystem is a long-running part of the daemon, supervised by it and
	// restarted with exponential backoff whenever it fails.
	Subsystem struct {
		logr.Logger

		// Name identifies the subsystem in logs and metrics.
		Name string
		// System is invoked and supervised.
		System Startable
		// LockID, if non-nil, restricts the subsystem to running on one
		// daemon at a time amongst those sharing a database, by holding the
		// postgres advisory lock with this ID whilst running. DB must then
		// be non-nil.
		LockID *int64
		DB     subsystemDB
	}

	// Startable blocks until its context is canceled or it fails.
	Startable interface {
		Start(ctx context.Context) error
	}

	// starter is a Startable that signals once it is up and running.
	starter interface {
		Started() <-chan struct{}
	}

	subsystemDB interface {
		WaitAndLock(ctx context.Context, id int64, fn func(context.Context) error) error
	}
)

// Start runs the subsystem in the errgroup, restarting it until ctx is
// canceled.
func (s *Subsystem) Start(ctx context.Context, g *errgroup.Group) error {
	if s.LockID != nil && s.DB == nil {
		return errors.New("lock ID requires that DB also be set")
	}
	run := func(ctx context.Context) error {
		s.V(1).Info("started subsystem", "subsystem", s.Name)
		return s.System.Start(ctx)
	}
	op := func() error {
		var err error
		if s.LockID != nil {
			// blocks until the lock is obtained
			err = s.DB.WaitAndLock(ctx, *s.LockID, run)
		} else {
			err = run(ctx)
		}
		if ctx.Err() != nil {
			s.V(1).Info("stopped subsystem", "subsystem", s.Name)
			return nil
		}
		if err == nil {
			err = fmt.Errorf("subsystem exited unexpectedly")
		}
		return err
	}
	policy := backoff.WithContext(backoff.NewExponentialBackOff(backoff.WithMaxElapsedTime(0)), ctx)
	g.Go(func() error {
		return backoff.RetryNotify(op, policy, func(err error, next time.Duration) {
			restarts.WithLabelValues(s.Name).Inc()
			s.Error(err, "restarting subsystem", "subsystem", s.Name, "backoff", next)
		})
	})
	return nil
}

// waitStarted waits for the subsystem to signal it has started, if it is
// capable of doing so.
func (s *Subsystem) waitStarted(ctx context.Context, timeout time.Duration) error {
	st, ok := s.System.(starter)
	if !ok {
		return nil
	}
	select {
	case <-st.Started():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(timeout):
		return fmt.Errorf("timed out waiting for subsystem to start: %s", s.Name)
	}
}
