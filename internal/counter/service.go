package counter

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/datapowersync/counters/internal"
	"github.com/datapowersync/counters/internal/changefeed"
	"github.com/datapowersync/counters/internal/logr"
	"github.com/datapowersync/counters/internal/pubsub"
	"github.com/gorilla/mux"
)

type (
	Service struct {
		logr.Logger

		store  Store
		events pubsub.Subscriber[changefeed.ChangeEvent]
		api    *api
		stream *stream
	}

	Options struct {
		logr.Logger

		Store Store
		// Events is the source of change events for watchers.
		Events pubsub.Subscriber[changefeed.ChangeEvent]
	}
)

func NewService(opts Options) *Service {
	svc := &Service{
		Logger: opts.Logger.WithValues("component", "counters"),
		store:  opts.Store,
		events: opts.Events,
	}
	svc.api = &api{Service: svc}
	svc.stream = &stream{Service: svc, Logger: svc.Logger}
	return svc
}

// AddHandlers adds the counter routes. Stream routes are added first so that
// they take precedence over /counters/{id}.
func (s *Service) AddHandlers(r *mux.Router) {
	s.stream.addHandlers(r)
	s.api.addHandlers(r)
}

// Watch subscribes the caller to a stream of counter change events. The
// subscription ends when ctx is canceled or the returned func is called.
func (s *Service) Watch(ctx context.Context) (<-chan changefeed.ChangeEvent, func()) {
	return s.events.Subscribe(ctx)
}

func (s *Service) Create(ctx context.Context, opts CreateOptions) (*Counter, error) {
	if err := checkRange("count", opts.Count); err != nil {
		return nil, err
	}
	c := newCounter(opts)
	if err := s.store.Create(ctx, c); err != nil {
		s.Error(err, "creating counter", "counter", c)
		return nil, err
	}
	s.V(1).Info("created counter", "counter", c)
	return c, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Counter, error) {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("retrieving counter %s: %w", id, err)
	}
	return c, nil
}

func (s *Service) List(ctx context.Context, opts ListOptions) ([]*Counter, error) {
	counters, err := s.store.List(ctx, opts)
	if err != nil {
		s.Error(err, "listing counters")
		return nil, err
	}
	return counters, nil
}

// Latest retrieves the most recently created counter.
func (s *Service) Latest(ctx context.Context, opts ListOptions) (*Counter, error) {
	c, err := s.store.Latest(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("retrieving latest counter: %w", err)
	}
	return c, nil
}

func (s *Service) Update(ctx context.Context, id string, opts UpdateOptions) (*Counter, error) {
	if opts.Count == nil {
		return nil, &internal.ErrMissingParameter{Parameter: "count"}
	}
	if err := checkRange("count", *opts.Count); err != nil {
		return nil, err
	}
	c, err := s.store.SetCount(ctx, id, *opts.Count)
	if err != nil {
		s.Error(err, "updating counter", "id", id)
		return nil, err
	}
	s.V(1).Info("updated counter", "counter", c)
	return c, nil
}

// Increment adds an amount to a counter's count. The current count is read
// and then the new count written, so concurrent increments of the same
// counter can overwrite one another.
func (s *Service) Increment(ctx context.Context, id string, opts IncrementOptions) (*Counter, error) {
	amount := 1
	if opts.Amount != nil {
		amount = *opts.Amount
	}
	if err := checkRange("amount", amount); err != nil {
		return nil, err
	}
	current, err := s.store.Get(ctx, id)
	if err != nil {
		s.Error(err, "incrementing counter", "id", id)
		return nil, err
	}
	if err := checkRange("amount", current.Count+amount); err != nil {
		return nil, err
	}
	c, err := s.store.SetCount(ctx, id, current.Count+amount)
	if err != nil {
		s.Error(err, "incrementing counter", "id", id)
		return nil, err
	}
	s.V(1).Info("incremented counter", "counter", c, "amount", amount)
	return c, nil
}

// Delete deletes a counter. Deleting a counter that does not exist is not an
// error.
func (s *Service) Delete(ctx context.Context, id string) (DeleteResult, error) {
	if err := s.store.Delete(ctx, id); err != nil {
		if !errors.Is(err, internal.ErrResourceNotFound) {
			s.Error(err, "deleting counter", "id", id)
			return DeleteResult{}, err
		}
		s.V(1).Info("deleted non-existent counter", "id", id)
	} else {
		s.V(1).Info("deleted counter", "id", id)
	}
	return DeleteResult{Success: true, ID: id}, nil
}

// checkRange rejects counts that do not fit the 32-bit count column.
func checkRange(param string, n int) error {
	if n < math.MinInt32 || n > math.MaxInt32 {
		return &internal.ErrInvalidParameter{Parameter: param, Reason: "count out of range"}
	}
	return nil
}
