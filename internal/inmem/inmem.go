/*
Package inmem implements a counter store in memory using purely Go constructs.
It doubles as a change feed, emitting a change for every successful mutation,
so that a daemon can run end to end without postgres.
*/
package inmem

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/datapowersync/counters/internal"
	"github.com/datapowersync/counters/internal/changefeed"
	"github.com/datapowersync/counters/internal/counter"
)

var (
	_ counter.Store     = (*Store)(nil)
	_ changefeed.Source = (*Store)(nil)
)

// Store is an in-memory counter store.
type Store struct {
	counters map[string]counter.Counter
	// handler receives changes; nil until the feed is started.
	handler changefeed.Handler
	// sync access to counters and handler; mutations are reported to the
	// handler whilst held so that changes are reported in the order they
	// are made.
	mu sync.Mutex
}

func NewStore() *Store {
	return &Store{counters: make(map[string]counter.Counter)}
}

// Start attaches the handler to the store's change feed, blocking until ctx
// is canceled. Mutations made before Start are not reported.
func (s *Store) Start(ctx context.Context, h changefeed.Handler) error {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()

	h.HandleStatus(changefeed.StatusSubscribed, nil)

	<-ctx.Done()

	s.mu.Lock()
	s.handler = nil
	s.mu.Unlock()
	return nil
}

func (s *Store) Create(ctx context.Context, c *counter.Counter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.counters[c.ID]; ok {
		return internal.ErrResourceAlreadyExists
	}
	s.counters[c.ID] = *c
	s.emit(ctx, changefeed.InsertAction, *c)
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*counter.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[id]
	if !ok {
		return nil, internal.ErrResourceNotFound
	}
	return &c, nil
}

func (s *Store) List(ctx context.Context, opts counter.ListOptions) ([]*counter.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.list(opts), nil
}

func (s *Store) Latest(ctx context.Context, opts counter.ListOptions) (*counter.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counters := s.list(opts)
	if len(counters) == 0 {
		return nil, internal.ErrResourceNotFound
	}
	return counters[0], nil
}

func (s *Store) SetCount(ctx context.Context, id string, count int) (*counter.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[id]
	if !ok {
		return nil, internal.ErrResourceNotFound
	}
	c.Count = count
	s.counters[id] = c
	s.emit(ctx, changefeed.UpdateAction, c)
	return &c, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[id]
	if !ok {
		return internal.ErrResourceNotFound
	}
	delete(s.counters, id)
	s.emit(ctx, changefeed.DeleteAction, c)
	return nil
}

// list returns counters newest first, matching the ordering of the postgres
// store. Caller must hold the lock.
func (s *Store) list(opts counter.ListOptions) []*counter.Counter {
	var counters []*counter.Counter
	for _, c := range s.counters {
		if opts.OwnerID != nil && (c.OwnerID == nil || *c.OwnerID != *opts.OwnerID) {
			continue
		}
		counters = append(counters, &c)
	}
	slices.SortFunc(counters, func(a, b *counter.Counter) int {
		if n := b.CreatedAt.Compare(a.CreatedAt); n != 0 {
			return n
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return counters
}

// emit reports a change to the handler, if any. Caller must hold the lock.
func (s *Store) emit(ctx context.Context, action changefeed.Action, c counter.Counter) {
	if s.handler == nil {
		return
	}
	change := changefeed.RawChange{
		Table:  counter.TableName,
		Action: action,
	}
	if action == changefeed.DeleteAction {
		change.Old = map[string]any{"id": c.ID}
	} else {
		change.New = toRecord(c)
	}
	s.handler.HandleChange(ctx, change)
}

// toRecord converts a counter into a record keyed by column name.
func toRecord(c counter.Counter) map[string]any {
	record := map[string]any{
		"id":         c.ID,
		"count":      c.Count,
		"owner_id":   nil,
		"created_at": c.CreatedAt,
	}
	if c.OwnerID != nil {
		record["owner_id"] = *c.OwnerID
	}
	return record
}
