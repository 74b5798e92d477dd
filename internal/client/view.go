package client

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/datapowersync/counters/internal/changefeed"
	"github.com/datapowersync/counters/internal/counter"
)

// Syncer is the subset of the client used to keep a view current.
type Syncer interface {
	Watch(ctx context.Context) (<-chan changefeed.ChangeEvent, error)
	List(ctx context.Context, opts counter.ListOptions) ([]*counter.Counter, error)
}

// View is a local replica of counters, kept current by applying change
// events. Applying an event is idempotent: a client receives the changes it
// makes itself as well as those of others, so the same state may arrive both
// in a response and in an event.
type View struct {
	counters map[string]*counter.Counter
	mu       sync.RWMutex
}

func NewView() *View {
	return &View{counters: make(map[string]*counter.Counter)}
}

// Reset replaces the contents of the view.
func (v *View) Reset(counters []*counter.Counter) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.counters = make(map[string]*counter.Counter, len(counters))
	for _, c := range counters {
		v.counters[c.ID] = c
	}
}

// Put adds or replaces a counter in the view.
func (v *View) Put(c *counter.Counter) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.counters[c.ID] = c
}

// Apply applies a change event to the view.
func (v *View) Apply(event changefeed.ChangeEvent) error {
	switch event.Kind {
	case changefeed.InsertedKind, changefeed.UpdatedKind:
		c, err := recordToCounter(event.Record)
		if err != nil {
			return fmt.Errorf("decoding %s event for %s: %w", event.Kind, event.ID, err)
		}
		c.ID = event.ID
		v.Put(c)
	case changefeed.DeletedKind:
		v.mu.Lock()
		delete(v.counters, event.ID)
		v.mu.Unlock()
	default:
		return fmt.Errorf("%w: %s", changefeed.ErrUnknownAction, event.Kind)
	}
	return nil
}

// Get retrieves a counter from the view.
func (v *View) Get(id string) (*counter.Counter, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	c, ok := v.counters[id]
	return c, ok
}

// List lists counters in the view, newest first.
func (v *View) List() []*counter.Counter {
	v.mu.RLock()
	defer v.mu.RUnlock()

	list := make([]*counter.Counter, 0, len(v.counters))
	for _, c := range v.counters {
		list = append(list, c)
	}
	slices.SortFunc(list, func(a, b *counter.Counter) int {
		if n := b.CreatedAt.Compare(a.CreatedAt); n != 0 {
			return n
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return list
}

// Sync populates the view with the server's counters and then keeps it
// current until ctx is canceled, calling fn after each event is applied.
// The view subscribes before loading counters so that no change is missed;
// a change that is both loaded and received is applied harmlessly twice.
func (v *View) Sync(ctx context.Context, c Syncer, fn func(changefeed.ChangeEvent)) error {
	events, err := c.Watch(ctx)
	if err != nil {
		return fmt.Errorf("watching counters: %w", err)
	}
	list, err := c.List(ctx, counter.ListOptions{})
	if err != nil {
		return fmt.Errorf("listing counters: %w", err)
	}
	v.Reset(list)

	for event := range events {
		if err := v.Apply(event); err != nil {
			return err
		}
		if fn != nil {
			fn(event)
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("event stream ended")
}

// recordToCounter decodes a record keyed by column name into a counter.
func recordToCounter(record map[string]any) (*counter.Counter, error) {
	b, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	var c counter.Counter
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
