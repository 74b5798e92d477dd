package counter

import "context"

// Store persists counters. Listings are ordered by creation time, newest
// first, with ties broken by ID in descending order.
type Store interface {
	// Create persists a new counter.
	Create(ctx context.Context, c *Counter) error
	// Get retrieves a counter, returning internal.ErrResourceNotFound if it
	// does not exist.
	Get(ctx context.Context, id string) (*Counter, error)
	// List lists counters.
	List(ctx context.Context, opts ListOptions) ([]*Counter, error)
	// Latest retrieves the most recently created counter, returning
	// internal.ErrResourceNotFound if there are none.
	Latest(ctx context.Context, opts ListOptions) (*Counter, error)
	// SetCount sets the count of a counter, returning
	// internal.ErrResourceNotFound if it does not exist.
	SetCount(ctx context.Context, id string, count int) (*Counter, error)
	// Delete deletes a counter, returning internal.ErrResourceNotFound if it
	// does not exist.
	Delete(ctx context.Context, id string) error
}
