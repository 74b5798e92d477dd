// Package counter provides the counter resource: a shared, mutable count
// that clients create, increment, update and delete, and whose changes are
// observed live.
package counter

import (
	"log/slog"
	"time"

	"github.com/datapowersync/counters/internal"
	"github.com/google/uuid"
)

// TableName is the postgres table in which counters are persisted.
const TableName = "power_sync_counters"

type (
	Counter struct {
		ID        string    `json:"id" db:"id"`
		Count     int       `json:"count" db:"count"`
		OwnerID   *string   `json:"owner_id" db:"owner_id"`
		CreatedAt time.Time `json:"created_at" db:"created_at"`
	}

	CreateOptions struct {
		Count   int     `json:"count"`
		OwnerID *string `json:"owner_id,omitempty"`
	}

	UpdateOptions struct {
		Count *int `json:"count"`
	}

	IncrementOptions struct {
		// Amount to add to the count. Defaults to 1.
		Amount *int `json:"amount,omitempty"`
	}

	// ListOptions filters a listing of counters.
	ListOptions struct {
		OwnerID *string `schema:"owner_id,omitempty" json:"owner_id,omitempty"`
	}

	// DeleteResult acknowledges a deletion.
	DeleteResult struct {
		Success bool   `json:"success"`
		ID      string `json:"id"`
	}
)

func newCounter(opts CreateOptions) *Counter {
	return &Counter{
		ID:        uuid.NewString(),
		Count:     opts.Count,
		OwnerID:   opts.OwnerID,
		CreatedAt: internal.CurrentTimestamp(),
	}
}

func (c *Counter) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("id", c.ID),
		slog.Int("count", c.Count),
	}
	if c.OwnerID != nil {
		attrs = append(attrs, slog.String("owner_id", *c.OwnerID))
	}
	return slog.GroupValue(attrs...)
}
