// Package changefeed attaches to a row-level change feed for the counters
// table and relays normalized change events to subscribers.
package changefeed

import (
	"errors"
	"fmt"
	"log/slog"
)

const (
	InsertAction Action = "INSERT"
	UpdateAction Action = "UPDATE"
	DeleteAction Action = "DELETE"

	InsertedKind Kind = "inserted"
	UpdatedKind  Kind = "updated"
	DeletedKind  Kind = "deleted"
)

var (
	ErrUnknownAction = errors.New("unknown database action")
	ErrMissingID     = errors.New("change is missing a row id")
	ErrOtherTable    = errors.New("change is for a different table")
)

type (
	// Action is the action that was carried out on a database table
	Action string

	// Kind is the kind of change a ChangeEvent represents.
	Kind string

	// RawChange is a row change as reported by a Source, before normalization.
	RawChange struct {
		Table  string         `json:"table"`  // table on which the change occurred
		Action Action         `json:"action"` // INSERT/UPDATE/DELETE
		Old    map[string]any `json:"old"`    // row before the change, possibly only its key
		New    map[string]any `json:"new"`    // row after the change
	}

	// ChangeEvent is a normalized row change. Deleted events carry only the
	// ID of the deleted row.
	ChangeEvent struct {
		Kind   Kind           `json:"kind"`
		ID     string         `json:"id"`
		Record map[string]any `json:"record,omitempty"`
	}
)

// Normalize converts a raw change for the given table into a ChangeEvent.
func Normalize(table string, change RawChange) (ChangeEvent, error) {
	if change.Table != table {
		return ChangeEvent{}, fmt.Errorf("%w: %s", ErrOtherTable, change.Table)
	}
	switch change.Action {
	case DeleteAction:
		id, ok := rowID(change.Old)
		if !ok {
			return ChangeEvent{}, ErrMissingID
		}
		return ChangeEvent{Kind: DeletedKind, ID: id}, nil
	case InsertAction, UpdateAction:
		id, ok := rowID(change.New)
		if !ok {
			return ChangeEvent{}, ErrMissingID
		}
		kind := InsertedKind
		if change.Action == UpdateAction {
			kind = UpdatedKind
		}
		return ChangeEvent{Kind: kind, ID: id, Record: change.New}, nil
	default:
		return ChangeEvent{}, fmt.Errorf("%w: %s", ErrUnknownAction, change.Action)
	}
}

func rowID(row map[string]any) (string, bool) {
	id, ok := row["id"].(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

func (e ChangeEvent) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("kind", string(e.Kind)),
		slog.String("id", e.ID),
	)
}
