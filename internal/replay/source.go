package replay

import (
	"time"

	"packrat-go/internal/model"
)

// EventSource is the ordered, durable record of observed file changes.
// The engine only requires ordered iteration plus the two aggregate queries
// used by the initial-state bootstrap.
type EventSource interface {
	// MinTimestamp returns the earliest event timestamp in the store.
	MinTimestamp() (time.Time, error)

	// TombstonedPaths returns every path whose earliest event is a delete:
	// paths that existed before the retained history begins and whose
	// creation was never observed.
	TombstonedPaths() ([]string, error)

	// Events returns a cursor over all events ordered ascending by
	// timestamp. The cursor is single pass and lazy; the caller must close it.
	Events() (Cursor, error)
}

// Cursor iterates events in timestamp order, one row at a time.
type Cursor interface {
	// Next advances the cursor and reports whether an event is available.
	Next() bool

	// Event decodes the current event. An undecodable or unknown-variant
	// row is a fatal data error.
	Event() (model.Event, error)

	// Err returns the first error encountered during iteration.
	Err() error

	// Close releases the underlying resources.
	Close() error
}
