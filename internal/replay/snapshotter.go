package replay

import (
	"fmt"
	"time"
)

// Snapshotter creates and lists named, immutable checkpoints of the target
// tree. Listing happens once at startup to build the idempotency set;
// creation is best-effort.
type Snapshotter interface {
	// Create takes a snapshot with the given name.
	Create(name string) error

	// List returns the names of all existing snapshots.
	List() (map[string]bool, error)
}

// SnapshotName derives the deterministic snapshot name for a triggering
// event timestamp: {prefix}_{YYYYMMDD_HHMMSS}_{milliseconds}. Replaying the
// same event set always yields the same names, which is what makes
// skip-if-exists resumption safe.
func SnapshotName(prefix string, t time.Time) string {
	millis := t.Nanosecond() / int(time.Millisecond)
	return fmt.Sprintf("%s_%s_%03d", prefix, t.Format("20060102_150405"), millis)
}
