package snapshot

import (
	"fmt"

	"packrat-go/internal/config"
	"packrat-go/internal/replay"
)

// NewFromConfig creates a Snapshotter based on the snapshots config type.
func NewFromConfig(cfg config.SnapshotsConfig, dataset string) (replay.Snapshotter, error) {
	switch cfg.Type {
	case "zfs":
		if dataset == "" {
			return nil, fmt.Errorf("zfs snapshots require dataset to be set")
		}
		return NewZFS(dataset), nil
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown snapshots type: %s", cfg.Type)
	}
}
