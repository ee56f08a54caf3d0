// Package snapshot provides Snapshotter implementations over the
// copy-on-write filesystem's CLI, plus an in-memory variant for tests.
package snapshot

import (
	"fmt"
	"os/exec"
	"strings"

	"packrat-go/internal/replay"
)

// ZFS snapshots a dataset by shelling out to the zfs command.
type ZFS struct {
	dataset string

	// run executes a command and returns its combined output. Overridable
	// in tests.
	run func(name string, args ...string) ([]byte, error)
}

// NewZFS creates a snapshotter for the given dataset (e.g. "tank/dropbox").
func NewZFS(dataset string) *ZFS {
	return &ZFS{
		dataset: dataset,
		run: func(name string, args ...string) ([]byte, error) {
			return exec.Command(name, args...).CombinedOutput()
		},
	}
}

// Create takes a snapshot named dataset@name.
func (z *ZFS) Create(name string) error {
	out, err := z.run("zfs", "snapshot", fmt.Sprintf("%s@%s", z.dataset, name))
	if err != nil {
		return fmt.Errorf("zfs snapshot %s@%s: %w: %s", z.dataset, name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// List returns the names of all snapshots of the dataset, stripped of the
// dataset@ prefix.
func (z *ZFS) List() (map[string]bool, error) {
	out, err := z.run("zfs", "list", "-H", "-o", "name", "-t", "snapshot", z.dataset)
	if err != nil {
		return nil, fmt.Errorf("zfs list -t snapshot %s: %w: %s", z.dataset, err, strings.TrimSpace(string(out)))
	}

	names := make(map[string]bool)
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if _, name, found := strings.Cut(line, "@"); found {
			names[name] = true
		}
	}
	return names, nil
}

// Compile-time check that ZFS implements replay.Snapshotter
var _ replay.Snapshotter = (*ZFS)(nil)
