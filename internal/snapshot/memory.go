package snapshot

import (
	"sync"

	"packrat-go/internal/replay"
)

// Memory is an in-memory Snapshotter. It records names without touching any
// filesystem, for tests and dry runs.
type Memory struct {
	mu    sync.Mutex
	names []string
}

// NewMemory creates an empty in-memory snapshotter.
func NewMemory() *Memory {
	return &Memory{}
}

// Create records the snapshot name.
func (m *Memory) Create(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.names = append(m.names, name)
	return nil
}

// List returns the set of recorded names.
func (m *Memory) List() (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make(map[string]bool, len(m.names))
	for _, name := range m.names {
		names[name] = true
	}
	return names, nil
}

// Names returns the recorded names in creation order.
func (m *Memory) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.names...)
}

// Compile-time check that Memory implements replay.Snapshotter
var _ replay.Snapshotter = (*Memory)(nil)
