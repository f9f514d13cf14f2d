package directory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryDirectory is an in-memory Directory for single-host deployments and
// static peer lists.
type MemoryDirectory struct {
	mu   sync.RWMutex
	data map[uint16]Entry
}

// NewMemoryDirectory returns a MemoryDirectory seeded with entries.
func NewMemoryDirectory(entries ...Entry) *MemoryDirectory {
	d := &MemoryDirectory{data: make(map[uint16]Entry, len(entries))}
	for _, e := range entries {
		d.data[e.NodeID] = e
	}
	return d
}

func (d *MemoryDirectory) Register(_ context.Context, e Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.RegisteredAt.IsZero() {
		e.RegisteredAt = time.Now().UTC()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.data[e.NodeID] = e
	return nil
}

func (d *MemoryDirectory) Deregister(_ context.Context, nodeID uint16) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.data[nodeID]; !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, nodeID)
	}
	delete(d.data, nodeID)
	return nil
}

func (d *MemoryDirectory) Lookup(_ context.Context, nodeID uint16) (Entry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.data[nodeID]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %d", ErrNotFound, nodeID)
	}
	return e, nil
}

func (d *MemoryDirectory) List(_ context.Context) ([]Entry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Entry, 0, len(d.data))
	for _, e := range d.data {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out, nil
}

func (d *MemoryDirectory) Close() error { return nil }
