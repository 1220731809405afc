package presence

import (
	"context"
	"sort"
	"sync"

	"github.com/spec-kit/support-chat/internal/domain"
)

type memoryEntry struct {
	role  domain.Role
	conns int
}

// MemoryRegistry is a process-local Registry.
type MemoryRegistry struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{entries: make(map[string]*memoryEntry)}
}

func (r *MemoryRegistry) Set(_ context.Context, username string, role domain.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[username]
	if !ok {
		entry = &memoryEntry{}
		r.entries[username] = entry
	}
	entry.role = role
	entry.conns++
	return nil
}

func (r *MemoryRegistry) Remove(_ context.Context, username string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[username]
	if !ok {
		return true, nil
	}
	entry.conns--
	if entry.conns > 0 {
		return false, nil
	}
	delete(r.entries, username)
	return true, nil
}

func (r *MemoryRegistry) Exists(_ context.Context, username string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[username]
	return ok, nil
}

func (r *MemoryRegistry) Snapshot(_ context.Context) ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Entry, 0, len(r.entries))
	for name, entry := range r.entries {
		result = append(result, Entry{Username: name, Role: entry.role})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Username < result[j].Username })
	return result, nil
}
