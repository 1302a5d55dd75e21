package build

import (
	"fmt"
	"sort"
	"sync"
)

// Registry manages registered backends and selects one for a workspace.
type Registry struct {
	mu       sync.RWMutex
	backends []Registration
}

// NewRegistry creates a registry with the standard backends installed.
func NewRegistry() *Registry {
	r := &Registry{}
	r.Register(NewGoBackend(), PriorityHigh)
	r.Register(NewNodeBackend(), PriorityHigh)
	r.Register(NewMakeBackend(), PriorityMedium)
	r.Register(NewNullBackend(), PriorityLow)
	return r
}

// NewEmptyRegistry creates a registry with no backends, for tests.
func NewEmptyRegistry() *Registry {
	return &Registry{}
}

// Register adds a backend with the given priority.
func (r *Registry) Register(b Backend, p Priority) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends = append(r.backends, Registration{Backend: b, Priority: p})
	sort.SliceStable(r.backends, func(i, j int) bool {
		return r.backends[i].Priority > r.backends[j].Priority
	})
}

// Detect returns the highest-priority backend that matches the project root.
func (r *Registry) Detect(root string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, reg := range r.backends {
		if reg.Backend.Detect(root) {
			return reg.Backend, nil
		}
	}
	return nil, fmt.Errorf("no backend matched project root %s", root)
}
