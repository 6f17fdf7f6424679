package task

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps task type keys to executables. It is an explicit object
// constructed at startup and handed to the engine, not ambient static
// state: populated once during wiring, read-only afterwards.
type Registry struct {
	mu          sync.RWMutex
	executables map[string]Executable
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		executables: make(map[string]Executable),
	}
}

// Register adds an executable under its type key. Duplicate keys are
// rejected at registration time.
func (r *Registry) Register(e Executable) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := e.Type()
	if key == "" {
		return fmt.Errorf("executable has empty type key")
	}
	if _, exists := r.executables[key]; exists {
		return fmt.Errorf("duplicate executable type: %s", key)
	}
	r.executables[key] = e
	return nil
}

// MustRegister is Register for startup wiring, panicking on conflict.
func (r *Registry) MustRegister(e Executable) {
	if err := r.Register(e); err != nil {
		panic(err)
	}
}

// Resolve looks up the executable for a task type.
func (r *Registry) Resolve(taskType string) (Executable, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executables[taskType]
	return e, ok
}

// Types returns the registered type keys in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.executables))
	for k := range r.executables {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
