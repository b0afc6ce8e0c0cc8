package module

import (
	"slices"
	"sync"
)

// Registry maps module names to their port sets
type Registry struct {
	mu    sync.RWMutex
	ports map[string]any
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry { return &Registry{ports: map[string]any{}} }

// Put stores ports under name, replacing any earlier set
func (r *Registry) Put(name string, ports any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ports[name] = ports
}

// Get returns the raw port set of name
func (r *Registry) Get(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.ports[name]
	return v, ok
}

// Names lists the registered modules in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.ports))
	for n := range r.ports {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

// the process registry, filled by main during bootstrap
var std = NewRegistry()

// Register stores a port set in the process registry
func Register(name string, ports any) { std.Put(name, ports) }

// Names lists the modules in the process registry
func Names() []string { return std.Names() }

// PortsAs fetches and type asserts the port set registered for name
func PortsAs[T any](name string) (T, bool) {
	v, ok := std.Get(name)
	out, ok2 := v.(T)
	return out, ok && ok2
}

// Reset empties the process registry (tests)
func Reset() {
	std.mu.Lock()
	defer std.mu.Unlock()
	std.ports = map[string]any{}
}
