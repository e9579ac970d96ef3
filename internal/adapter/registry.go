// internal/adapter/registry.go
package adapter

import (
	"log"
)

// Registry holds the configured adapters, keyed by agent id, in a
// stable display order.
type Registry struct {
	adapters map[string]*Adapter
	order    []string
}

// NewRegistry builds adapters from per-agent options. Agents whose
// vendor is unknown are skipped with a log line rather than failing
// the whole registry.
func NewRegistry(runner Runner, opts []Options) *Registry {
	r := &Registry{adapters: make(map[string]*Adapter)}
	for _, o := range opts {
		a, err := New(o, runner)
		if err != nil {
			log.Printf("[adapter] skipping %s: %v", o.AgentID, err)
			continue
		}
		if _, dup := r.adapters[a.ID()]; dup {
			log.Printf("[adapter] skipping duplicate agent id %s", a.ID())
			continue
		}
		r.adapters[a.ID()] = a
		r.order = append(r.order, a.ID())
	}
	return r
}

// Get returns an adapter by agent id.
func (r *Registry) Get(id string) *Adapter {
	return r.adapters[id]
}

// All returns the adapters in registration order.
func (r *Registry) All() []*Adapter {
	out := make([]*Adapter, 0, len(r.order))
	for _, id := range r.order {
		if a, ok := r.adapters[id]; ok {
			out = append(out, a)
		}
	}
	return out
}

// IDs returns the registered agent ids in order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

// Count returns the number of registered adapters.
func (r *Registry) Count() int {
	return len(r.order)
}

// DisposeAll disposes every adapter.
func (r *Registry) DisposeAll() {
	for _, a := range r.All() {
		a.Dispose()
	}
}
