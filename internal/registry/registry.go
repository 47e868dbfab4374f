package registry

import "sort"

// Module is the interface that all core modules must implement to be registered.
type Module interface {
	Register(r *Registry)
}

// Registry holds all the registered stage handlers for a single application
// instance.
type Registry struct {
	StageHandlers map[string]*StageHandler
}

// New creates and initializes a new Registry instance.
func New(modules ...Module) *Registry {
	r := &Registry{
		StageHandlers: make(map[string]*StageHandler),
	}
	for _, mod := range modules {
		mod.Register(r)
	}
	return r
}

// Kinds returns the registered stage kinds in sorted order.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.StageHandlers))
	for kind := range r.StageHandlers {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}
