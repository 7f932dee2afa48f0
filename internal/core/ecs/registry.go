package ecs

import "fmt"

// Registry tracks all component stores in registration order and supports
// bulk cleanup on entity destroy.
type Registry struct {
	stores []*Store
	byName map[string]*Store
}

func NewRegistry() *Registry {
	return &Registry{
		stores: make([]*Store, 0, 16),
		byName: make(map[string]*Store, 16),
	}
}

// Register creates the column store for a schema. Names are unique.
func (r *Registry) Register(schema Schema) (*Store, error) {
	if schema.Name == "" {
		return nil, fmt.Errorf("register component: empty name")
	}
	if _, dup := r.byName[schema.Name]; dup {
		return nil, fmt.Errorf("register component %s: already registered", schema.Name)
	}
	s, err := newStore(ComponentID(len(r.stores)), schema)
	if err != nil {
		return nil, err
	}
	r.stores = append(r.stores, s)
	r.byName[schema.Name] = s
	return s, nil
}

func (r *Registry) Lookup(name string) (*Store, bool) {
	s, ok := r.byName[name]
	return s, ok
}

// Stores returns every store in registration order.
func (r *Registry) Stores() []*Store {
	return r.stores
}

// RemoveAll clears the given entity from every registered component store.
func (r *Registry) RemoveAll(id EntityID) {
	for _, s := range r.stores {
		s.Remove(id)
	}
}
