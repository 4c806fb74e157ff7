package carrier

import (
	"fmt"
	"strings"
)

// Registry keeps adapters in registration order. That order is the carrier
// priority used to break cost ties.
type Registry struct {
	order    []string
	adapters map[string]Adapter
}

// NormalizeID is the canonical form of a carrier ID.
func NormalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// NewRegistry rejects adapters whose ID is empty or not already in
// canonical form, so Adapter.ID() can be used as a key everywhere.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		id := a.ID()
		if id == "" || id != NormalizeID(id) {
			return nil, fmt.Errorf("carrier id %q must be lowercase with no surrounding space", id)
		}
		if _, dup := r.adapters[id]; dup {
			return nil, fmt.Errorf("carrier %q registered twice", id)
		}
		r.order = append(r.order, id)
		r.adapters[id] = a
	}
	return r, nil
}

func (r *Registry) Get(id string) (Adapter, error) {
	a, ok := r.adapters[NormalizeID(id)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCarrier, id)
	}
	return a, nil
}

// All returns every adapter in priority order.
func (r *Registry) All() []Adapter {
	out := make([]Adapter, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.adapters[id])
	}
	return out
}

// Enabled filters to the given IDs, keeping priority order. An empty list
// enables everything.
func (r *Registry) Enabled(ids []string) []Adapter {
	if len(ids) == 0 {
		return r.All()
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[NormalizeID(id)] = true
	}
	var out []Adapter
	for _, id := range r.order {
		if want[id] {
			out = append(out, r.adapters[id])
		}
	}
	return out
}

// Priority returns the registration index of id, or len(registry) when unknown.
func (r *Registry) Priority(id string) int {
	id = NormalizeID(id)
	for i, v := range r.order {
		if v == id {
			return i
		}
	}
	return len(r.order)
}
