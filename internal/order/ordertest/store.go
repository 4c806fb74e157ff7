// Package ordertest is an in-memory order.Store for tests.
package ordertest

import (
	"context"
	"sync"

	"shiporch/internal/order"
)

type Transition struct {
	ID, To, Note string
}

type Store struct {
	mu          sync.Mutex
	orders      map[string]order.Order
	Transitions []Transition
	SetMetaErr  error
}

func New(orders ...order.Order) *Store {
	s := &Store{orders: make(map[string]order.Order)}
	for _, o := range orders {
		s.Put(o)
	}
	return s
}

func (s *Store) Put(o order.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.Meta == nil {
		o.Meta = map[string]string{}
	}
	s.orders[o.ID] = o
}

func (s *Store) Get(_ context.Context, id string) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}
	return clone(o), nil
}

func (s *Store) FindByAWB(_ context.Context, carrierID, awb string) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.Meta[order.MetaAWB] == awb && (carrierID == "" || o.Meta[order.MetaCarrier] == carrierID) {
			return clone(o), nil
		}
	}
	return order.Order{}, order.ErrNotFound
}

func (s *Store) SetMeta(_ context.Context, id string, kv map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SetMetaErr != nil {
		return s.SetMetaErr
	}
	o, ok := s.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	for k, v := range kv {
		o.Meta[k] = v
	}
	return nil
}

func (s *Store) ClaimFlag(_ context.Context, id, key, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return false, order.ErrNotFound
	}
	if _, set := o.Meta[key]; set {
		return false, nil
	}
	o.Meta[key] = value
	return true, nil
}

func (s *Store) Transition(_ context.Context, id, to, note string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return false, order.ErrNotFound
	}
	if o.State == to {
		return false, nil
	}
	o.State = to
	s.orders[id] = o
	s.Transitions = append(s.Transitions, Transition{ID: id, To: to, Note: note})
	return true, nil
}

// ListForSync applies every SyncQuery filter the Postgres store does.
func (s *Store) ListForSync(_ context.Context, q order.SyncQuery) ([]order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []order.Order
	for _, o := range s.orders {
		if !contains(q.States, o.State) || o.CreatedAt.Before(q.CreatedAfter) {
			continue
		}
		missing := false
		for _, k := range q.RequireMeta {
			if o.Meta[k] == "" {
				missing = true
			}
		}
		if missing {
			continue
		}
		if synced, ok := o.MetaTime(order.MetaTrackingSyncedAt); ok && !q.SyncedBefore.IsZero() && synced.After(q.SyncedBefore) {
			continue
		}
		out = append(out, clone(o))
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

// Order returns the stored copy, for assertions.
func (s *Store) Order(id string) order.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.orders[id])
}

func clone(o order.Order) order.Order {
	m := make(map[string]string, len(o.Meta))
	for k, v := range o.Meta {
		m[k] = v
	}
	o.Meta = m
	return o
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
