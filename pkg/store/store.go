// Package store defines the EntityStore abstraction every durable
// graphcore component (subscriptions, pending deferred edges, workflow
// instances) persists through, plus an
// in-memory implementation used by tests and single-process
// deployments.
package store

import (
	"context"
	"sync"

	"github.com/invgraph/graphcore/pkg/errs"
)

// EntityStore is a minimal key-value abstraction over a typed entity,
// satisfied by the in-memory store here and by the Postgres-backed
// store in pkg/store/postgres.go. Keeping it generic lets every
// durable component (subscriptions, deferred edges, workflow
// instances) share one storage contract instead of hand-rolling a
// bespoke repository per entity, mirroring the teacher's single
// Storage interface in services/storage/storage.go generalized across
// entity kinds rather than specialized to one (workflows).
type EntityStore[T any] interface {
	Get(ctx context.Context, id string) (T, error)
	Put(ctx context.Context, id string, value T) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]T, error)
}

// InMemory is a mutex-guarded map-backed EntityStore, the default for
// tests and for components that don't need cross-process durability.
type InMemory[T any] struct {
	mu    sync.RWMutex
	items map[string]T
	order []string
}

// NewInMemory creates an empty InMemory store.
func NewInMemory[T any]() *InMemory[T] {
	return &InMemory[T]{items: make(map[string]T)}
}

func (s *InMemory[T]) Get(_ context.Context, id string) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[id]
	if !ok {
		var zero T
		return zero, errs.NotFound("no entity with id " + id)
	}
	return v, nil
}

func (s *InMemory[T]) Put(_ context.Context, id string, value T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[id]; !exists {
		s.order = append(s.order, id)
	}
	s.items[id] = value
	return nil
}

func (s *InMemory[T]) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return errs.NotFound("no entity with id " + id)
	}
	delete(s.items, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *InMemory[T]) List(_ context.Context) ([]T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]T, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id])
	}
	return out, nil
}

var _ EntityStore[struct{}] = (*InMemory[struct{}])(nil)
