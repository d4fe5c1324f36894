package persistence

import (
	"context"
	"slices"
	"sync"

	"github.com/petrijr/fluxoctx/pkg/api"
)

// InMemoryStore is a simple, goroutine-safe Store backed by maps. Keys are
// reported in insertion order. It never suspends, so it supports the
// blocking Context entry points.
type InMemoryStore struct {
	mu     sync.RWMutex
	scopes map[string]*memoryScope
}

type memoryScope struct {
	keys   []string
	values map[string]any
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		scopes: make(map[string]*memoryScope),
	}
}

// NewInMemoryStoreFromConfig is the "memory" module factory.
func NewInMemoryStoreFromConfig(api.StoreConfig) (api.Store, error) {
	return NewInMemoryStore(), nil
}

// Ensure InMemoryStore implements the interfaces.
var _ api.Store = (*InMemoryStore)(nil)

var _ api.SyncStore = (*InMemoryStore)(nil)

func (s *InMemoryStore) Sync() bool { return true }

func (s *InMemoryStore) Open(ctx context.Context) error { return nil }

func (s *InMemoryStore) Close(ctx context.Context) error { return nil }

func (s *InMemoryStore) Get(ctx context.Context, scope, key string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sc, ok := s.scopes[scope]
	if !ok {
		return nil, nil
	}
	return sc.values[key], nil
}

func (s *InMemoryStore) Set(ctx context.Context, scope, key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, ok := s.scopes[scope]
	if value == nil {
		if ok {
			sc.remove(key)
		}
		return nil
	}
	if !ok {
		sc = &memoryScope{values: make(map[string]any)}
		s.scopes[scope] = sc
	}
	if _, exists := sc.values[key]; !exists {
		sc.keys = append(sc.keys, key)
	}
	sc.values[key] = value
	return nil
}

func (s *InMemoryStore) Keys(ctx context.Context, scope string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sc, ok := s.scopes[scope]
	if !ok {
		return []string{}, nil
	}
	return slices.Clone(sc.keys), nil
}

func (s *InMemoryStore) Delete(ctx context.Context, scope string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.scopes, scope)
	return nil
}

func (s *InMemoryStore) Clean(ctx context.Context, activeNodes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	scopes := make([]string, 0, len(s.scopes))
	for scope := range s.scopes {
		scopes = append(scopes, scope)
	}
	for _, scope := range staleScopes(scopes, activeNodes) {
		delete(s.scopes, scope)
	}
	return nil
}

// load replaces the content of scope. Used by stores that mirror a slower
// medium in memory.
func (s *InMemoryStore) load(scope string, keys []string, values map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc := &memoryScope{values: make(map[string]any, len(keys))}
	for _, k := range keys {
		if v, ok := values[k]; ok && v != nil {
			sc.keys = append(sc.keys, k)
			sc.values[k] = v
		}
	}
	s.scopes[scope] = sc
}

// snapshot returns the keys and values of scope.
func (s *InMemoryStore) snapshot(scope string) ([]string, map[string]any) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sc, ok := s.scopes[scope]
	if !ok {
		return nil, map[string]any{}
	}
	values := make(map[string]any, len(sc.values))
	for k, v := range sc.values {
		values[k] = v
	}
	return slices.Clone(sc.keys), values
}

func (sc *memoryScope) remove(key string) {
	if _, ok := sc.values[key]; !ok {
		return
	}
	delete(sc.values, key)
	if i := slices.Index(sc.keys, key); i >= 0 {
		sc.keys = slices.Delete(sc.keys, i, i+1)
	}
}
