package registry

import (
	"context"
	"sync"

	"github.com/petrijr/fluxoctx/internal/persistence"
	"github.com/petrijr/fluxoctx/pkg/api"
)

// fakeStore is an in-memory store that records calls and can be told to
// fail or to refuse blocking access.
type fakeStore struct {
	mem  *persistence.InMemoryStore
	sync bool

	openErr  error
	closeErr error
	cleanErr error
	getErr   error

	mu      sync.Mutex
	calls   map[string]int
	cleaned [][]string
	deleted []string
}

var _ api.Store = (*fakeStore)(nil)

func newFakeStore(sync bool) *fakeStore {
	return &fakeStore{
		mem:   persistence.NewInMemoryStore(),
		sync:  sync,
		calls: make(map[string]int),
	}
}

func (f *fakeStore) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
}

func (f *fakeStore) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeStore) Sync() bool { return f.sync }

func (f *fakeStore) Open(ctx context.Context) error {
	f.record("open")
	return f.openErr
}

func (f *fakeStore) Close(ctx context.Context) error {
	f.record("close")
	return f.closeErr
}

func (f *fakeStore) Get(ctx context.Context, scope, key string) (any, error) {
	f.record("get")
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.mem.Get(ctx, scope, key)
}

func (f *fakeStore) Set(ctx context.Context, scope, key string, value any) error {
	f.record("set")
	return f.mem.Set(ctx, scope, key, value)
}

func (f *fakeStore) Keys(ctx context.Context, scope string) ([]string, error) {
	f.record("keys")
	return f.mem.Keys(ctx, scope)
}

func (f *fakeStore) Delete(ctx context.Context, scope string) error {
	f.record("delete")
	f.mu.Lock()
	f.deleted = append(f.deleted, scope)
	f.mu.Unlock()
	return f.mem.Delete(ctx, scope)
}

func (f *fakeStore) Clean(ctx context.Context, activeNodes []string) error {
	f.record("clean")
	f.mu.Lock()
	f.cleaned = append(f.cleaned, activeNodes)
	f.mu.Unlock()
	if f.cleanErr != nil {
		return f.cleanErr
	}
	return f.mem.Clean(ctx, activeNodes)
}

// factoryFor returns a factory that hands out s and counts invocations.
func factoryFor(s api.Store, calls *int) api.StoreFactory {
	return func(api.StoreConfig) (api.Store, error) {
		if calls != nil {
			*calls++
		}
		return s, nil
	}
}
