package registry

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/petrijr/fluxoctx/pkg/api"
)

// Context is the get/set/keys handle bound to one scope.
//
// The blocking methods (Get, Set, Keys) require a store that reports
// api.SyncStore.Sync() == true and fail with api.ErrSyncUnsupported
// otherwise. The callback methods work with every store: they return an
// error only for misuse or an unknown storage name, and deliver the
// store's result to the callback from a separate goroutine.
//
// Callback calls on one Context reach the store in the order they were
// issued, one at a time, and their callbacks run in that order. A callback
// must not block waiting for a later callback call on the same Context.
//
// Without api.WithStore, blocking calls use the "_" store and callback
// calls use the "default" store.
type Context struct {
	reg    *Registry
	scope  string
	seed   map[string]any
	flow   *Context
	global *Context

	mu       sync.Mutex
	queue    []func()
	draining bool
}

func newContext(reg *Registry, scope string, seed map[string]any, flow, global *Context) *Context {
	return &Context{
		reg:    reg,
		scope:  scope,
		seed:   seed,
		flow:   flow,
		global: global,
	}
}

// Scope returns the scope id the Context is bound to.
func (c *Context) Scope() string { return c.scope }

// Flow returns the enclosing flow Context, or nil.
func (c *Context) Flow() *Context { return c.flow }

// Global returns the global Context, or nil for the global Context itself.
func (c *Context) Global() *Context { return c.global }

// Get returns the value stored under key.
func (c *Context) Get(key string, opts ...api.Option) (any, error) {
	store, err := c.syncStore(opts)
	if err != nil {
		return nil, err
	}
	return c.get(context.Background(), store, key)
}

// Set stores value under key. A nil value removes the key.
func (c *Context) Set(key string, value any, opts ...api.Option) error {
	store, err := c.syncStore(opts)
	if err != nil {
		return err
	}
	return c.set(context.Background(), store, key, value)
}

// Keys returns the keys stored in the scope.
func (c *Context) Keys(opts ...api.Option) ([]string, error) {
	store, err := c.syncStore(opts)
	if err != nil {
		return nil, err
	}
	return c.keys(context.Background(), store)
}

// GetAsync reads key and passes the result to cb.
func (c *Context) GetAsync(ctx context.Context, key string, cb func(any, error), opts ...api.Option) error {
	if cb == nil {
		return api.ErrInvalidCallback
	}
	store, err := c.asyncStore(opts)
	if err != nil {
		return err
	}
	c.dispatch(func() {
		cb(c.get(ctx, store, key))
	})
	return nil
}

// SetAsync stores value under key and passes the outcome to cb.
func (c *Context) SetAsync(ctx context.Context, key string, value any, cb func(error), opts ...api.Option) error {
	if cb == nil {
		return api.ErrInvalidCallback
	}
	store, err := c.asyncStore(opts)
	if err != nil {
		return err
	}
	c.dispatch(func() {
		cb(c.set(ctx, store, key, value))
	})
	return nil
}

// KeysAsync lists the scope's keys and passes them to cb.
func (c *Context) KeysAsync(ctx context.Context, cb func([]string, error), opts ...api.Option) error {
	if cb == nil {
		return api.ErrInvalidCallback
	}
	store, err := c.asyncStore(opts)
	if err != nil {
		return err
	}
	c.dispatch(func() {
		cb(c.keys(ctx, store))
	})
	return nil
}

// dispatch queues fn behind every call already dispatched on c.
func (c *Context) dispatch(fn func()) {
	c.mu.Lock()
	c.queue = append(c.queue, fn)
	if c.draining {
		c.mu.Unlock()
		return
	}
	c.draining = true
	c.mu.Unlock()

	go c.drain()
}

func (c *Context) drain() {
	for {
		c.mu.Lock()
		if len(c.queue) == 0 {
			c.draining = false
			c.mu.Unlock()
			return
		}
		fn := c.queue[0]
		c.queue[0] = nil
		c.queue = c.queue[1:]
		c.mu.Unlock()

		fn()
	}
}

func (c *Context) syncStore(opts []api.Option) (api.Store, error) {
	name := api.ApplyOptions(opts).Store
	if name == "" {
		name = api.ReservedStore
	}
	store, err := c.reg.ContextStorage(name)
	if err != nil {
		return nil, err
	}
	if !api.IsSync(store) {
		return nil, fmt.Errorf("context storage %q: %w", name, api.ErrSyncUnsupported)
	}
	return store, nil
}

func (c *Context) asyncStore(opts []api.Option) (api.Store, error) {
	name := api.ApplyOptions(opts).Store
	if name == "" {
		name = api.DefaultStore
	}
	return c.reg.ContextStorage(name)
}

func (c *Context) get(ctx context.Context, store api.Store, key string) (any, error) {
	v, err := store.Get(ctx, c.scope, key)
	if err != nil {
		return nil, err
	}
	if v == nil {
		if seeded, ok := c.seed[key]; ok {
			return seeded, nil
		}
	}
	return v, nil
}

func (c *Context) set(ctx context.Context, store api.Store, key string, value any) error {
	return store.Set(ctx, c.scope, key, value)
}

// keys returns the store's keys followed by any seed keys the store does
// not report, without duplicates.
func (c *Context) keys(ctx context.Context, store api.Store) ([]string, error) {
	stored, err := store.Keys(ctx, c.scope)
	if err != nil {
		return nil, err
	}
	if len(c.seed) == 0 {
		return stored, nil
	}

	seen := make(map[string]struct{}, len(stored)+len(c.seed))
	out := make([]string, 0, len(stored)+len(c.seed))
	for _, k := range stored {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}

	seedKeys := make([]string, 0, len(c.seed))
	for k := range c.seed {
		if _, dup := seen[k]; !dup {
			seedKeys = append(seedKeys, k)
		}
	}
	slices.Sort(seedKeys)
	return append(out, seedKeys...), nil
}
