package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/petrijr/fluxoctx/internal/persistence"
	"github.com/petrijr/fluxoctx/pkg/api"
)

// Registry owns the configured context stores and the cache of Context
// handles. Build one with New, call Load once, and Close it at shutdown.
type Registry struct {
	modules  map[string]api.StoreFactory
	observer api.Observer
	logger   *slog.Logger

	mu       sync.RWMutex
	settings api.Settings

	stores      map[string]api.Store
	owned       []namedStore // distinct stores, in configuration order
	configured  []string
	defaultName string

	contexts map[string]*Context
	global   *Context

	hasConfiguredStore bool
	ready              bool
}

type namedStore struct {
	name  string
	store api.Store
}

// Config describes how to construct a Registry.
type Config struct {
	Settings api.Settings

	// Observer receives lifecycle callbacks. Defaults to api.NoopObserver.
	Observer api.Observer

	// Logger is used for configuration warnings. Defaults to slog.Default().
	Logger *slog.Logger

	// Modules adds store factories to, or overrides, the builtin modules.
	Modules map[string]api.StoreFactory
}

// New creates a Registry for settings with the builtin modules.
func New(settings api.Settings) *Registry {
	return NewWithConfig(Config{Settings: settings})
}

// NewWithConfig creates a Registry from cfg and initialises it.
func NewWithConfig(cfg Config) *Registry {
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	modules := builtinModules()
	maps.Copy(modules, cfg.Modules)

	r := &Registry{
		modules:  modules,
		observer: obs,
		logger:   logger,
	}
	r.Init(cfg.Settings)
	return r
}

// Init resets the registry to its pre-load state. The global context is
// seeded from settings.GlobalContext and "_" is bound to a fresh in-memory
// store until Load replaces it.
func (r *Registry) Init(settings api.Settings) {
	mem := persistence.NewInMemoryStore()

	r.mu.Lock()
	r.settings = settings
	r.global = newContext(r, api.GlobalScope, maps.Clone(settings.GlobalContext), nil, nil)
	r.contexts = map[string]*Context{api.GlobalScope: r.global}
	r.stores = map[string]api.Store{api.ReservedStore: mem}
	r.owned = []namedStore{{name: api.ReservedStore, store: mem}}
	r.configured = nil
	r.defaultName = ""
	r.hasConfiguredStore = false
	r.ready = false
	r.mu.Unlock()

	r.observer.OnContextCreated(context.Background(), api.GlobalScope)
}

// loadPlan is the validated form of the storage configuration.
type loadPlan struct {
	entries     []api.StorageEntry
	factories   []api.StoreFactory
	defaultName string
	explicit    bool
}

// plan validates the storage configuration without constructing anything.
// Names are bound first and the "default" alias is resolved against them.
func (r *Registry) plan(cfg api.StorageConfig) (loadPlan, error) {
	var p loadPlan

	names := make(map[string]struct{}, len(cfg))
	for _, e := range cfg {
		switch {
		case e.Name == "":
			return p, &api.ConfigError{Store: e.Name, Err: api.ErrInvalidName}
		case e.Name == api.ReservedStore:
			return p, &api.ConfigError{Store: e.Name, Err: api.ErrReservedName}
		}
		if _, dup := names[e.Name]; dup {
			return p, &api.ConfigError{Store: e.Name, Err: api.ErrInvalidName}
		}
		names[e.Name] = struct{}{}
	}

	for _, e := range cfg {
		if e.Alias != "" {
			if e.Name != api.DefaultStore {
				return p, &api.ConfigError{Store: e.Name, Err: api.ErrAliasNotAllowed}
			}
			if _, ok := names[e.Alias]; !ok || e.Alias == api.DefaultStore {
				return p, &api.ConfigError{
					Store: e.Name,
					Err:   fmt.Errorf("%w: %q is not a configured store", api.ErrInvalidDefault, e.Alias),
				}
			}
			p.defaultName = e.Alias
			p.explicit = true
			continue
		}

		factory, err := r.resolveModule(e)
		if err != nil {
			return p, &api.ConfigError{Store: e.Name, Err: err}
		}
		p.entries = append(p.entries, e)
		p.factories = append(p.factories, factory)

		if e.Name == api.DefaultStore {
			p.defaultName = e.Name
			p.explicit = true
		}
	}

	if p.defaultName == "" && len(p.entries) > 0 {
		p.defaultName = p.entries[0].Name
	}
	return p, nil
}

func (r *Registry) resolveModule(e api.StorageEntry) (api.StoreFactory, error) {
	if e.Factory != nil {
		return e.Factory, nil
	}
	if e.Module == "" {
		return nil, api.ErrMissingModule
	}
	factory, ok := r.modules[e.Module]
	if !ok {
		return nil, fmt.Errorf("%w: %q", api.ErrUnknownModule, e.Module)
	}
	return factory, nil
}

// Load instantiates and opens every configured store, then resolves the
// default store. Stores from an earlier Init or Load that are not reused
// are closed. On failure the registry keeps its previous stores and
// readiness.
func (r *Registry) Load(ctx context.Context) error {
	r.mu.RLock()
	settings := r.settings
	placeholder := r.stores[api.ReservedStore]
	r.mu.RUnlock()

	p, err := r.plan(settings.ContextStorage)
	if err != nil {
		return err
	}

	built := make([]namedStore, 0, len(p.entries))
	for i, e := range p.entries {
		store, err := p.factories[i](api.StoreConfig{
			Name:    e.Name,
			Options: maps.Clone(e.Config),
			UserDir: settings.UserDir,
		})
		if err == nil && store == nil {
			err = errors.New("factory returned no store")
		}
		if err != nil {
			r.discard(ctx, built)
			return &api.ConfigError{Store: e.Name, Err: err}
		}
		built = append(built, namedStore{name: e.Name, store: store})
	}

	if len(built) == 0 {
		// Nothing configured: the "_" placeholder becomes the default.
		built = append(built, namedStore{name: api.DefaultStore, store: placeholder})
	}

	if err := fanOut(ctx, built, r.openStore); err != nil {
		r.discard(ctx, built)
		return err
	}

	stores := make(map[string]api.Store, len(built)+2)
	configured := make([]string, 0, len(p.entries))
	for _, ns := range built {
		stores[ns.name] = ns.store
	}
	for _, e := range p.entries {
		configured = append(configured, e.Name)
	}

	defaultName := p.defaultName
	if defaultName == "" {
		defaultName = api.DefaultStore
	}
	stores[api.DefaultStore] = stores[defaultName]
	stores[api.ReservedStore] = stores[defaultName]

	if !p.explicit && len(p.entries) > 1 {
		r.logger.Warn("no default context store configured, using first",
			"default", defaultName,
			"stores", configured,
		)
	}

	r.mu.Lock()
	previous := r.owned
	r.stores = stores
	r.owned = built
	r.configured = configured
	r.defaultName = defaultName
	r.hasConfiguredStore = len(p.entries) > 0
	r.ready = true
	r.mu.Unlock()

	r.logger.Info("context storage loaded",
		"default", defaultName,
		"stores", configured,
	)

	r.closeReplaced(ctx, previous, built)
	return nil
}

// closeReplaced closes the stores of an earlier Init or Load that the
// current Load did not keep.
func (r *Registry) closeReplaced(ctx context.Context, previous, current []namedStore) {
	var replaced []namedStore
	for _, old := range previous {
		kept := slices.ContainsFunc(current, func(ns namedStore) bool {
			return ns.store == old.store
		})
		if !kept {
			replaced = append(replaced, old)
		}
	}

	_ = fanOut(ctx, replaced, func(ctx context.Context, ns namedStore) error {
		start := time.Now()
		err := ns.store.Close(ctx)
		r.observer.OnStoreClosed(ctx, ns.name, err, time.Since(start))
		if err != nil {
			r.logger.Warn("close replaced context store", "store", ns.name, "error", err)
		}
		return nil
	})
}

func (r *Registry) openStore(ctx context.Context, ns namedStore) error {
	start := time.Now()
	err := ns.store.Open(ctx)
	r.observer.OnStoreOpened(ctx, ns.name, err, time.Since(start))
	if err != nil {
		return fmt.Errorf("open context store %q: %w", ns.name, err)
	}
	return nil
}

// discard closes stores built by a failed Load.
func (r *Registry) discard(ctx context.Context, built []namedStore) {
	r.mu.RLock()
	placeholder := r.stores[api.ReservedStore]
	r.mu.RUnlock()

	for _, ns := range built {
		if ns.store == placeholder {
			continue
		}
		if err := ns.store.Close(ctx); err != nil {
			r.logger.Warn("close context store after failed load", "store", ns.name, "error", err)
		}
	}
}

// ContextStorage returns the store registered under name, or the default
// store when name is unknown. It fails with *api.ContextError only when
// no default store exists either.
func (r *Registry) ContextStorage(name string) (api.Store, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.stores[name]; ok {
		return s, nil
	}
	if s, ok := r.stores[api.ReservedStore]; ok {
		return s, nil
	}
	return nil, &api.ContextError{Storage: name}
}

// ListStores reports the default store and the configured stores in
// declaration order. It is empty until Load succeeds.
func (r *Registry) ListStores() api.StoreList {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.ready {
		return api.StoreList{Stores: []string{}}
	}
	return api.StoreList{
		Default: r.defaultName,
		Stores:  slices.Clone(r.configured),
	}
}

// HasConfiguredStore reports whether Load found at least one configured
// store.
func (r *Registry) HasConfiguredStore() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hasConfiguredStore
}

// Ready reports whether Load has completed successfully.
func (r *Registry) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ready
}

// fanOut runs fn once per store concurrently and returns the first error
// in store order after every call has finished.
func fanOut(ctx context.Context, stores []namedStore, fn func(context.Context, namedStore) error) error {
	errs := make([]error, len(stores))

	var wg sync.WaitGroup
	for i, ns := range stores {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = fn(ctx, ns)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
