package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/petrijr/fluxoctx/pkg/api"
)

// Clean asks every store to drop the scopes of nodes that are no longer
// deployed, and evicts their cached Contexts. The global Context is never
// evicted. Clean returns once every store has finished.
func (r *Registry) Clean(ctx context.Context, flows api.FlowConfig) error {
	start := time.Now()
	active := flows.ActiveNodes()
	nodes := make([]string, 0, len(active))
	seen := make(map[string]struct{}, len(active))
	for _, id := range flows.Nodes {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		nodes = append(nodes, id)
	}

	r.mu.Lock()
	owned := r.owned
	var evicted []string
	for scope := range r.contexts {
		if scope == api.GlobalScope {
			continue
		}
		if _, ok := active[api.ScopeOwner(scope)]; !ok {
			delete(r.contexts, scope)
			evicted = append(evicted, scope)
		}
	}
	r.mu.Unlock()

	for _, scope := range evicted {
		r.observer.OnContextEvicted(ctx, scope)
	}

	err := fanOut(ctx, owned, func(ctx context.Context, ns namedStore) error {
		if err := ns.store.Clean(ctx, nodes); err != nil {
			return fmt.Errorf("clean context store %q: %w", ns.name, err)
		}
		return nil
	})
	r.observer.OnClean(ctx, len(active), err, time.Since(start))
	return err
}

// Delete drops the Context for localID (within flowID, if given) and its
// stored values. When any store is explicitly configured, context is kept
// across redeploys and Delete does nothing.
func (r *Registry) Delete(ctx context.Context, localID string, flowID ...string) error {
	var fid string
	if len(flowID) > 0 {
		fid = flowID[0]
	}
	scope := api.ScopeID(localID, fid)

	r.mu.Lock()
	if r.hasConfiguredStore {
		r.mu.Unlock()
		return nil
	}
	_, cached := r.contexts[scope]
	if cached && scope != api.GlobalScope {
		delete(r.contexts, scope)
	} else {
		cached = false
	}
	store, ok := r.stores[api.ReservedStore]
	r.mu.Unlock()

	if cached {
		r.observer.OnContextEvicted(ctx, scope)
	}
	if !ok {
		return &api.ContextError{Storage: api.ReservedStore}
	}
	return store.Delete(ctx, scope)
}

// Close closes every store once, aliases included only once, and tears the
// registry down to its global Context. It returns the first close error.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	owned := r.owned
	r.owned = nil
	r.stores = map[string]api.Store{}
	r.configured = nil
	r.defaultName = ""
	r.ready = false
	for scope := range r.contexts {
		if scope != api.GlobalScope {
			delete(r.contexts, scope)
		}
	}
	r.mu.Unlock()

	return fanOut(ctx, owned, func(ctx context.Context, ns namedStore) error {
		start := time.Now()
		err := ns.store.Close(ctx)
		r.observer.OnStoreClosed(ctx, ns.name, err, time.Since(start))
		if err != nil {
			return fmt.Errorf("close context store %q: %w", ns.name, err)
		}
		return nil
	})
}
