package registry

import (
	"context"

	"github.com/petrijr/fluxoctx/pkg/api"
)

// Get returns the Context for localID, or for localID within flowID when a
// flow id is given. The same handle is returned for the same ids until
// Clean or Delete evicts it.
func (r *Registry) Get(localID string, flowID ...string) *Context {
	var fid string
	if len(flowID) > 0 {
		fid = flowID[0]
	}
	scope := api.ScopeID(localID, fid)

	r.mu.RLock()
	c, ok := r.contexts[scope]
	r.mu.RUnlock()
	if ok {
		return c
	}

	var flow *Context
	if fid != "" {
		flow = r.Get(fid)
	}

	r.mu.Lock()
	if c, ok := r.contexts[scope]; ok {
		r.mu.Unlock()
		return c
	}
	c = newContext(r, scope, nil, flow, r.global)
	r.contexts[scope] = c
	r.mu.Unlock()

	r.observer.OnContextCreated(context.Background(), scope)
	return c
}

// Global returns the global Context.
func (r *Registry) Global() *Context {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.global
}
