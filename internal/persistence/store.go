// Package persistence holds the builtin context store backends.
package persistence

import (
	"github.com/petrijr/fluxoctx/pkg/api"
)

// staleScopes returns the scopes that Clean must remove: every scope except
// the global one whose owning node is not in activeNodes.
func staleScopes(scopes []string, activeNodes []string) []string {
	active := make(map[string]struct{}, len(activeNodes))
	for _, id := range activeNodes {
		active[id] = struct{}{}
	}

	var stale []string
	for _, scope := range scopes {
		if scope == api.GlobalScope {
			continue
		}
		if _, ok := active[api.ScopeOwner(scope)]; !ok {
			stale = append(stale, scope)
		}
	}
	return stale
}

// codecFromConfig resolves the "codec" option of a store entry.
func codecFromConfig(cfg api.StoreConfig) (Codec, error) {
	return CodecFor(cfg.String("codec", ""))
}
