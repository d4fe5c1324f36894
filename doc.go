// Package fluxoctx provides scoped key-value context storage for a flow
// runtime, with pluggable storage backends.
//
// Nodes keep state at three levels: per node, per flow and global. Values
// are stored by (scope, key) in one of several configured stores, and a
// Registry owns those stores and the Context handles bound to each scope.
//
// # Registry
//
// A Registry is built once at process start, loaded, and closed at
// shutdown:
//
//	reg := fluxoctx.New(settings)
//	if err := reg.Load(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer reg.Close(ctx)
//
// Load instantiates every store listed in Settings.ContextStorage, opens
// them concurrently, and resolves the default store. Two names are special:
//
//   - "_" always refers to the resolved default store and may not be
//     configured.
//   - "default" is guaranteed to exist after Load. It is either configured
//     directly, given as an alias naming another entry, or falls back to
//     the first configured store. With no configuration at all an in-memory
//     store is used.
//
// # Stores
//
// Builtin modules are selected by name in the configuration:
//
//   - memory: in-process maps
//   - localfilesystem: one JSON file per scope, optionally cached in memory
//   - sqlite, postgres: a single context_values table
//   - redis: a hash per scope
//   - mongodb: a document per value
//
// Custom stores implement Store and are plugged in through
// StorageEntry.Factory or Config.Modules.
//
// # Contexts
//
// Registry.Get resolves a node id, and optionally a flow id, to a Context.
// The same ids always yield the same handle until Clean or Delete evicts it.
// Each Context links to its flow Context and to the global Context:
//
//	node := reg.Get("n1", "f1")
//	_ = node.Set("count", 1)
//	v, _ := node.Flow().Get("shared")
//	_ = node.Global().Set("lastRun", time.Now())
//
// Get, Set and Keys block and require a store that completes without
// suspending (memory, or localfilesystem with its cache enabled). The
// GetAsync, SetAsync and KeysAsync forms work with every store and deliver
// their result to a callback. WithStore routes a call to a named store.
//
// The global Context is seeded from Settings.GlobalContext. Seed values are
// read-through defaults: a stored value always wins, and clearing it with a
// nil Set exposes the seed again.
//
// # Lifecycle
//
// Clean drops state for nodes that are no longer deployed. Delete removes a
// single scope, but only when no store is configured explicitly. Close
// closes every store exactly once.
package fluxoctx
