// Package api contains the contracts shared by the fluxoctx registry and its
// storage backends.
//
// Most users interact with the higher-level fluxoctx package, which re-exports
// selected types and helpers from this package. The api package is intended
// for backend authors and custom integrations.
//
// # Stores
//
// A Store keeps values keyed by (scope, key). Scopes form a three level
// hierarchy:
//
//   - node scope: "nodeId" or "nodeId:flowId"
//   - flow scope: "flowId"
//   - global scope: "global"
//
// Stores that complete without suspending on I/O implement SyncStore and can
// be used through the blocking Context entry points. Every store can be used
// through the callback entry points.
//
// # Configuration
//
// Settings.ContextStorage is an ordered list of named entries. An entry either
// declares a Module (a builtin name such as "memory" or "redis") or a Factory,
// or, under the name "default" only, aliases another entry.
//
// # Observability
//
// Observer receives store and scope lifecycle events. LoggingObserver,
// BasicMetrics and CompositeObserver are ready-made implementations.
package api
