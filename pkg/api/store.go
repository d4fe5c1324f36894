package api

import (
	"context"
	"strconv"
	"strings"
)

// Reserved names and scopes understood by the registry.
const (
	// ReservedStore always refers to the resolved default store.
	ReservedStore = "_"
	// DefaultStore is guaranteed to exist once the registry has loaded.
	DefaultStore = "default"
	// GlobalScope is the scope id of the process-wide context.
	GlobalScope = "global"
)

// Store is the contract every context storage backend implements.
//
// Values are keyed by (scope, key). A scope is a node id, "nodeId:flowId",
// a flow id, or GlobalScope.
type Store interface {
	// Open prepares the store for use. It is called once, before any other
	// method, and may block on I/O.
	Open(ctx context.Context) error
	// Close releases the resources held by the store. Called exactly once.
	Close(ctx context.Context) error

	// Get returns the value stored under key, or (nil, nil) if absent.
	Get(ctx context.Context, scope, key string) (any, error)
	// Set stores value under key. A nil value removes the key.
	Set(ctx context.Context, scope, key string, value any) error
	// Keys returns the keys stored for scope in a stable order.
	Keys(ctx context.Context, scope string) ([]string, error)
	// Delete removes everything stored for scope.
	Delete(ctx context.Context, scope string) error
	// Clean removes every scope, except GlobalScope, whose owning node id is
	// not listed in activeNodes.
	Clean(ctx context.Context, activeNodes []string) error
}

// SyncStore is implemented by stores whose operations complete without
// suspending on I/O. Only such stores may be used through the blocking
// Context entry points.
type SyncStore interface {
	Sync() bool
}

// IsSync reports whether s may be used through the blocking entry points.
func IsSync(s Store) bool {
	ss, ok := s.(SyncStore)
	return ok && ss.Sync()
}

// StoreFactory constructs a Store from its configuration. It must not perform
// blocking I/O; connection setup belongs in Store.Open.
type StoreFactory func(cfg StoreConfig) (Store, error)

// StoreConfig is handed to a StoreFactory. Options holds the entry's own
// "config" map; UserDir is the approved process-wide setting copied in by
// the registry.
type StoreConfig struct {
	Name    string
	Options map[string]any
	UserDir string
}

// String returns the option under key as a string, or def.
func (c StoreConfig) String(key, def string) string {
	v, ok := c.Options[key]
	if !ok || v == nil {
		return def
	}
	switch s := v.(type) {
	case string:
		if s == "" {
			return def
		}
		return s
	case []byte:
		return string(s)
	default:
		return def
	}
}

// Bool returns the option under key as a bool, or def.
func (c StoreConfig) Bool(key string, def bool) bool {
	switch v := c.Options[key].(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return def
		}
		return b
	default:
		return def
	}
}

// Int returns the option under key as an int, or def.
func (c StoreConfig) Int(key string, def int) int {
	switch v := c.Options[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case uint64:
		return int(v)
	case float64:
		return int(v)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return def
		}
		return n
	default:
		return def
	}
}

// ScopeOwner returns the node id that owns scope: the text before the first
// ':' or the whole scope when there is none.
func ScopeOwner(scope string) string {
	if i := strings.IndexByte(scope, ':'); i >= 0 {
		return scope[:i]
	}
	return scope
}

// ScopeID builds the composite scope id for a node within an optional flow.
func ScopeID(localID, flowID string) string {
	if flowID == "" {
		return localID
	}
	return localID + ":" + flowID
}
