package api

import (
	"errors"
	"fmt"
)

var (
	// ErrReservedName is returned when the configuration defines the reserved
	// store name "_".
	ErrReservedName = errors.New("reserved store name")

	// ErrInvalidName is returned for an empty or duplicated store name.
	ErrInvalidName = errors.New("invalid store name")

	// ErrInvalidDefault is returned when the "default" alias names a store
	// that is not defined.
	ErrInvalidDefault = errors.New("invalid default store alias")

	// ErrAliasNotAllowed is returned when an entry other than "default" is
	// declared as an alias.
	ErrAliasNotAllowed = errors.New("only the default store may be an alias")

	// ErrMissingModule is returned when a store entry declares no module.
	ErrMissingModule = errors.New("missing store module")

	// ErrUnknownModule is returned when a module name is not a builtin.
	ErrUnknownModule = errors.New("unknown store module")

	// ErrInvalidCallback is returned when a callback entry point is given a
	// nil callback.
	ErrInvalidCallback = errors.New("callback must be a function")

	// ErrSyncUnsupported is returned when a blocking entry point is used
	// against a store that does not guarantee non-suspending completion.
	ErrSyncUnsupported = errors.New("store does not support synchronous access")
)

// ContextError reports a request for a storage name that is neither
// registered nor resolvable through a default store.
type ContextError struct {
	Storage string
}

func (e *ContextError) Error() string {
	return fmt.Sprintf("context: unknown storage %q", e.Storage)
}

// ConfigError reports a configuration failure for one store entry.
type ConfigError struct {
	Store string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("context storage %q: %v", e.Store, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
