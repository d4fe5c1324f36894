package fluxoctx

import (
	"database/sql"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/petrijr/fluxoctx/internal/persistence"
	"github.com/petrijr/fluxoctx/internal/registry"
	"github.com/petrijr/fluxoctx/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Registry             = registry.Registry
	Config               = registry.Config
	Context              = registry.Context
	Settings             = api.Settings
	StorageConfig        = api.StorageConfig
	StorageEntry         = api.StorageEntry
	StoreList            = api.StoreList
	FlowConfig           = api.FlowConfig
	Store                = api.Store
	SyncStore            = api.SyncStore
	StoreFactory         = api.StoreFactory
	StoreConfig          = api.StoreConfig
	Option               = api.Option
	ContextError         = api.ContextError
	ConfigError          = api.ConfigError
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
)

// Re-export common helpers.

var (
	WithStore            = api.WithStore
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
)

// Re-export sentinel errors.

var (
	ErrReservedName    = api.ErrReservedName
	ErrInvalidName     = api.ErrInvalidName
	ErrInvalidDefault  = api.ErrInvalidDefault
	ErrAliasNotAllowed = api.ErrAliasNotAllowed
	ErrMissingModule   = api.ErrMissingModule
	ErrUnknownModule   = api.ErrUnknownModule
	ErrInvalidCallback = api.ErrInvalidCallback
	ErrSyncUnsupported = api.ErrSyncUnsupported
)

// Reserved store names and the global scope id.
const (
	ReservedStore = api.ReservedStore
	DefaultStore  = api.DefaultStore
	GlobalScope   = api.GlobalScope
)

// Registry constructors
// These wrap the internal/registry package so external callers
// never need to import internal packages.

// New returns a Registry for settings using the builtin store modules.
// Call Load before use and Close at shutdown.
func New(settings Settings) *Registry {
	return registry.New(settings)
}

// NewWithConfig returns a Registry with a custom observer, logger or extra
// store modules.
func NewWithConfig(cfg Config) *Registry {
	return registry.NewWithConfig(cfg)
}

// Store factories for handles the caller already owns. Use them as
// StorageEntry.Factory; the stores never close the handle.

// MemoryStoreFactory returns a factory for a fresh in-memory store.
func MemoryStoreFactory() StoreFactory {
	return persistence.NewInMemoryStoreFromConfig
}

// SQLiteStoreFactory returns a factory for a store on an open SQLite
// database.
func SQLiteStoreFactory(db *sql.DB) StoreFactory {
	return func(StoreConfig) (Store, error) {
		return persistence.NewSQLiteStoreWithDB(db, nil), nil
	}
}

// PostgresStoreFactory returns a factory for a store on an open PostgreSQL
// database.
func PostgresStoreFactory(db *sql.DB) StoreFactory {
	return func(StoreConfig) (Store, error) {
		return persistence.NewPostgresStoreWithDB(db, nil), nil
	}
}

// RedisStoreFactory returns a factory for a store on client. prefix
// defaults to "fluxoctx:".
func RedisStoreFactory(client *redis.Client, prefix string) StoreFactory {
	return func(StoreConfig) (Store, error) {
		return persistence.NewRedisStoreWithClient(client, prefix, nil), nil
	}
}

// MongoStoreFactory returns a factory for a store on client. Empty names
// default to database "fluxoctx" and collection "context".
func MongoStoreFactory(client *mongo.Client, dbName, collName string) StoreFactory {
	return func(StoreConfig) (Store, error) {
		return persistence.NewMongoStoreWithClient(client, dbName, collName, nil), nil
	}
}
