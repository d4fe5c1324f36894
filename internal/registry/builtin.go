package registry

import (
	"github.com/petrijr/fluxoctx/internal/persistence"
	"github.com/petrijr/fluxoctx/pkg/api"
)

// builtinModules maps the module names accepted in the storage
// configuration to their store factories.
func builtinModules() map[string]api.StoreFactory {
	return map[string]api.StoreFactory{
		"memory":          persistence.NewInMemoryStoreFromConfig,
		"localfilesystem": persistence.NewFileStoreFromConfig,
		"sqlite":          persistence.NewSQLiteStoreFromConfig,
		"postgres":        persistence.NewPostgresStoreFromConfig,
		"redis":           persistence.NewRedisStoreFromConfig,
		"mongodb":         persistence.NewMongoStoreFromConfig,
	}
}
