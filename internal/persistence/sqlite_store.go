package persistence

import (
	"context"
	"database/sql"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/petrijr/fluxoctx/pkg/api"
)

// SQLiteStore is a Store backed by SQLite through modernc.org/sqlite.
type SQLiteStore struct {
	sqlStore
}

// Ensure SQLiteStore implements Store.
var _ api.Store = (*SQLiteStore)(nil)

var sqliteDialect = sqlDialect{
	driver: "sqlite",
	schema: `
		CREATE TABLE IF NOT EXISTS context_values (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			scope TEXT NOT NULL,
			key TEXT NOT NULL,
			value BLOB,
			UNIQUE (scope, key)
		);`,
}

// NewSQLiteStore returns a store that opens the database at path when Open
// is called.
func NewSQLiteStore(path string, codec Codec) *SQLiteStore {
	if codec == nil {
		codec = GobCodec{}
	}
	return &SQLiteStore{sqlStore{dialect: sqliteDialect, dsn: path, codec: codec}}
}

// NewSQLiteStoreWithDB returns a store using an existing database handle.
// The caller keeps ownership of db; Close leaves it open.
func NewSQLiteStoreWithDB(db *sql.DB, codec Codec) *SQLiteStore {
	s := NewSQLiteStore("", codec)
	s.db = db
	return s
}

// NewSQLiteStoreFromConfig is the "sqlite" module factory.
//
// Options: "path" (default <userDir>/context.db), "codec" (gob or json).
func NewSQLiteStoreFromConfig(cfg api.StoreConfig) (api.Store, error) {
	codec, err := codecFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	path := cfg.String("path", "")
	if path == "" {
		path = filepath.Join(cfg.UserDir, "context.db")
	}
	return NewSQLiteStore(path, codec), nil
}

func (s *SQLiteStore) Open(ctx context.Context) error {
	if err := s.open(ctx); err != nil {
		return err
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY.
	if s.ownsDB {
		s.db.SetMaxOpenConns(1)
	}
	return nil
}

func (s *SQLiteStore) Close(ctx context.Context) error { return s.close() }

func (s *SQLiteStore) Get(ctx context.Context, scope, key string) (any, error) {
	return s.get(ctx, scope, key)
}

func (s *SQLiteStore) Set(ctx context.Context, scope, key string, value any) error {
	return s.set(ctx, scope, key, value)
}

func (s *SQLiteStore) Keys(ctx context.Context, scope string) ([]string, error) {
	return s.keys(ctx, scope)
}

func (s *SQLiteStore) Delete(ctx context.Context, scope string) error {
	return s.delete(ctx, scope)
}

func (s *SQLiteStore) Clean(ctx context.Context, activeNodes []string) error {
	return s.clean(ctx, activeNodes)
}
