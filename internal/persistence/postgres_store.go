package persistence

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver

	"github.com/petrijr/fluxoctx/pkg/api"
)

// PostgresStore is a Store backed by PostgreSQL through pgx's database/sql
// driver.
type PostgresStore struct {
	sqlStore
}

// Ensure PostgresStore implements Store.
var _ api.Store = (*PostgresStore)(nil)

var postgresDialect = sqlDialect{
	driver: "pgx",
	schema: `
		CREATE TABLE IF NOT EXISTS context_values (
			id BIGSERIAL PRIMARY KEY,
			scope TEXT NOT NULL,
			key TEXT NOT NULL,
			value BYTEA,
			UNIQUE (scope, key)
		);`,
	placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
}

// NewPostgresStore returns a store that connects with dsn when Open is called.
func NewPostgresStore(dsn string, codec Codec) *PostgresStore {
	if codec == nil {
		codec = GobCodec{}
	}
	return &PostgresStore{sqlStore{dialect: postgresDialect, dsn: dsn, codec: codec}}
}

// NewPostgresStoreWithDB returns a store using an existing database handle.
// The caller keeps ownership of db.
func NewPostgresStoreWithDB(db *sql.DB, codec Codec) *PostgresStore {
	s := NewPostgresStore("", codec)
	s.db = db
	return s
}

// NewPostgresStoreFromConfig is the "postgres" module factory.
//
// Options: "dsn" (required), "codec" (gob or json).
func NewPostgresStoreFromConfig(cfg api.StoreConfig) (api.Store, error) {
	dsn := cfg.String("dsn", "")
	if dsn == "" {
		return nil, errors.New("postgres: dsn is required")
	}
	codec, err := codecFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return NewPostgresStore(dsn, codec), nil
}

func (s *PostgresStore) Open(ctx context.Context) error { return s.open(ctx) }

func (s *PostgresStore) Close(ctx context.Context) error { return s.close() }

func (s *PostgresStore) Get(ctx context.Context, scope, key string) (any, error) {
	return s.get(ctx, scope, key)
}

func (s *PostgresStore) Set(ctx context.Context, scope, key string, value any) error {
	return s.set(ctx, scope, key, value)
}

func (s *PostgresStore) Keys(ctx context.Context, scope string) ([]string, error) {
	return s.keys(ctx, scope)
}

func (s *PostgresStore) Delete(ctx context.Context, scope string) error {
	return s.delete(ctx, scope)
}

func (s *PostgresStore) Clean(ctx context.Context, activeNodes []string) error {
	return s.clean(ctx, activeNodes)
}
