package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// sqlDialect captures the differences between the SQL backends.
type sqlDialect struct {
	driver string
	schema string
	// placeholder renders the n-th (1-based) bind parameter.
	placeholder func(n int) string
}

// sqlStore is the database/sql implementation shared by the SQLite and
// PostgreSQL stores. Values live in one table:
//
//	context_values(id, scope, key, value) UNIQUE(scope, key)
//
// id is monotonic, so ordering by it yields insertion order; upserts keep
// the original id.
type sqlStore struct {
	dialect sqlDialect
	dsn     string
	codec   Codec

	db     *sql.DB
	ownsDB bool
}

func (s *sqlStore) open(ctx context.Context) error {
	if s.db == nil {
		db, err := sql.Open(s.dialect.driver, s.dsn)
		if err != nil {
			return err
		}
		s.db = db
		s.ownsDB = true
	}
	if err := s.db.PingContext(ctx); err != nil {
		return err
	}
	return s.initSchema(ctx)
}

func (s *sqlStore) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, s.dialect.schema)
	return err
}

func (s *sqlStore) close() error {
	if s.db == nil || !s.ownsDB {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// rebind rewrites '?' placeholders for the dialect.
func (s *sqlStore) rebind(query string) string {
	if s.dialect.placeholder == nil {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(s.dialect.placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) get(ctx context.Context, scope, key string) (any, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT value FROM context_values
		WHERE scope = ? AND key = ?`),
		scope, key,
	)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s.codec.Decode(data)
}

func (s *sqlStore) set(ctx context.Context, scope, key string, value any) error {
	if value == nil {
		_, err := s.db.ExecContext(ctx, s.rebind(`
			DELETE FROM context_values
			WHERE scope = ? AND key = ?`),
			scope, key,
		)
		return err
	}

	data, err := s.codec.Encode(value)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", scope, key, err)
	}

	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO context_values (scope, key, value)
		VALUES (?, ?, ?)
		ON CONFLICT (scope, key) DO UPDATE SET value = excluded.value`),
		scope, key, data,
	)
	return err
}

func (s *sqlStore) keys(ctx context.Context, scope string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT key FROM context_values
		WHERE scope = ?
		ORDER BY id`),
		scope,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *sqlStore) delete(ctx context.Context, scope string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM context_values WHERE scope = ?`), scope)
	return err
}

func (s *sqlStore) clean(ctx context.Context, activeNodes []string) error {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT scope FROM context_values`)
	if err != nil {
		return err
	}
	var scopes []string
	for rows.Next() {
		var scope string
		if err := rows.Scan(&scope); err != nil {
			rows.Close()
			return err
		}
		scopes = append(scopes, scope)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	stale := staleScopes(scopes, activeNodes)
	if len(stale) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt := s.rebind(`DELETE FROM context_values WHERE scope = ?`)
	for _, scope := range stale {
		if _, err := tx.ExecContext(ctx, stmt, scope); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
