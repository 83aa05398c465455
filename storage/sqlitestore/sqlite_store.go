// Package sqlitestore persists credentials in a SQLite key/value table using
// github.com/mattn/go-sqlite3.
package sqlitestore

import (
	"context"
	"database/sql"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/pkg/errors"

	interrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/storage"
)

const (
	createTableSQL = `CREATE TABLE IF NOT EXISTS credentials (
	key   TEXT PRIMARY KEY NOT NULL,
	value TEXT NOT NULL
)`
	selectSQL = `SELECT value FROM credentials WHERE key = ?`
	upsertSQL = `INSERT INTO credentials (key, value) VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	deleteSQL = `DELETE FROM credentials WHERE key = ?`
)

var _ storage.Repo = (*Store)(nil)

type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at source and ensures the table
// exists. source is a file path or a sqlite URI such as ":memory:".
func Open(ctx context.Context, source string) (*Store, error) {
	if source == "" {
		return nil, errors.New("[sqlitestore.Open] source is empty")
	}
	db, err := sql.Open("sqlite3", source)
	if err != nil {
		return nil, errors.Wrap(err, "[sqlitestore.Open] sql.Open")
	}
	// One writer keeps sqlite happy and makes ":memory:" a single database.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "[sqlitestore.Open] ping")
	}
	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "[sqlitestore.Open] create table")
	}
	return &Store{db: db}, nil
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, selectSQL, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "[sqlitestore.Get] %s", key)
	}
	return value, true, nil
}

// Set writes all values in one transaction.
func (s *Store) Set(ctx context.Context, values map[string]string) (err error) {
	for k := range values {
		if k == "" {
			return interrors.ErrEmptyKey
		}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "[sqlitestore.Set] begin")
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return errors.Wrap(err, "[sqlitestore.Set] prepare")
	}
	defer stmt.Close()

	for k, v := range values {
		if _, err = stmt.ExecContext(ctx, k, v); err != nil {
			return errors.Wrapf(err, "[sqlitestore.Set] %s", k)
		}
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "[sqlitestore.Set] commit")
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, keys ...string) (err error) {
	if len(keys) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "[sqlitestore.Delete] begin")
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for _, k := range keys {
		if _, err = tx.ExecContext(ctx, deleteSQL, k); err != nil {
			return errors.Wrapf(err, "[sqlitestore.Delete] %s", k)
		}
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "[sqlitestore.Delete] commit")
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
