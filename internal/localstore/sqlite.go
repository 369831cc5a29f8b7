package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const kvSchema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at TEXT NOT NULL
)`

// SQLiteBackend stores values in a single kv table of a SQLite database.
type SQLiteBackend struct {
	db *sql.DB
}

// OpenSQLiteBackend creates or opens the database at path.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//   - IMMEDIATE transactions, so Update takes the write lock before reading
func OpenSQLiteBackend(path string) (*SQLiteBackend, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite3", path+sep+"_txlock=immediate&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("OpenSQLiteBackend: opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("OpenSQLiteBackend: connecting: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("OpenSQLiteBackend: executing %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(kvSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("OpenSQLiteBackend: applying schema: %w", err)
	}

	return &SQLiteBackend{db: db}, nil
}

// Get implements Backend.
func (s *SQLiteBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("SQLiteBackend.Get: %w", err)
	}
	return value, true, nil
}

const upsertKV = `
	INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

// Set implements Backend.
func (s *SQLiteBackend) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, upsertKV, key, value, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("SQLiteBackend.Set: %w", err)
	}
	return nil
}

// Update implements Updater. The read and the write share one IMMEDIATE
// transaction, so writers in other processes wait instead of interleaving.
func (s *SQLiteBackend) Update(ctx context.Context, key string, fn func(current []byte, ok bool) ([]byte, error)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("SQLiteBackend.Update: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var current []byte
	ok := true
	err = tx.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		ok = false
	} else if err != nil {
		return fmt.Errorf("SQLiteBackend.Update: select: %w", err)
	}

	next, err := fn(current, ok)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, upsertKV, key, next, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("SQLiteBackend.Update: upsert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("SQLiteBackend.Update: commit: %w", err)
	}
	return nil
}

// Close implements Backend.
func (s *SQLiteBackend) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

var (
	_ Backend = (*SQLiteBackend)(nil)
	_ Updater = (*SQLiteBackend)(nil)
)
