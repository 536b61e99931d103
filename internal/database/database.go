package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the database connection and provides methods for data access.
type DB struct {
	conn *sql.DB
}

// NewDB creates a new database connection and initializes the schema.
func NewDB(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the necessary tables if they don't exist.
func (db *DB) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS cache_entries (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			expires_at INTEGER NOT NULL,
			updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cache_expires_at ON cache_entries(expires_at)`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}

	return nil
}

// GetCacheEntry returns the value stored under key if it has not expired at
// now. Expired rows are removed on read.
func (db *DB) GetCacheEntry(ctx context.Context, key string, now time.Time) ([]byte, bool, error) {
	var (
		value     []byte
		expiresAt int64
	)

	err := db.conn.QueryRowContext(ctx,
		`SELECT value, expires_at FROM cache_entries WHERE key = ?`, key,
	).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry: %w", err)
	}

	if now.UnixNano() >= expiresAt {
		if _, err := db.conn.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
			return nil, false, fmt.Errorf("failed to delete expired cache entry: %w", err)
		}
		return nil, false, nil
	}

	return value, true, nil
}

// PutCacheEntry creates or replaces the value stored under key.
func (db *DB) PutCacheEntry(ctx context.Context, key string, value []byte, expiresAt time.Time) error {
	query := `INSERT INTO cache_entries (key, value, expires_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`

	_, err := db.conn.ExecContext(ctx, query,
		key,
		value,
		expiresAt.UnixNano(),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert cache entry: %w", err)
	}

	return nil
}

// DeleteCacheEntry removes key.
func (db *DB) DeleteCacheEntry(ctx context.Context, key string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// ClearCacheEntries removes every entry.
func (db *DB) ClearCacheEntries(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM cache_entries`); err != nil {
		return fmt.Errorf("failed to clear cache entries: %w", err)
	}
	return nil
}

// PurgeExpired deletes all entries expired at now and reports how many.
func (db *DB) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM cache_entries WHERE expires_at <= ?`, now.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired cache entries: %w", err)
	}
	return res.RowsAffected()
}

// CountCacheEntries returns the number of stored rows, expired included.
func (db *DB) CountCacheEntries(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return count, nil
}
