package transactions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS artist_transactions (
	transaction_id TEXT PRIMARY KEY,
	artist_name    TEXT NOT NULL,
	cache_enabled  INTEGER NOT NULL,
	source         TEXT NOT NULL,
	tracks_count   INTEGER NOT NULL,
	created_at     TEXT NOT NULL,
	expires_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS artist_transactions_expires_at_idx ON artist_transactions (expires_at);
`

// SQLiteStore persists records in a local SQLite file.
type SQLiteStore struct {
	sqlDB *sql.DB
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(sqliteSchema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{sqlDB: sqlDB}, nil
}

func (s *SQLiteStore) Put(ctx context.Context, record Record) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO artist_transactions (
		   transaction_id,
		   artist_name,
		   cache_enabled,
		   source,
		   tracks_count,
		   created_at,
		   expires_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.TransactionID,
		record.ArtistName,
		record.CacheEnabled,
		record.Source,
		record.TracksCount,
		record.CreatedAt.UTC().Format(time.RFC3339Nano),
		record.ExpiresAt.Unix(),
	)
	if err != nil {
		if isPrimaryKeyViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM artist_transactions WHERE expires_at <= ?`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("delete expired transactions: %w", err)
	}
	return result.RowsAffected()
}

// Get loads one record by id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Record, bool, error) {
	var (
		record    Record
		createdAt string
		expiresAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT transaction_id, artist_name, cache_enabled, source, tracks_count, created_at, expires_at
		 FROM artist_transactions WHERE transaction_id = ?`, id,
	).Scan(&record.TransactionID, &record.ArtistName, &record.CacheEnabled, &record.Source, &record.TracksCount, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("select transaction: %w", err)
	}
	record.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Record{}, false, fmt.Errorf("parse created_at: %w", err)
	}
	record.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	return record, true, nil
}

// Count reports how many records are stored, expired or not.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM artist_transactions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Close(context.Context) error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func isPrimaryKeyViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return false
}
