package transactions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS artist_transactions (
	transaction_id TEXT PRIMARY KEY,
	artist_name    TEXT NOT NULL,
	cache_enabled  BOOLEAN NOT NULL,
	source         TEXT NOT NULL,
	tracks_count   INTEGER NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	expires_at     BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS artist_transactions_expires_at_idx ON artist_transactions (expires_at);
`

// PostgresStore writes records to the artist_transactions table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to databaseURL and creates the table when missing.
func NewPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Put(ctx context.Context, record Record) error {
	query := `
		INSERT INTO artist_transactions (transaction_id, artist_name, cache_enabled, source, tracks_count, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.pool.Exec(ctx, query,
		record.TransactionID,
		record.ArtistName,
		record.CacheEnabled,
		record.Source,
		record.TracksCount,
		record.CreatedAt,
		record.ExpiresAt.Unix(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicate
		}
		return fmt.Errorf("inserting transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.pool.Exec(ctx, `DELETE FROM artist_transactions WHERE expires_at <= $1`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("deleting expired transactions: %w", err)
	}
	return result.RowsAffected(), nil
}

// Count reports how many records are stored, expired or not.
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM artist_transactions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting transactions: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Close(context.Context) error {
	s.pool.Close()
	return nil
}
