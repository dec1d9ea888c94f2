package authkitpg

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tyemirov/bookly/internal/authkit"
)

// PostgresRevocationStore keeps refresh sessions and denylist entries in PostgreSQL.
type PostgresRevocationStore struct {
	pool  *pgxpool.Pool
	clock authkit.Clock
}

// NewPostgresRevocationStore wraps pool. A nil clock uses the system clock.
func NewPostgresRevocationStore(pool *pgxpool.Pool, clock authkit.Clock) *PostgresRevocationStore {
	if clock == nil {
		clock = authkit.NewSystemClock()
	}
	return &PostgresRevocationStore{pool: pool, clock: clock}
}

// Open builds a pool for databaseURL, ensures the schema, and returns the store.
func Open(ctx context.Context, databaseURL string, clock authkit.Clock) (*PostgresRevocationStore, error) {
	pool, err := BuildPool(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("revocation_store.open.pgx: %w", err)
	}
	if schemaErr := EnsureSchema(ctx, pool); schemaErr != nil {
		pool.Close()
		return nil, fmt.Errorf("revocation_store.schema.pgx: %w", schemaErr)
	}
	return NewPostgresRevocationStore(pool, clock), nil
}

// Put upserts key with a fresh expiry.
func (store *PostgresRevocationStore) Put(ctx context.Context, key string, value string, ttl time.Duration) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("revocation_store.put.pgx: %w", authkit.ErrRevocationKeyEmpty)
	}
	if ttl <= 0 {
		return fmt.Errorf("revocation_store.put.pgx: %w", authkit.ErrRevocationTTLInvalid)
	}
	_, err := store.pool.Exec(ctx, `
INSERT INTO revocation_entries (key_id, value, expires_unix_milli)
VALUES ($1, $2, $3)
ON CONFLICT (key_id) DO UPDATE SET value = EXCLUDED.value, expires_unix_milli = EXCLUDED.expires_unix_milli
`, key, value, store.clock.Now().Add(ttl).UnixMilli())
	if err != nil {
		return fmt.Errorf("revocation_store.put.pgx: %w", err)
	}
	return nil
}

// Get returns the value of a live key.
func (store *PostgresRevocationStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	row := store.pool.QueryRow(ctx, `
SELECT value
FROM revocation_entries
WHERE key_id = $1 AND expires_unix_milli > $2
`, key, store.clock.Now().UnixMilli())
	if scanErr := row.Scan(&value); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return "", fmt.Errorf("revocation_store.get.pgx: %w", authkit.ErrRevocationKeyNotFound)
		}
		return "", fmt.Errorf("revocation_store.get.pgx: %w", scanErr)
	}
	return value, nil
}

// Delete removes a live key. Row locking ensures one winner among concurrent callers.
func (store *PostgresRevocationStore) Delete(ctx context.Context, key string) error {
	tag, err := store.pool.Exec(ctx, `
DELETE FROM revocation_entries
WHERE key_id = $1 AND expires_unix_milli > $2
`, key, store.clock.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("revocation_store.delete.pgx: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("revocation_store.delete.pgx: %w", authkit.ErrRevocationKeyNotFound)
	}
	return nil
}

// PurgeExpired removes lapsed rows and reports how many were deleted.
func (store *PostgresRevocationStore) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := store.pool.Exec(ctx, `DELETE FROM revocation_entries WHERE expires_unix_milli <= $1`, store.clock.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("revocation_store.purge.pgx: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Close releases the pool.
func (store *PostgresRevocationStore) Close() error {
	store.pool.Close()
	return nil
}
