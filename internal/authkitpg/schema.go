package authkitpg

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates the revocation table if it does not exist.
// The layout matches the GORM-managed table so either backend can own it.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS revocation_entries (
    key_id TEXT PRIMARY KEY,
    value TEXT NOT NULL DEFAULT '',
    expires_unix_milli BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_revocation_entries_expires_unix_milli ON revocation_entries (expires_unix_milli);
`)
	return err
}
