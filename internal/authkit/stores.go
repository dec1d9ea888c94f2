package authkit

import (
	"context"
	"time"
)

// UserRecord is the slice of a stored user the auth flows depend on.
type UserRecord struct {
	UserID       string
	Username     string
	Email        string
	FirstName    string
	LastName     string
	Role         string
	IsVerified   bool
	PasswordHash string
}

// NewUser describes a signup request after password hashing.
type NewUser struct {
	Username     string
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
}

// UserStore persists and retrieves application users.
// Lookups for unknown emails return ErrUserNotFound.
type UserStore interface {
	CreateUser(ctx context.Context, user NewUser) (UserRecord, error)
	UserExists(ctx context.Context, email string) (bool, error)
	GetUserByEmail(ctx context.Context, email string) (UserRecord, error)
	MarkVerified(ctx context.Context, email string) error
	UpdatePasswordHash(ctx context.Context, email string, passwordHash string) error
}

// RevocationStore is a key-value store with per-key expiry.
// It holds refresh sessions and access token denylist entries.
type RevocationStore interface {
	// Put upserts key with value, expiring after ttl.
	Put(ctx context.Context, key string, value string, ttl time.Duration) error
	// Get returns ErrRevocationKeyNotFound when key is absent or expired.
	Get(ctx context.Context, key string) (string, error)
	// Delete returns ErrRevocationKeyNotFound when nothing was removed.
	Delete(ctx context.Context, key string) error
}
