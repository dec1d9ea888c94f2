package authkit

import (
	"context"
	"time"
)

const (
	// RefreshSessionNamespace prefixes refresh session keys in a shared backend.
	RefreshSessionNamespace = "refresh:"
	// DenylistNamespace prefixes access token jti keys in a shared backend.
	DenylistNamespace = "denylist:"
)

// NamespacedStore prefixes every key so several keyspaces can share one backend.
type NamespacedStore struct {
	backend RevocationStore
	prefix  string
}

// NewNamespacedStore wraps backend with prefix.
func NewNamespacedStore(backend RevocationStore, prefix string) *NamespacedStore {
	return &NamespacedStore{backend: backend, prefix: prefix}
}

func (store *NamespacedStore) Put(ctx context.Context, key string, value string, ttl time.Duration) error {
	if key == "" {
		return ErrRevocationKeyEmpty
	}
	return store.backend.Put(ctx, store.prefix+key, value, ttl)
}

func (store *NamespacedStore) Get(ctx context.Context, key string) (string, error) {
	return store.backend.Get(ctx, store.prefix+key)
}

func (store *NamespacedStore) Delete(ctx context.Context, key string) error {
	return store.backend.Delete(ctx, store.prefix+key)
}
