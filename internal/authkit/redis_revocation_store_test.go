package authkit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestNewRedisRevocationStoreFromURL(t *testing.T) {
	server := miniredis.RunT(t)
	store, err := NewRedisRevocationStore(context.Background(), "redis://"+server.Addr()+"/0")
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer store.Close()

	if err := store.Put(context.Background(), "denylist:jti-1", "logout", 90*time.Second); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if ttl := server.TTL("denylist:jti-1"); ttl != 90*time.Second {
		t.Fatalf("expected native ttl of 90s, got %v", ttl)
	}
}

func TestNewRedisRevocationStoreRejectsBadURL(t *testing.T) {
	if _, err := NewRedisRevocationStore(context.Background(), "http://localhost"); err == nil {
		t.Fatalf("expected error for non-redis url")
	}
}

func TestNewRedisRevocationStoreFailsWhenUnreachable(t *testing.T) {
	server := miniredis.RunT(t)
	address := server.Addr()
	server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := NewRedisRevocationStore(ctx, "redis://"+address); err == nil {
		t.Fatalf("expected ping failure")
	}
}
