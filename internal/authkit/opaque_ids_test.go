package authkit

import (
	"bytes"
	"errors"
	"testing"
)

type failingRandomSource struct{}

func (f failingRandomSource) Read(p []byte) (int, error) {
	return 0, errors.New("forced failure")
}

func TestNewOpaqueSessionIDError(t *testing.T) {
	original := refreshTokenRandomSource
	refreshTokenRandomSource = failingRandomSource{}
	defer func() { refreshTokenRandomSource = original }()

	if _, err := NewOpaqueSessionID(); err == nil {
		t.Fatalf("expected error when random source fails")
	}
}

func TestNewOpaqueSessionIDDeterministicSource(t *testing.T) {
	original := refreshTokenRandomSource
	refreshTokenRandomSource = bytes.NewReader(bytes.Repeat([]byte{1}, refreshOpaqueByteLength))
	defer func() { refreshTokenRandomSource = original }()

	opaque, err := NewOpaqueSessionID()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opaque == "" {
		t.Fatalf("expected non-empty opaque id")
	}
	if refreshSessionKey(opaque) == opaque {
		t.Fatalf("expected store key to differ from opaque id")
	}
}

func TestNewOpaqueSessionIDIsUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for index := 0; index < 64; index++ {
		opaque, err := NewOpaqueSessionID()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, exists := seen[opaque]; exists {
			t.Fatalf("duplicate opaque id %q", opaque)
		}
		seen[opaque] = struct{}{}
	}
}
