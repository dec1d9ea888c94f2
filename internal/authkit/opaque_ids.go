package authkit

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
)

const refreshOpaqueByteLength = 32

var refreshTokenRandomSource io.Reader = rand.Reader

// NewOpaqueSessionID returns an unguessable refresh session identifier.
func NewOpaqueSessionID() (string, error) {
	randomBytes := make([]byte, refreshOpaqueByteLength)
	if _, err := io.ReadFull(refreshTokenRandomSource, randomBytes); err != nil {
		return "", fmt.Errorf("session_id.random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(randomBytes), nil
}

// refreshSessionKey maps the opaque id handed to the client onto its store key.
func refreshSessionKey(opaque string) string {
	sum := sha256.Sum256([]byte(opaque))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
