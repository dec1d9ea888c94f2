package authkit

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// ActionEmailVerification marks links that confirm an email address.
	ActionEmailVerification = "email-verification"
	// ActionPasswordReset marks links that apply a new password hash.
	ActionPasswordReset = "password-reset"

	actionTokenSalt = "email-configuration"
)

// ActionPayload is carried inside verification and password reset links.
type ActionPayload struct {
	Email        string `json:"email"`
	PasswordHash string `json:"passwd_hash,omitempty"`
}

type actionClaims struct {
	Purpose string `json:"purpose"`
	ActionPayload
	jwt.RegisteredClaims
}

// ActionTokenSigner produces timed URL-safe tokens for emailed links.
type ActionTokenSigner struct {
	signingKey []byte
	maxAge     time.Duration
	clock      Clock
}

// NewActionTokenSigner derives a dedicated key from secret so action tokens never verify as access tokens.
func NewActionTokenSigner(secret []byte, maxAge time.Duration, clock Clock) (*ActionTokenSigner, error) {
	if len(secret) == 0 {
		return nil, errEmptySigningKey
	}
	if maxAge <= 0 {
		return nil, errNonPositiveTTL
	}
	if clock == nil {
		clock = NewSystemClock()
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(actionTokenSalt))
	return &ActionTokenSigner{signingKey: mac.Sum(nil), maxAge: maxAge, clock: clock}, nil
}

// Sign encodes payload for purpose.
func (signer *ActionTokenSigner) Sign(purpose string, payload ActionPayload) (string, error) {
	if strings.TrimSpace(payload.Email) == "" {
		return "", fmt.Errorf("action_token.sign: %w", errEmptyTokenSubject)
	}
	issuedAt := signer.clock.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, actionClaims{
		Purpose:       purpose,
		ActionPayload: payload,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(signer.maxAge)),
		},
	})
	signed, err := token.SignedString(signer.signingKey)
	if err != nil {
		return "", fmt.Errorf("action_token.sign: %w", err)
	}
	return signed, nil
}

// Parse decodes token and checks its purpose and age.
func (signer *ActionTokenSigner) Parse(purpose string, token string) (ActionPayload, error) {
	parsedToken, parseErr := jwt.ParseWithClaims(token, &actionClaims{}, func(parsed *jwt.Token) (interface{}, error) {
		return signer.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired(), jwt.WithTimeFunc(signer.clock.Now))
	if parseErr != nil || parsedToken == nil || !parsedToken.Valid {
		return ActionPayload{}, fmt.Errorf("action_token.parse: %w", ErrActionTokenInvalid)
	}
	claims, ok := parsedToken.Claims.(*actionClaims)
	if !ok || claims.Purpose != purpose || claims.Email == "" {
		return ActionPayload{}, fmt.Errorf("action_token.parse.%s: %w", purpose, ErrActionTokenInvalid)
	}
	return claims.ActionPayload, nil
}
