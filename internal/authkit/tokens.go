package authkit

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	errEmptySigningKey   = errors.New("jwt.config: signing key must be non-empty")
	errNonPositiveTTL    = errors.New("jwt.config: ttl must be greater than zero")
	errEmptyTokenSubject = errors.New("jwt.mint.failure: subject must be non-empty")
	errEmptyTokenID      = errors.New("jwt.mint.failure: jti must be non-empty")
)

// Identity is the user identity embedded in access tokens.
type Identity struct {
	Email  string `json:"email"`
	UserID string `json:"user_uid"`
	Role   string `json:"role"`
}

// AccessClaims are embedded in the access token.
type AccessClaims struct {
	User Identity `json:"user"`
	jwt.RegisteredClaims
}

// ExpiresAtTime returns the expiry timestamp or the zero time.
func (claims *AccessClaims) ExpiresAtTime() time.Time {
	if claims == nil || claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

// TokenService signs and decodes HS256 access tokens.
type TokenService struct {
	signingKey []byte
	ttl        time.Duration
	clock      Clock
}

// NewTokenService validates the signing configuration.
func NewTokenService(signingKey []byte, ttl time.Duration, clock Clock) (*TokenService, error) {
	if len(signingKey) == 0 {
		return nil, errEmptySigningKey
	}
	if ttl <= 0 {
		return nil, errNonPositiveTTL
	}
	if clock == nil {
		clock = NewSystemClock()
	}
	return &TokenService{signingKey: signingKey, ttl: ttl, clock: clock}, nil
}

// TTL reports the configured access token lifetime.
func (service *TokenService) TTL() time.Duration {
	return service.ttl
}

// NewJTI returns a fresh access token identifier.
func (service *TokenService) NewJTI() string {
	return uuid.NewString()
}

// IssueAccessToken creates a signed access token for identity carrying jti.
func (service *TokenService) IssueAccessToken(identity Identity, jti string) (string, time.Time, error) {
	if strings.TrimSpace(identity.Email) == "" {
		return "", time.Time{}, errEmptyTokenSubject
	}
	if strings.TrimSpace(jti) == "" {
		return "", time.Time{}, errEmptyTokenID
	}
	issuedAt := service.clock.Now().UTC()
	expiresAt := issuedAt.Add(service.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		User: identity,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(service.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("jwt.mint.failure: %w", err)
	}
	return signed, expiresAt, nil
}

// DecodeAccessToken verifies the signature and algorithm of token.
// Expiry is left to the caller.
func (service *TokenService) DecodeAccessToken(token string) (*AccessClaims, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("jwt.decode: %w", ErrInvalidToken)
	}
	parsedToken, parseErr := jwt.ParseWithClaims(token, &AccessClaims{}, func(parsed *jwt.Token) (interface{}, error) {
		return service.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation())
	if parseErr != nil || parsedToken == nil || !parsedToken.Valid {
		return nil, fmt.Errorf("jwt.decode: %w", ErrInvalidToken)
	}
	claims, ok := parsedToken.Claims.(*AccessClaims)
	if !ok || claims.ID == "" || claims.User.Email == "" || claims.ExpiresAt == nil {
		return nil, fmt.Errorf("jwt.decode.claims: %w", ErrInvalidToken)
	}
	return claims, nil
}

// IsExpired reports whether claims are past their expiry according to the service clock.
func (service *TokenService) IsExpired(claims *AccessClaims) bool {
	return !service.clock.Now().Before(claims.ExpiresAtTime())
}

// RemainingLifetime returns how long claims stay valid, or zero once expired.
func (service *TokenService) RemainingLifetime(claims *AccessClaims) time.Duration {
	remaining := claims.ExpiresAtTime().Sub(service.clock.Now())
	if remaining < 0 {
		return 0
	}
	return remaining
}
