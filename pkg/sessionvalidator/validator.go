// Package sessionvalidator lets other services accept bookly access tokens
// without calling back into the auth API.
package sessionvalidator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// Now returns the current UTC timestamp.
func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// RevocationChecker reports whether an access token id was revoked at logout.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Config configures the Validator. Revocations is optional; without it logged
// out tokens stay valid until they expire.
type Config struct {
	SigningKey  []byte
	Revocations RevocationChecker
	Clock       Clock
}

// DefaultContextKey is used by GinMiddleware when no explicit key is provided.
const DefaultContextKey = "auth_claims"

// Sentinel errors exposed by the validator.
var (
	ErrMissingSigningKey = errors.New("session.validator.missing_signing_key")
	ErrMissingToken      = errors.New("session.validator.missing_token")
	ErrInvalidToken      = errors.New("session.validator.invalid_token")
	ErrTokenExpired      = errors.New("session.validator.expired")
	ErrTokenRevoked      = errors.New("session.validator.revoked")
)

// Identity mirrors the user object embedded in access tokens.
type Identity struct {
	Email  string `json:"email"`
	UserID string `json:"user_uid"`
	Role   string `json:"role"`
}

// Claims represent the payload of a bookly access token.
type Claims struct {
	User Identity `json:"user"`
	jwt.RegisteredClaims
}

// GetUserEmail returns the email associated with the token.
func (claims *Claims) GetUserEmail() string {
	if claims == nil {
		return ""
	}
	return claims.User.Email
}

// GetUserRole returns the role associated with the token.
func (claims *Claims) GetUserRole() string {
	if claims == nil {
		return ""
	}
	return claims.User.Role
}

// GetExpiresAt returns the expiry timestamp.
func (claims *Claims) GetExpiresAt() time.Time {
	if claims == nil || claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

// Validator validates bookly bearer access tokens.
type Validator struct {
	signingKey  []byte
	revocations RevocationChecker
	clock       Clock
}

// New constructs a Validator after validating the supplied configuration.
func New(configuration Config) (*Validator, error) {
	if len(configuration.SigningKey) == 0 {
		return nil, fmt.Errorf("session.validator.new: %w", ErrMissingSigningKey)
	}
	clock := configuration.Clock
	if clock == nil {
		clock = systemClock{}
	}
	return &Validator{
		signingKey:  configuration.SigningKey,
		revocations: configuration.Revocations,
		clock:       clock,
	}, nil
}

// ValidateToken checks signature, expiry, and revocation of tokenString.
func (validator *Validator) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, fmt.Errorf("session.validator.validate_token: %w", ErrMissingToken)
	}
	parsedToken, parseErr := jwt.ParseWithClaims(tokenString, &Claims{}, func(parsed *jwt.Token) (interface{}, error) {
		return validator.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired(), jwt.WithTimeFunc(validator.clock.Now))
	if parseErr != nil {
		if errors.Is(parseErr, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("session.validator.validate_token: %w", ErrTokenExpired)
		}
		return nil, fmt.Errorf("session.validator.validate_token: %w", ErrInvalidToken)
	}
	claims, ok := parsedToken.Claims.(*Claims)
	if !ok || !parsedToken.Valid || claims.ID == "" || claims.User.Email == "" {
		return nil, fmt.Errorf("session.validator.validate_token: %w", ErrInvalidToken)
	}
	if !validator.clock.Now().Before(claims.ExpiresAt.Time) {
		return nil, fmt.Errorf("session.validator.validate_token: %w", ErrTokenExpired)
	}
	if validator.revocations != nil {
		revoked, revokedErr := validator.revocations.IsRevoked(ctx, claims.ID)
		if revokedErr != nil {
			return nil, fmt.Errorf("session.validator.revocation_lookup: %w", errors.Join(ErrInvalidToken, revokedErr))
		}
		if revoked {
			return nil, fmt.Errorf("session.validator.validate_token: %w", ErrTokenRevoked)
		}
	}
	return claims, nil
}

// ValidateRequest reads the bearer token from the Authorization header and validates it.
func (validator *Validator) ValidateRequest(request *http.Request) (*Claims, error) {
	if request == nil {
		return nil, fmt.Errorf("session.validator.validate_request: %w", ErrMissingToken)
	}
	scheme, token, found := strings.Cut(strings.TrimSpace(request.Header.Get("Authorization")), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return nil, fmt.Errorf("session.validator.validate_request: %w", ErrMissingToken)
	}
	return validator.ValidateToken(request.Context(), strings.TrimSpace(token))
}

// GinMiddleware returns a Gin middleware that validates the bearer token and injects claims.
func (validator *Validator) GinMiddleware(contextKey string) gin.HandlerFunc {
	if strings.TrimSpace(contextKey) == "" {
		contextKey = DefaultContextKey
	}
	return func(contextGin *gin.Context) {
		claims, err := validator.ValidateRequest(contextGin.Request)
		if err != nil {
			contextGin.Header("WWW-Authenticate", "Bearer")
			contextGin.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		contextGin.Set(contextKey, claims)
		contextGin.Next()
	}
}

// DefaultDenylistPrefix is the key prefix bookly uses for logged out token ids.
const DefaultDenylistPrefix = "denylist:"

// RedisRevocationChecker reads the denylist bookly keeps in Redis.
type RedisRevocationChecker struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisRevocationChecker wraps client. An empty prefix uses DefaultDenylistPrefix.
func NewRedisRevocationChecker(client redis.UniversalClient, prefix string) *RedisRevocationChecker {
	if prefix == "" {
		prefix = DefaultDenylistPrefix
	}
	return &RedisRevocationChecker{client: client, prefix: prefix}
}

// IsRevoked reports whether tokenID has a live denylist entry.
func (checker *RedisRevocationChecker) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	count, err := checker.client.Exists(ctx, checker.prefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("session.validator.redis: %w", err)
	}
	return count > 0, nil
}
