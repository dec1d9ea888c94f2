package authkit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const denylistSentinel = "logout"

var (
	errMissingUserStore   = errors.New("auth.session.missing_user_store")
	errMissingTokens      = errors.New("auth.session.missing_token_service")
	errMissingRefreshRepo = errors.New("auth.session.missing_refresh_store")
	errMissingDenylist    = errors.New("auth.session.missing_denylist_store")
)

// SessionDependencies are the collaborators of a SessionService.
type SessionDependencies struct {
	Users           UserStore
	Tokens          *TokenService
	RefreshSessions RevocationStore
	Denylist        RevocationStore
	Clock           Clock
	Logger          *zap.Logger
	Metrics         MetricsRecorder
}

// IssuedSession is returned by login and refresh.
type IssuedSession struct {
	AccessToken     string
	AccessExpiresAt time.Time
	RefreshID       string
	User            UserRecord
}

// SessionService drives the login, refresh rotation, logout, and authentication flows.
type SessionService struct {
	refreshTTL      time.Duration
	users           UserStore
	tokens          *TokenService
	refreshSessions RevocationStore
	denylist        RevocationStore
	clock           Clock
	logger          *zap.Logger
	metrics         MetricsRecorder
}

// NewSessionService validates dependencies and applies defaults.
func NewSessionService(configuration ServerConfig, dependencies SessionDependencies) (*SessionService, error) {
	switch {
	case dependencies.Users == nil:
		return nil, errMissingUserStore
	case dependencies.Tokens == nil:
		return nil, errMissingTokens
	case dependencies.RefreshSessions == nil:
		return nil, errMissingRefreshRepo
	case dependencies.Denylist == nil:
		return nil, errMissingDenylist
	}
	refreshTTL := configuration.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}
	service := &SessionService{
		refreshTTL:      refreshTTL,
		users:           dependencies.Users,
		tokens:          dependencies.Tokens,
		refreshSessions: dependencies.RefreshSessions,
		denylist:        dependencies.Denylist,
		clock:           dependencies.Clock,
		logger:          dependencies.Logger,
		metrics:         dependencies.Metrics,
	}
	if service.clock == nil {
		service.clock = NewSystemClock()
	}
	if service.logger == nil {
		service.logger = zap.NewNop()
	}
	if service.metrics == nil {
		service.metrics = noopMetrics{}
	}
	return service, nil
}

// RefreshTTL reports the lifetime of refresh sessions.
func (service *SessionService) RefreshTTL() time.Duration {
	return service.refreshTTL
}

// Login verifies credentials and opens a new refresh session.
func (service *SessionService) Login(ctx context.Context, email string, password string) (IssuedSession, error) {
	user, lookupErr := service.users.GetUserByEmail(ctx, normalizeEmail(email))
	if lookupErr != nil {
		if errors.Is(lookupErr, ErrUserNotFound) {
			service.metrics.Increment(metricAuthLoginFailure)
			return IssuedSession{}, ErrInvalidCredentials
		}
		return IssuedSession{}, fmt.Errorf("auth.login.lookup: %w", lookupErr)
	}
	if !VerifyPassword(password, user.PasswordHash) {
		service.metrics.Increment(metricAuthLoginFailure)
		return IssuedSession{}, ErrInvalidCredentials
	}

	session, issueErr := service.issueAccessToken(user)
	if issueErr != nil {
		return IssuedSession{}, issueErr
	}
	refreshID, openErr := service.openRefreshSession(ctx, user.Email)
	if openErr != nil {
		return IssuedSession{}, openErr
	}
	session.RefreshID = refreshID
	service.metrics.Increment(metricAuthLoginSuccess)
	return session, nil
}

// Refresh exchanges refreshID for a new access token and a rotated refresh id.
// Every failure, including store errors, yields ErrInvalidToken.
func (service *SessionService) Refresh(ctx context.Context, refreshID string) (IssuedSession, error) {
	session, err := service.rotate(ctx, refreshID)
	if err != nil {
		service.metrics.Increment(metricAuthRefreshFailure)
		return IssuedSession{}, err
	}
	service.metrics.Increment(metricAuthRefreshSuccess)
	return session, nil
}

func (service *SessionService) rotate(ctx context.Context, refreshID string) (IssuedSession, error) {
	if strings.TrimSpace(refreshID) == "" {
		return IssuedSession{}, ErrInvalidToken
	}
	currentKey := refreshSessionKey(refreshID)
	ownerEmail, getErr := service.refreshSessions.Get(ctx, currentKey)
	if getErr != nil {
		if !errors.Is(getErr, ErrRevocationKeyNotFound) {
			service.logger.Warn("refresh session lookup failed",
				zap.String("code", "auth.refresh.store_error"),
				zap.Error(getErr))
		}
		return IssuedSession{}, ErrInvalidToken
	}

	user, userErr := service.users.GetUserByEmail(ctx, ownerEmail)
	if userErr != nil {
		service.logger.Warn("refresh session owner unavailable",
			zap.String("code", "auth.refresh.owner_lookup"),
			zap.Error(userErr))
		return IssuedSession{}, ErrInvalidToken
	}

	session, issueErr := service.issueAccessToken(user)
	if issueErr != nil {
		return IssuedSession{}, issueErr
	}

	if deleteErr := service.refreshSessions.Delete(ctx, currentKey); deleteErr != nil {
		if !errors.Is(deleteErr, ErrRevocationKeyNotFound) {
			service.logger.Warn("refresh session delete failed",
				zap.String("code", "auth.refresh.store_error"),
				zap.Error(deleteErr))
		}
		return IssuedSession{}, ErrInvalidToken
	}

	newRefreshID, openErr := service.openRefreshSession(ctx, user.Email)
	if openErr != nil {
		service.logger.Warn("refresh session rotation failed",
			zap.String("code", "auth.refresh.rotate_failed"),
			zap.Error(openErr))
		return IssuedSession{}, ErrInvalidToken
	}
	session.RefreshID = newRefreshID
	return session, nil
}

// Logout drops the refresh session and denylists the access token for its remaining lifetime.
func (service *SessionService) Logout(ctx context.Context, claims *AccessClaims, refreshID string) error {
	if claims == nil {
		return ErrInvalidToken
	}
	if strings.TrimSpace(refreshID) != "" {
		deleteErr := service.refreshSessions.Delete(ctx, refreshSessionKey(refreshID))
		if deleteErr != nil && !errors.Is(deleteErr, ErrRevocationKeyNotFound) {
			service.logger.Warn("refresh session delete failed on logout",
				zap.String("code", "auth.logout.store_error"),
				zap.Error(deleteErr))
		}
	}
	remaining := service.tokens.RemainingLifetime(claims)
	if remaining > 0 {
		if putErr := service.denylist.Put(ctx, claims.ID, denylistSentinel, remaining); putErr != nil {
			return fmt.Errorf("auth.logout.denylist: %w", putErr)
		}
	}
	service.metrics.Increment(metricAuthLogoutSuccess)
	return nil
}

// Authenticate accepts a bearer token only when its signature verifies, it has not
// expired, and its jti is absent from the denylist.
func (service *SessionService) Authenticate(ctx context.Context, token string) (*AccessClaims, error) {
	claims, decodeErr := service.tokens.DecodeAccessToken(token)
	if decodeErr != nil {
		return nil, ErrInvalidToken
	}
	if service.tokens.IsExpired(claims) {
		return nil, ErrInvalidToken
	}
	_, getErr := service.denylist.Get(ctx, claims.ID)
	switch {
	case getErr == nil:
		service.metrics.Increment(metricAuthDenylistHit)
		return nil, ErrInvalidToken
	case errors.Is(getErr, ErrRevocationKeyNotFound):
		return claims, nil
	default:
		service.logger.Warn("denylist lookup failed",
			zap.String("code", "auth.access.store_error"),
			zap.Error(getErr))
		return nil, ErrInvalidToken
	}
}

// CurrentUser loads the user named by claims.
func (service *SessionService) CurrentUser(ctx context.Context, claims *AccessClaims) (UserRecord, error) {
	if claims == nil {
		return UserRecord{}, ErrInvalidToken
	}
	user, err := service.users.GetUserByEmail(ctx, claims.User.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return UserRecord{}, ErrInvalidToken
		}
		return UserRecord{}, fmt.Errorf("auth.current_user: %w", err)
	}
	return user, nil
}

// AuthorizeRole requires a verified account holding one of allowedRoles.
func AuthorizeRole(user UserRecord, allowedRoles []string) error {
	if !user.IsVerified {
		return ErrAccountNotVerified
	}
	for _, role := range allowedRoles {
		if user.Role == role {
			return nil
		}
	}
	return ErrInsufficientPermission
}

func (service *SessionService) issueAccessToken(user UserRecord) (IssuedSession, error) {
	accessToken, expiresAt, err := service.tokens.IssueAccessToken(Identity{
		Email:  user.Email,
		UserID: user.UserID,
		Role:   user.Role,
	}, service.tokens.NewJTI())
	if err != nil {
		return IssuedSession{}, fmt.Errorf("auth.issue_access_token: %w", err)
	}
	return IssuedSession{AccessToken: accessToken, AccessExpiresAt: expiresAt, User: user}, nil
}

func (service *SessionService) openRefreshSession(ctx context.Context, ownerEmail string) (string, error) {
	refreshID, idErr := NewOpaqueSessionID()
	if idErr != nil {
		return "", idErr
	}
	if putErr := service.refreshSessions.Put(ctx, refreshSessionKey(refreshID), ownerEmail, service.refreshTTL); putErr != nil {
		return "", fmt.Errorf("auth.refresh_session.open: %w", putErr)
	}
	return refreshID, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
