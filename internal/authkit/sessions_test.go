package authkit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestNewSessionServiceRequiresDependencies(t *testing.T) {
	t.Parallel()

	if _, err := NewSessionService(ServerConfig{}, SessionDependencies{}); !errors.Is(err, errMissingUserStore) {
		t.Fatalf("expected errMissingUserStore, got %v", err)
	}
}

func TestLoginIssuesAccessTokenAndRefreshSession(t *testing.T) {
	t.Parallel()

	fixture := newSessionFixture(t)
	fixture.users.seed(t, "reader@example.com", "s3cret-pass", true, "user")

	session, err := fixture.sessions.Login(context.Background(), " Reader@Example.com ", "s3cret-pass")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if session.AccessToken == "" || session.RefreshID == "" {
		t.Fatalf("expected access token and refresh id, got %+v", session)
	}
	if !session.AccessExpiresAt.Equal(fixture.clock.Now().Add(DefaultAccessTokenTTL)) {
		t.Fatalf("unexpected access expiry %v", session.AccessExpiresAt)
	}
	owner, getErr := fixture.refresh.Get(context.Background(), refreshSessionKey(session.RefreshID))
	if getErr != nil || owner != "reader@example.com" {
		t.Fatalf("expected refresh session owned by reader, got %q %v", owner, getErr)
	}
	claims, authErr := fixture.sessions.Authenticate(context.Background(), session.AccessToken)
	if authErr != nil {
		t.Fatalf("authenticate failed: %v", authErr)
	}
	if claims.User.Email != "reader@example.com" || claims.User.Role != "user" {
		t.Fatalf("unexpected claims %+v", claims.User)
	}
	if fixture.metrics.Count(metricAuthLoginSuccess) != 1 {
		t.Fatalf("expected login success metric")
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	t.Parallel()

	fixture := newSessionFixture(t)
	fixture.users.seed(t, "reader@example.com", "s3cret-pass", true, "user")

	_, unknownErr := fixture.sessions.Login(context.Background(), "ghost@example.com", "s3cret-pass")
	_, wrongErr := fixture.sessions.Login(context.Background(), "reader@example.com", "wrong-pass")
	if !errors.Is(unknownErr, ErrInvalidCredentials) || !errors.Is(wrongErr, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for both, got %v and %v", unknownErr, wrongErr)
	}
	if unknownErr.Error() != wrongErr.Error() {
		t.Fatalf("expected identical errors, got %q and %q", unknownErr, wrongErr)
	}
	if fixture.backend.Len() != 0 {
		t.Fatalf("expected no refresh sessions after failed logins")
	}
	if fixture.metrics.Count(metricAuthLoginFailure) != 2 {
		t.Fatalf("expected two login failures recorded")
	}
}

func TestLoginSurfacesStoreFailures(t *testing.T) {
	t.Parallel()

	fixture := newSessionFixture(t)
	fixture.users.err = errStoreUnavailable
	_, err := fixture.sessions.Login(context.Background(), "reader@example.com", "whatever")
	if !errors.Is(err, errStoreUnavailable) {
		t.Fatalf("expected store failure to surface, got %v", err)
	}
}

func TestRefreshRotatesAndIsSingleUse(t *testing.T) {
	t.Parallel()

	fixture := newSessionFixture(t)
	fixture.users.seed(t, "reader@example.com", "s3cret-pass", true, "user")
	ctx := context.Background()

	login, err := fixture.sessions.Login(ctx, "reader@example.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	rotated, refreshErr := fixture.sessions.Refresh(ctx, login.RefreshID)
	if refreshErr != nil {
		t.Fatalf("refresh failed: %v", refreshErr)
	}
	if rotated.RefreshID == login.RefreshID {
		t.Fatalf("expected rotated refresh id")
	}
	if rotated.AccessToken == login.AccessToken {
		t.Fatalf("expected a new access token")
	}
	if _, err := fixture.sessions.Authenticate(ctx, rotated.AccessToken); err != nil {
		t.Fatalf("rotated access token rejected: %v", err)
	}

	if _, replayErr := fixture.sessions.Refresh(ctx, login.RefreshID); !errors.Is(replayErr, ErrInvalidToken) {
		t.Fatalf("expected replay to fail with ErrInvalidToken, got %v", replayErr)
	}
	if _, nextErr := fixture.sessions.Refresh(ctx, rotated.RefreshID); nextErr != nil {
		t.Fatalf("expected rotated id to refresh once, got %v", nextErr)
	}
	if fixture.metrics.Count(metricAuthRefreshSuccess) != 2 || fixture.metrics.Count(metricAuthRefreshFailure) != 1 {
		t.Fatalf("unexpected refresh metrics %v", fixture.metrics.Snapshot())
	}
}

func TestRefreshRejectsNeverIssuedAndEmptyIDs(t *testing.T) {
	t.Parallel()

	fixture := newSessionFixture(t)
	for _, candidate := range []string{"", "   ", "never-issued"} {
		if _, err := fixture.sessions.Refresh(context.Background(), candidate); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken for %q, got %v", candidate, err)
		}
	}
}

func TestRefreshExpiresWithTTL(t *testing.T) {
	t.Parallel()

	fixture := newSessionFixture(t)
	fixture.users.seed(t, "reader@example.com", "s3cret-pass", true, "user")
	login, _ := fixture.sessions.Login(context.Background(), "reader@example.com", "s3cret-pass")

	fixture.clock.Advance(DefaultRefreshTTL)
	if _, err := fixture.sessions.Refresh(context.Background(), login.RefreshID); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired refresh session to fail, got %v", err)
	}
}

func TestRefreshFailsClosedOnStoreErrors(t *testing.T) {
	t.Parallel()

	fixture := newSessionFixture(t)
	fixture.users.seed(t, "reader@example.com", "s3cret-pass", true, "user")
	fixture.refresh = failingRevocationStore{err: errStoreUnavailable}
	fixture.rebuild(t)

	_, err := fixture.sessions.Refresh(context.Background(), "any-id")
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken when store fails, got %v", err)
	}
	if errors.Is(err, errStoreUnavailable) {
		t.Fatalf("store error must not leak through refresh")
	}
}

func TestConcurrentRefreshHasExactlyOneWinner(t *testing.T) {
	t.Parallel()

	fixture := newSessionFixture(t)
	fixture.users.seed(t, "reader@example.com", "s3cret-pass", true, "user")
	login, err := fixture.sessions.Login(context.Background(), "reader@example.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	const contenders = 12
	var waitGroup sync.WaitGroup
	start := make(chan struct{})
	results := make(chan error, contenders)
	for index := 0; index < contenders; index++ {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			<-start
			_, refreshErr := fixture.sessions.Refresh(context.Background(), login.RefreshID)
			results <- refreshErr
		}()
	}
	close(start)
	waitGroup.Wait()
	close(results)

	winners := 0
	for refreshErr := range results {
		switch {
		case refreshErr == nil:
			winners++
		case !errors.Is(refreshErr, ErrInvalidToken):
			t.Fatalf("unexpected error: %v", refreshErr)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one successful refresh, got %d", winners)
	}
}

func TestLogoutDenylistsAccessTokenAndDropsRefreshSession(t *testing.T) {
	t.Parallel()

	fixture := newSessionFixture(t)
	fixture.users.seed(t, "reader@example.com", "s3cret-pass", true, "user")
	ctx := context.Background()
	login, _ := fixture.sessions.Login(ctx, "reader@example.com", "s3cret-pass")
	claims, err := fixture.sessions.Authenticate(ctx, login.AccessToken)
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}

	fixture.clock.Advance(4 * time.Minute)
	if err := fixture.sessions.Logout(ctx, claims, login.RefreshID); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if _, err := fixture.sessions.Authenticate(ctx, login.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected logged out token to be rejected, got %v", err)
	}
	if _, err := fixture.sessions.Refresh(ctx, login.RefreshID); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected refresh after logout to fail, got %v", err)
	}
	if fixture.metrics.Count(metricAuthDenylistHit) != 1 {
		t.Fatalf("expected denylist hit metric")
	}

	fixture.clock.Advance(6 * time.Minute)
	if _, err := fixture.denylist.Get(ctx, claims.ID); !errors.Is(err, ErrRevocationKeyNotFound) {
		t.Fatalf("expected denylist entry to lapse with the token, got %v", err)
	}
}

func TestLogoutWithoutRefreshCookieStillDenylists(t *testing.T) {
	t.Parallel()

	fixture := newSessionFixture(t)
	fixture.users.seed(t, "reader@example.com", "s3cret-pass", true, "user")
	ctx := context.Background()
	login, _ := fixture.sessions.Login(ctx, "reader@example.com", "s3cret-pass")
	claims, _ := fixture.sessions.Authenticate(ctx, login.AccessToken)

	if err := fixture.sessions.Logout(ctx, claims, ""); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if _, err := fixture.sessions.Authenticate(ctx, login.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected token to be denylisted, got %v", err)
	}
	if _, err := fixture.sessions.Refresh(ctx, login.RefreshID); err != nil {
		t.Fatalf("expected untouched refresh session to remain usable, got %v", err)
	}
	if err := fixture.sessions.Logout(ctx, nil, ""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected nil claims to be rejected, got %v", err)
	}
}

func TestAuthenticateRejectsExpiredTokens(t *testing.T) {
	t.Parallel()

	fixture := newSessionFixture(t)
	fixture.users.seed(t, "reader@example.com", "s3cret-pass", true, "user")
	login, _ := fixture.sessions.Login(context.Background(), "reader@example.com", "s3cret-pass")

	fixture.clock.Advance(DefaultAccessTokenTTL)
	if _, err := fixture.sessions.Authenticate(context.Background(), login.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}
}

func TestAuthenticateFailsClosedWhenDenylistUnavailable(t *testing.T) {
	t.Parallel()

	fixture := newSessionFixture(t)
	fixture.users.seed(t, "reader@example.com", "s3cret-pass", true, "user")
	login, _ := fixture.sessions.Login(context.Background(), "reader@example.com", "s3cret-pass")

	fixture.denylist = failingRevocationStore{err: errStoreUnavailable}
	fixture.rebuild(t)
	if _, err := fixture.sessions.Authenticate(context.Background(), login.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken when denylist fails, got %v", err)
	}
}

func TestCurrentUserAndAuthorizeRole(t *testing.T) {
	t.Parallel()

	fixture := newSessionFixture(t)
	fixture.users.seed(t, "reader@example.com", "s3cret-pass", true, "user")
	fixture.users.seed(t, "pending@example.com", "s3cret-pass", false, "user")
	ctx := context.Background()

	login, _ := fixture.sessions.Login(ctx, "reader@example.com", "s3cret-pass")
	claims, _ := fixture.sessions.Authenticate(ctx, login.AccessToken)
	user, err := fixture.sessions.CurrentUser(ctx, claims)
	if err != nil {
		t.Fatalf("current user failed: %v", err)
	}
	if err := AuthorizeRole(user, []string{"admin", "user"}); err != nil {
		t.Fatalf("expected user role to be authorized, got %v", err)
	}
	if err := AuthorizeRole(user, []string{"admin"}); !errors.Is(err, ErrInsufficientPermission) {
		t.Fatalf("expected ErrInsufficientPermission, got %v", err)
	}

	pending, _ := fixture.users.GetUserByEmail(ctx, "pending@example.com")
	if err := AuthorizeRole(pending, []string{"user"}); !errors.Is(err, ErrAccountNotVerified) {
		t.Fatalf("expected ErrAccountNotVerified, got %v", err)
	}

	if _, err := fixture.sessions.CurrentUser(ctx, &AccessClaims{User: Identity{Email: "ghost@example.com"}}); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected unknown user to map to ErrInvalidToken, got %v", err)
	}
}
