package authkit

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// ClaimsContextKey holds *AccessClaims after RequireAccessToken.
	ClaimsContextKey = "auth_claims"
	// UserContextKey holds UserRecord after RequireRole.
	UserContextKey = "auth_user"
)

// RequireAccessToken validates the bearer access token and injects claims.
func RequireAccessToken(sessions *SessionService) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		token, ok := bearerToken(contextGin.Request)
		if !ok {
			contextGin.Header("WWW-Authenticate", "Bearer")
			AbortWithError(contextGin, ErrInvalidToken)
			return
		}
		claims, err := sessions.Authenticate(contextGin, token)
		if err != nil {
			contextGin.Header("WWW-Authenticate", "Bearer")
			AbortWithError(contextGin, err)
			return
		}
		contextGin.Set(ClaimsContextKey, claims)
		contextGin.Next()
	}
}

// RequireRole loads the current user and requires a verified account with one of allowedRoles.
// It must run after RequireAccessToken.
func RequireRole(sessions *SessionService, allowedRoles ...string) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		claims, ok := ClaimsFromContext(contextGin)
		if !ok {
			AbortWithError(contextGin, ErrInvalidToken)
			return
		}
		user, err := sessions.CurrentUser(contextGin, claims)
		if err != nil {
			AbortWithError(contextGin, err)
			return
		}
		if roleErr := AuthorizeRole(user, allowedRoles); roleErr != nil {
			AbortWithError(contextGin, roleErr)
			return
		}
		contextGin.Set(UserContextKey, user)
		contextGin.Next()
	}
}

// ClaimsFromContext returns the claims stored by RequireAccessToken.
func ClaimsFromContext(contextGin *gin.Context) (*AccessClaims, bool) {
	value, found := contextGin.Get(ClaimsContextKey)
	if !found {
		return nil, false
	}
	claims, ok := value.(*AccessClaims)
	return claims, ok && claims != nil
}

func bearerToken(request *http.Request) (string, bool) {
	header := strings.TrimSpace(request.Header.Get("Authorization"))
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
