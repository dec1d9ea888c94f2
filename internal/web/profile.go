package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/bookly/internal/authkit"
	"github.com/tyemirov/bookly/internal/catalog"
	"go.uber.org/zap"
)

// ProfileReader loads a user with their books and reviews.
type ProfileReader interface {
	GetProfile(ctx context.Context, email string) (catalog.User, error)
}

// HandleWhoAmI returns the authenticated user's profile. It runs after
// authkit.RequireAccessToken and authkit.RequireRole.
func HandleWhoAmI(logger *zap.Logger, profiles ProfileReader) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	if profiles == nil {
		panic("profile reader is required")
	}

	return func(contextGin *gin.Context) {
		userValue, found := contextGin.Get(authkit.UserContextKey)
		user, ok := userValue.(authkit.UserRecord)
		if !found || !ok || user.Email == "" {
			logger.Warn("missing auth user on context",
				zap.String("code", "api.me.missing_user"))
			authkit.AbortWithError(contextGin, authkit.ErrInvalidToken)
			return
		}

		profile, profileErr := profiles.GetProfile(contextGin, user.Email)
		if profileErr != nil {
			if errors.Is(profileErr, authkit.ErrUserNotFound) {
				logger.Warn("user profile missing",
					zap.String("code", "api.me.profile_missing"),
					zap.String("user_id", user.UserID))
				authkit.AbortWithError(contextGin, authkit.ErrInvalidToken)
				return
			}
			logger.Error("user profile lookup error",
				zap.String("code", "api.me.profile_error"),
				zap.String("user_id", user.UserID),
				zap.Error(profileErr))
			authkit.AbortWithError(contextGin, profileErr)
			return
		}
		contextGin.JSON(http.StatusOK, profile)
	}
}
