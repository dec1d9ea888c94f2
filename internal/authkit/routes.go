package authkit

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// MountAuthRoutes registers the /auth endpoints except /auth/me, which needs the profile reader.
func MountAuthRoutes(router gin.IRouter, configuration ServerConfig, sessions *SessionService, accounts *AccountService) {
	group := router.Group("/auth")

	group.POST("/signup", func(contextGin *gin.Context) {
		var inbound struct {
			Email     string `json:"email" binding:"required,email,max=40"`
			Username  string `json:"username" binding:"required,max=8"`
			FirstName string `json:"first_name" binding:"required,max=25"`
			LastName  string `json:"last_name" binding:"required,max=25"`
			Password  string `json:"password" binding:"required,min=6,max=72"`
		}
		if err := contextGin.ShouldBindJSON(&inbound); err != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
			return
		}
		user, err := accounts.Signup(contextGin, SignupRequest{
			Email:     inbound.Email,
			Username:  inbound.Username,
			FirstName: inbound.FirstName,
			LastName:  inbound.LastName,
			Password:  inbound.Password,
		})
		if err != nil {
			AbortWithError(contextGin, err)
			return
		}
		contextGin.JSON(http.StatusCreated, gin.H{
			"message": "Account Created! Check email to verify your account",
			"user":    userResponse(user),
		})
	})

	group.POST("/resend_verify_mail", func(contextGin *gin.Context) {
		var inbound struct {
			Email string `json:"email" binding:"required,email"`
		}
		if err := contextGin.ShouldBindJSON(&inbound); err != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
			return
		}
		accounts.ResendVerification(contextGin, inbound.Email)
		contextGin.JSON(http.StatusOK, gin.H{"message": "Email resent successfully"})
	})

	group.GET("/verify/:token", func(contextGin *gin.Context) {
		if err := accounts.VerifyEmail(contextGin, contextGin.Param("token")); err != nil {
			AbortWithError(contextGin, err)
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"message": "Account verified successfully"})
	})

	group.POST("/login", func(contextGin *gin.Context) {
		var inbound struct {
			Email    string `json:"email" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := contextGin.ShouldBindJSON(&inbound); err != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
			return
		}
		if !configuration.AllowInsecureHTTP && !isHTTPS(contextGin.Request) {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "https_required"})
			return
		}
		session, err := sessions.Login(contextGin, inbound.Email, inbound.Password)
		if err != nil {
			AbortWithError(contextGin, err)
			return
		}
		writeRefreshCookie(contextGin, configuration, session.RefreshID, sessions.RefreshTTL())
		contextGin.JSON(http.StatusOK, gin.H{
			"message":      "Login successful",
			"access_token": session.AccessToken,
			"user": gin.H{
				"email": session.User.Email,
				"uid":   session.User.UserID,
			},
		})
	})

	group.GET("/refresh_token", func(contextGin *gin.Context) {
		session, err := sessions.Refresh(contextGin, refreshIDFromCookie(contextGin, configuration))
		if err != nil {
			AbortWithError(contextGin, err)
			return
		}
		writeRefreshCookie(contextGin, configuration, session.RefreshID, sessions.RefreshTTL())
		contextGin.JSON(http.StatusOK, gin.H{"access_token": session.AccessToken})
	})

	group.GET("/logout", RequireAccessToken(sessions), func(contextGin *gin.Context) {
		claims, _ := ClaimsFromContext(contextGin)
		if err := sessions.Logout(contextGin, claims, refreshIDFromCookie(contextGin, configuration)); err != nil {
			AbortWithError(contextGin, err)
			return
		}
		clearRefreshCookie(contextGin, configuration)
		contextGin.JSON(http.StatusOK, gin.H{"message": "Logged Out Successfully"})
	})

	group.POST("/password-reset-request", func(contextGin *gin.Context) {
		var inbound struct {
			Email              string `json:"email" binding:"required,email"`
			NewPassword        string `json:"new_password" binding:"required,min=6,max=72"`
			ConfirmNewPassword string `json:"confirm_new_password" binding:"required"`
		}
		if err := contextGin.ShouldBindJSON(&inbound); err != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
			return
		}
		if err := accounts.RequestPasswordReset(contextGin, inbound.Email, inbound.NewPassword, inbound.ConfirmNewPassword); err != nil {
			AbortWithError(contextGin, err)
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{
			"message": "Please check your email for instructions to reset your password",
		})
	})

	group.GET("/password-reset-confirm/:token", func(contextGin *gin.Context) {
		if err := accounts.ConfirmPasswordReset(contextGin, contextGin.Param("token")); err != nil {
			AbortWithError(contextGin, err)
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"message": "Password reset Successfully"})
	})
}

func userResponse(user UserRecord) gin.H {
	return gin.H{
		"uid":         user.UserID,
		"username":    user.Username,
		"email":       user.Email,
		"first_name":  user.FirstName,
		"last_name":   user.LastName,
		"role":        user.Role,
		"is_verified": user.IsVerified,
	}
}

func refreshIDFromCookie(contextGin *gin.Context, configuration ServerConfig) string {
	refreshCookie, cookieErr := contextGin.Request.Cookie(configuration.refreshCookieName())
	if cookieErr != nil || refreshCookie == nil {
		return ""
	}
	return strings.TrimSpace(refreshCookie.Value)
}

func writeRefreshCookie(contextGin *gin.Context, configuration ServerConfig, opaque string, ttl time.Duration) {
	http.SetCookie(contextGin.Writer, &http.Cookie{
		Name:     configuration.refreshCookieName(),
		Value:    opaque,
		Path:     configuration.refreshCookiePath(),
		Domain:   configuration.CookieDomain,
		MaxAge:   int(ttl / time.Second),
		Expires:  time.Now().UTC().Add(ttl),
		Secure:   !configuration.AllowInsecureHTTP,
		HttpOnly: true,
		SameSite: configuration.SameSiteMode,
	})
}

func clearRefreshCookie(contextGin *gin.Context, configuration ServerConfig) {
	http.SetCookie(contextGin.Writer, &http.Cookie{
		Name:     configuration.refreshCookieName(),
		Value:    "",
		Path:     configuration.refreshCookiePath(),
		Domain:   configuration.CookieDomain,
		MaxAge:   -1,
		Secure:   !configuration.AllowInsecureHTTP,
		HttpOnly: true,
		SameSite: configuration.SameSiteMode,
	})
}

func isHTTPS(request *http.Request) bool {
	if request.TLS != nil {
		return true
	}
	scheme := request.Header.Get("X-Forwarded-Proto")
	if strings.EqualFold(scheme, "https") {
		return true
	}
	forwarded := request.Header.Get("Forwarded")
	if forwarded != "" && strings.Contains(strings.ToLower(forwarded), "proto=https") {
		return true
	}
	host, _, splitErr := net.SplitHostPort(request.Host)
	if splitErr == nil && host == "localhost" {
		return true
	}
	return false
}
