package authkit

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	status  int
	code    string
	message string
}

var errorResponses = []struct {
	target   error
	response errorResponse
}{
	{ErrInvalidCredentials, errorResponse{http.StatusBadRequest, "invalid_credentials", "Invalid Email Or Password"}},
	{ErrInvalidToken, errorResponse{http.StatusUnauthorized, "invalid_token", "Token is invalid or expired"}},
	{ErrUserNotFound, errorResponse{http.StatusNotFound, "user_not_found", "User not found"}},
	{ErrUserAlreadyExists, errorResponse{http.StatusForbidden, "user_exists", "User with email already exists"}},
	{ErrAccountNotVerified, errorResponse{http.StatusForbidden, "account_not_verified", "Account Not verified"}},
	{ErrInsufficientPermission, errorResponse{http.StatusForbidden, "insufficient_permissions", "You do not have enough permissions to perform this action"}},
	{ErrPasswordMismatch, errorResponse{http.StatusBadRequest, "password_mismatch", "Passwords do not match"}},
	{ErrPasswordTooLong, errorResponse{http.StatusBadRequest, "password_too_long", "Password must be at most 72 bytes"}},
	{ErrActionTokenInvalid, errorResponse{http.StatusInternalServerError, "action_token_invalid", "Error occurred while decoding the link"}},
}

// AbortWithError writes the fixed status and message for err.
// Errors outside the auth taxonomy become 500 internal_error.
func AbortWithError(contextGin *gin.Context, err error) {
	for _, candidate := range errorResponses {
		if errors.Is(err, candidate.target) {
			contextGin.AbortWithStatusJSON(candidate.response.status, gin.H{
				"error":   candidate.response.code,
				"message": candidate.response.message,
			})
			return
		}
	}
	contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"error":   "internal_error",
		"message": "Oops! Something went wrong",
	})
}
