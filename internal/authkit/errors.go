package authkit

import "errors"

var (
	// ErrInvalidCredentials covers both an unknown email and a wrong password.
	ErrInvalidCredentials = errors.New("auth.invalid_credentials")
	// ErrInvalidToken indicates an undecodable, expired, revoked, or unknown token or refresh session.
	ErrInvalidToken = errors.New("auth.invalid_token")
	// ErrUserNotFound indicates no user matched the supplied email.
	ErrUserNotFound = errors.New("auth.user_not_found")
	// ErrUserAlreadyExists indicates a signup for an email that is already registered.
	ErrUserAlreadyExists = errors.New("auth.user_already_exists")
	// ErrAccountNotVerified indicates the user has not confirmed their email address.
	ErrAccountNotVerified = errors.New("auth.account_not_verified")
	// ErrInsufficientPermission indicates the user's role is not allowed on the route.
	ErrInsufficientPermission = errors.New("auth.insufficient_permission")
	// ErrPasswordMismatch indicates the new and confirmation passwords differ.
	ErrPasswordMismatch = errors.New("auth.password_mismatch")
	// ErrPasswordTooLong indicates a password longer than bcrypt's 72 byte input limit.
	ErrPasswordTooLong = errors.New("auth.password_too_long")
	// ErrActionTokenInvalid indicates a verification or reset link could not be decoded.
	ErrActionTokenInvalid = errors.New("auth.action_token_invalid")

	// ErrRevocationKeyNotFound indicates the key is absent from the revocation store or has expired.
	ErrRevocationKeyNotFound = errors.New("revocation_store.not_found")
	// ErrRevocationKeyEmpty indicates that the supplied key is empty.
	ErrRevocationKeyEmpty = errors.New("revocation_store.empty_key")
	// ErrRevocationTTLInvalid indicates a non-positive TTL on Put.
	ErrRevocationTTLInvalid = errors.New("revocation_store.invalid_ttl")
)
