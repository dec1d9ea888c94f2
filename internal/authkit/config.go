package authkit

import (
	"net/http"
	"time"
)

const (
	// DefaultAccessTokenTTL is the access token lifetime used when none is configured.
	DefaultAccessTokenTTL = 600 * time.Second
	// DefaultRefreshTTL is the lifetime of a refresh session record.
	DefaultRefreshTTL = 172800 * time.Second
	// DefaultActionTokenTTL bounds the age of email verification and password reset links.
	DefaultActionTokenTTL = 24 * time.Hour
	// DefaultRefreshCookieName carries the opaque refresh session id.
	DefaultRefreshCookieName = "refresh_id"
)

// ServerConfig configures signing, cookies, and TTLs.
type ServerConfig struct {
	JWTSigningKey     []byte
	CookieDomain      string
	RefreshCookieName string
	RefreshCookiePath string
	AccessTokenTTL    time.Duration
	RefreshTTL        time.Duration
	ActionTokenTTL    time.Duration
	PublicBaseURL     string
	SameSiteMode      http.SameSite
	AllowInsecureHTTP bool
}

func (configuration ServerConfig) refreshCookieName() string {
	if configuration.RefreshCookieName == "" {
		return DefaultRefreshCookieName
	}
	return configuration.RefreshCookieName
}

func (configuration ServerConfig) refreshCookiePath() string {
	if configuration.RefreshCookiePath == "" {
		return "/"
	}
	return configuration.RefreshCookiePath
}
