package middleware

import (
	"net/http"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/auth"
	pkghttp "github.com/BradenHooton/gatekeeper/pkg/http"
	"github.com/go-chi/httprate"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int
}

// DefaultAuthRateLimit returns the limit for the public auth endpoints (10 requests per minute)
func DefaultAuthRateLimit() RateLimitConfig {
	return RateLimitConfig{RequestsPerMinute: 10}
}

// DefaultSessionRateLimit returns the limit for authenticated endpoints, per session
func DefaultSessionRateLimit() RateLimitConfig {
	return RateLimitConfig{RequestsPerMinute: 120}
}

func limitExceeded(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteTooManyRequests(w, "Rate limit exceeded. Please try again later.")
}

func keyByClientIP(ipConfig *pkghttp.IPConfig) httprate.KeyFunc {
	return func(r *http.Request) (string, error) {
		return pkghttp.ExtractClientIP(r, ipConfig), nil
	}
}

// RateLimitByIP rate limits requests by client IP. It sits in front of the
// per-account lockout, so credential stuffing across many accounts from one
// address is slowed as well. Forwarding headers count only from trusted proxies.
func RateLimitByIP(config RateLimitConfig, ipConfig *pkghttp.IPConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(keyByClientIP(ipConfig)),
		httprate.WithLimitHandler(limitExceeded),
	)
}

// RateLimitBySession rate limits authenticated requests by session id and
// falls back to the client IP when no claims are in the context. It must run
// after auth.AuthMiddleware.
func RateLimitBySession(config RateLimitConfig, ipConfig *pkghttp.IPConfig) func(next http.Handler) http.Handler {
	byIP := keyByClientIP(ipConfig)
	return httprate.Limit(
		config.RequestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if claims := auth.GetUserFromContext(r); claims != nil && claims.SessionID != "" {
				return "session:" + claims.SessionID, nil
			}
			return byIP(r)
		}),
		httprate.WithLimitHandler(limitExceeded),
	)
}
