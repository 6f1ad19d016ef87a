package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/gatekeeper/internal/models"
	pkghttp "github.com/BradenHooton/gatekeeper/pkg/http"
)

type contextKey string

// UserContextKey is the key for storing token claims in the request context
const UserContextKey contextKey = "user"

// SessionChecker reports whether a session is still live in the session cache.
type SessionChecker interface {
	Exists(ctx context.Context, sessionID string) (bool, error)
}

// AuthMiddleware accepts access tokens whose session has not been logged out.
// Cache errors fail closed with 503.
func AuthMiddleware(tm *TokenManager, sessions SessionChecker, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := pkghttp.BearerToken(r)
			if !ok {
				pkghttp.WriteUnauthorized(w, "Missing or malformed authorization header")
				return
			}

			claims, err := tm.ValidateToken(tokenString)
			if err != nil {
				pkghttp.WriteUnauthorized(w, "Invalid or expired token")
				return
			}

			if claims.Type != models.TokenTypeAccess {
				pkghttp.WriteUnauthorized(w, "Refresh tokens cannot be used for API access")
				return
			}

			live, err := sessions.Exists(r.Context(), claims.SessionID)
			if err != nil {
				logger.Error("session lookup failed",
					slog.String("session_id", claims.SessionID),
					slog.Any("error", err),
				)
				pkghttp.WriteServiceUnavailable(w, "Unable to verify session")
				return
			}
			if !live {
				pkghttp.WriteUnauthorized(w, "Session has ended")
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ProfileLookup loads the current profile of an authenticated account.
type ProfileLookup interface {
	GetProfile(ctx context.Context, id int64) (*models.Profile, error)
}

// RequireRole lets through only accounts that currently hold role. It must run
// after AuthMiddleware. The role is read from the account, not the token, so
// a demotion takes effect on the next request.
func RequireRole(profiles ProfileLookup, role string, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetUserFromContext(r)
			if claims == nil {
				pkghttp.WriteUnauthorized(w, "Authentication required")
				return
			}

			userID, err := SubjectID(claims)
			if err != nil {
				pkghttp.WriteUnauthorized(w, "Invalid token subject")
				return
			}

			profile, err := profiles.GetProfile(r.Context(), userID)
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					pkghttp.WriteUnauthorized(w, "Account not found")
					return
				}
				logger.Error("role lookup failed", slog.String("user_id", claims.Subject), slog.Any("error", err))
				pkghttp.WriteInternalError(w, "Internal server error")
				return
			}

			if profile.Role != role || profile.Status != string(models.StatusActive) {
				pkghttp.WriteForbidden(w, "Insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetUserFromContext extracts token claims from the request context
func GetUserFromContext(r *http.Request) *models.TokenClaims {
	claims, ok := r.Context().Value(UserContextKey).(*models.TokenClaims)
	if !ok {
		return nil
	}
	return claims
}
