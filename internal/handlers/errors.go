package handlers

import (
	"errors"
	"net/http"

	"github.com/BradenHooton/gatekeeper/internal/models"
	pkghttp "github.com/BradenHooton/gatekeeper/pkg/http"
)

// writeServiceError maps a service error to its HTTP response. Rule
// violations keep their reason; anything unrecognised is a generic 500.
func writeServiceError(w http.ResponseWriter, err error) {
	var violation *models.RuleViolation
	message := ""
	field := ""
	if errors.As(err, &violation) {
		message = violation.Reason
		field = violation.Field
	}
	orDefault := func(fallback string) string {
		if message != "" {
			return message
		}
		return fallback
	}
	withField := func() string {
		if field == "" {
			return ""
		}
		return "field=" + field
	}

	switch {
	case errors.Is(err, models.ErrAccountLocked):
		minutes := 0
		if violation != nil {
			minutes = violation.MinutesRemaining
		}
		pkghttp.WriteLocked(w, "account_locked", orDefault("Account is temporarily locked"), minutes)
	case errors.Is(err, models.ErrTooManyAttempts):
		pkghttp.WriteLocked(w, "too_many_attempts", orDefault("Too many failed login attempts. Please try again later"), 0)
	case errors.Is(err, models.ErrInvalidCredentials):
		pkghttp.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password")
	case errors.Is(err, models.ErrAccountNotActive):
		pkghttp.WriteError(w, http.StatusUnauthorized, "account_not_active", orDefault("Account is not active"))
	case errors.Is(err, models.ErrUnauthorized):
		pkghttp.WriteUnauthorized(w, orDefault("Authentication required"))
	case errors.Is(err, models.ErrValidationFailed):
		pkghttp.WriteErrorWithDetails(w, http.StatusBadRequest, "validation_failed", orDefault("Validation failed"), withField())
	case errors.Is(err, models.ErrTokenExpired):
		pkghttp.WriteError(w, http.StatusBadRequest, "token_expired", orDefault("Verification token has expired"))
	case errors.Is(err, models.ErrAlreadyVerified):
		pkghttp.WriteError(w, http.StatusBadRequest, "already_verified", orDefault("Email is already verified"))
	case errors.Is(err, models.ErrResendLimitExceeded):
		pkghttp.WriteError(w, http.StatusBadRequest, "resend_limit_exceeded", orDefault("Verification resend limit exceeded"))
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, orDefault("Resource not found"))
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteErrorWithDetails(w, http.StatusConflict, "conflict", orDefault("Resource already exists"), withField())
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
