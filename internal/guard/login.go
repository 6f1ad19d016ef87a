package guard

import (
	"fmt"
	"math"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/models"
)

// ValidateLogin decides whether rec may attempt a login at now.
// It runs before the password is checked and never changes state.
func ValidateLogin(rec models.AccountRecord, now time.Time) error {
	return Evaluate(
		Rule{Name: "account_must_not_be_locked", Check: func() *models.RuleViolation {
			if !rec.IsLocked(now) {
				return nil
			}
			minutes := MinutesRemaining(*rec.AccountLockedUntil, now)
			return &models.RuleViolation{
				Kind:             models.ErrAccountLocked,
				Reason:           fmt.Sprintf("Account is temporarily locked. Please try again in %d minutes", minutes),
				MinutesRemaining: minutes,
			}
		}},
		Rule{Name: "account_must_be_active", Check: func() *models.RuleViolation {
			if rec.Status == models.StatusInactive {
				return models.Violation(models.ErrAccountNotActive, "Account has been deactivated")
			}
			if !rec.IsActive() {
				return models.Violation(models.ErrAccountNotActive, "Account is not active. Please verify your email first")
			}
			return nil
		}},
		Rule{Name: "failed_login_limit_must_not_be_exceeded", Check: func() *models.RuleViolation {
			if EffectiveFailedAttempts(rec, now) >= MaxFailedLoginAttempts {
				return models.Violation(models.ErrTooManyAttempts, "Too many failed login attempts. Please try again later")
			}
			return nil
		}},
	)
}

// HandleFailedLogin records a wrong password and locks the account once the
// windowed counter reaches the limit.
func HandleFailedLogin(rec models.AccountRecord, now time.Time) models.AccountRecord {
	next := rec.Clone()
	next.FailedLoginAttempts = EffectiveFailedAttempts(rec, now) + 1
	next.LastFailedLoginAt = models.TimePtr(now)
	if next.FailedLoginAttempts >= MaxFailedLoginAttempts {
		next.AccountLockedUntil = models.TimePtr(now.Add(LockoutDuration))
	}
	next.UpdatedAt = now
	return next
}

// HandleSuccessfulLogin clears failure tracking and stamps the login time.
func HandleSuccessfulLogin(rec models.AccountRecord, now time.Time) models.AccountRecord {
	next := rec.Clone()
	next.FailedLoginAttempts = 0
	next.LastFailedLoginAt = nil
	next.AccountLockedUntil = nil
	next.LastLoginAt = models.TimePtr(now)
	next.UpdatedAt = now
	return next
}

// EffectiveFailedAttempts is the failed-login counter with the inactivity
// reset applied: failures older than FailedLoginWindow no longer count.
func EffectiveFailedAttempts(rec models.AccountRecord, now time.Time) int {
	if windowElapsed(rec.LastFailedLoginAt, FailedLoginWindow, now) {
		return 0
	}
	return rec.FailedLoginAttempts
}

// MinutesRemaining rounds the time left until lockedUntil up to whole minutes.
func MinutesRemaining(lockedUntil, now time.Time) int {
	remaining := lockedUntil.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Minutes()))
}
