package guard

import (
	"time"

	"github.com/BradenHooton/gatekeeper/internal/models"
)

func mustNotBeVerified(rec models.AccountRecord) Rule {
	return Rule{Name: "user_must_not_be_already_verified", Check: func() *models.RuleViolation {
		if rec.Status == models.StatusActive {
			return models.Violation(models.ErrAlreadyVerified, "Email is already verified")
		}
		return nil
	}}
}

// Verify activates an account whose verification token is still valid.
// Token lookup happens before this call, so only state and expiry are checked.
func Verify(rec models.AccountRecord, now time.Time) (models.AccountRecord, error) {
	err := Evaluate(
		mustNotBeDeactivated(rec),
		mustNotBeVerified(rec),
		Rule{Name: "verification_token_must_not_be_expired", Check: func() *models.RuleViolation {
			if rec.VerificationTokenExpiry == nil || !rec.VerificationTokenExpiry.After(now) {
				return models.Violation(models.ErrTokenExpired, "Verification token has expired")
			}
			return nil
		}},
	)
	if err != nil {
		return models.AccountRecord{}, err
	}

	next := rec.Clone()
	next.Status = models.StatusActive
	next.EmailVerifiedAt = models.TimePtr(now)
	next.VerificationToken = ""
	next.VerificationTokenExpiry = nil
	next.UpdatedAt = now
	return next, nil
}

// PrepareResend replaces the verification token, enforcing the hourly resend cap.
// A resend counter older than the window is reset before the cap is checked.
func PrepareResend(rec models.AccountRecord, newToken string, newExpiry, now time.Time) (models.AccountRecord, error) {
	next := rec.Clone()
	if windowElapsed(next.LastVerificationResendAt, VerificationResendWindow, now) {
		next.VerificationResendCount = 0
	}

	err := Evaluate(
		mustNotBeDeactivated(next),
		mustNotBeVerified(next),
		Rule{Name: "verification_resend_limit_must_not_be_exceeded", Check: func() *models.RuleViolation {
			if next.VerificationResendCount >= MaxVerificationResends {
				return models.Violation(models.ErrResendLimitExceeded,
					"Maximum 3 verification email resends per hour exceeded")
			}
			return nil
		}},
	)
	if err != nil {
		return models.AccountRecord{}, err
	}

	next.VerificationToken = newToken
	next.VerificationTokenExpiry = models.TimePtr(newExpiry)
	next.VerificationResendCount++
	next.LastVerificationResendAt = models.TimePtr(now)
	next.UpdatedAt = now
	return next, nil
}
