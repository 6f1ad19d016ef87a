package guard

import (
	"strings"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/models"
)

// ProfileUpdate holds the editable profile fields. Nil fields are left as they are.
type ProfileUpdate struct {
	FullName    *string
	Phone       *string
	DateOfBirth *time.Time
	Email       *string
}

func mustNotBeDeactivated(rec models.AccountRecord) Rule {
	return Rule{Name: "user_must_not_be_deactivated", Check: func() *models.RuleViolation {
		if rec.Status == models.StatusInactive {
			return models.Violation(models.ErrAccountNotActive, "Account has been deactivated")
		}
		return nil
	}}
}

// UpdateProfile applies upd to rec. A changed email address puts the account
// back into pending with a fresh verification token, since the new address
// has not been proven. Uniqueness of email and phone is not checked here.
func UpdateProfile(rec models.AccountRecord, upd ProfileUpdate, now time.Time, newToken TokenFunc) (models.AccountRecord, error) {
	rules := []Rule{mustNotBeDeactivated(rec)}
	if upd.FullName != nil {
		rules = append(rules, fullNameRule(*upd.FullName))
	}
	if upd.Phone != nil {
		rules = append(rules, phoneRule(upd.Phone))
	}
	if upd.DateOfBirth != nil {
		rules = append(rules, ageRule(upd.DateOfBirth, now))
	}
	if upd.Email != nil {
		rules = append(rules, emailRule(*upd.Email))
	}
	if err := Evaluate(rules...); err != nil {
		return models.AccountRecord{}, err
	}

	next := rec.Clone()
	if upd.FullName != nil {
		next.FirstName, next.LastName = SplitFullName(*upd.FullName)
	}
	if upd.Phone != nil {
		next.Phone = copyString(upd.Phone)
	}
	if upd.DateOfBirth != nil {
		next.DateOfBirth = copyTime(upd.DateOfBirth)
	}
	if upd.Email != nil && !strings.EqualFold(*upd.Email, rec.Email) {
		next.Email = *upd.Email
		next = requireVerification(next, newToken(), now)
	}
	next.UpdatedAt = now
	return next, nil
}

// Deactivate soft-deletes an account. It can no longer log in, verify or
// resend until it is reactivated. Outstanding verification tokens are dropped.
func Deactivate(rec models.AccountRecord, now time.Time) (models.AccountRecord, error) {
	err := Evaluate(Rule{Name: "user_must_not_be_already_deactivated", Check: func() *models.RuleViolation {
		if rec.Status == models.StatusInactive {
			return models.Violation(models.ErrConflict, "Account is already deactivated")
		}
		return nil
	}})
	if err != nil {
		return models.AccountRecord{}, err
	}

	next := rec.Clone()
	next.Status = models.StatusInactive
	next.VerificationToken = ""
	next.VerificationTokenExpiry = nil
	next.UpdatedAt = now
	return next, nil
}

// Reactivate restores a deactivated account. A verified email goes straight
// back to active; otherwise the account is pending again with a new token.
func Reactivate(rec models.AccountRecord, now time.Time, newToken TokenFunc) (models.AccountRecord, error) {
	err := Evaluate(Rule{Name: "user_must_be_deactivated", Check: func() *models.RuleViolation {
		if rec.Status != models.StatusInactive {
			return models.Violation(models.ErrConflict, "Account is not deactivated")
		}
		return nil
	}})
	if err != nil {
		return models.AccountRecord{}, err
	}

	next := rec.Clone()
	next.FailedLoginAttempts = 0
	next.LastFailedLoginAt = nil
	next.AccountLockedUntil = nil
	if next.EmailVerifiedAt != nil {
		next.Status = models.StatusActive
	} else {
		next = requireVerification(next, newToken(), now)
	}
	next.UpdatedAt = now
	return next, nil
}

func requireVerification(rec models.AccountRecord, token string, now time.Time) models.AccountRecord {
	rec.Status = models.StatusPending
	rec.EmailVerifiedAt = nil
	rec.VerificationToken = token
	rec.VerificationTokenExpiry = models.TimePtr(now.Add(VerificationTokenTTL))
	rec.VerificationResendCount = 0
	rec.LastVerificationResendAt = nil
	return rec
}
