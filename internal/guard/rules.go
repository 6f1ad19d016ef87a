// Package guard holds the account security state machine.
//
// Every function here is pure: it takes an AccountRecord by value plus the
// caller's notion of "now" and either rejects with a *models.RuleViolation or
// returns the next record. Loading, persisting and publishing belong to the
// services package.
package guard

import (
	"time"

	"github.com/BradenHooton/gatekeeper/internal/models"
)

// Policy constants.
const (
	MaxFailedLoginAttempts   = 5
	FailedLoginWindow        = 15 * time.Minute
	LockoutDuration          = 30 * time.Minute
	MaxVerificationResends   = 3
	VerificationResendWindow = time.Hour
	VerificationTokenTTL     = 24 * time.Hour
	MinimumAge               = 13
	MaxFullNameLength        = 100
	MinPasswordLength        = 8
)

// Rule is a named precondition. Check returns nil when the rule holds.
type Rule struct {
	Name  string
	Check func() *models.RuleViolation
}

// Evaluate runs rules in order and returns the first violation, stamped with
// the rule's name. Later rules are not evaluated.
func Evaluate(rules ...Rule) error {
	for _, r := range rules {
		if v := r.Check(); v != nil {
			v.Rule = r.Name
			return v
		}
	}
	return nil
}

// windowElapsed reports whether last is set and at least window before now.
func windowElapsed(last *time.Time, window time.Duration, now time.Time) bool {
	return last != nil && !last.After(now.Add(-window))
}
