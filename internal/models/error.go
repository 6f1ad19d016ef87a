package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound           = errors.New("resource not found")
	ErrConflict           = errors.New("resource already exists")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInternalServer     = errors.New("internal server error")
	ErrConcurrentUpdate   = errors.New("record was modified concurrently")
	ErrValidationFailed   = errors.New("validation failed")
	ErrInvalidCredentials = errors.New("invalid email or password")

	// Account state errors
	ErrAccountLocked       = errors.New("account is temporarily locked")
	ErrAccountNotActive    = errors.New("account is not active")
	ErrTooManyAttempts     = errors.New("too many failed login attempts")
	ErrAlreadyVerified     = errors.New("email is already verified")
	ErrTokenExpired        = errors.New("verification token has expired")
	ErrResendLimitExceeded = errors.New("verification resend limit exceeded")
)

// RuleViolation is returned when a named precondition does not hold.
// Kind is one of the sentinels above and is exposed through Unwrap.
type RuleViolation struct {
	Kind             error
	Rule             string
	Field            string
	Reason           string
	MinutesRemaining int // only set for ErrAccountLocked
}

func (v *RuleViolation) Error() string {
	if v.Reason != "" {
		return v.Reason
	}
	if v.Kind != nil {
		return v.Kind.Error()
	}
	return fmt.Sprintf("rule %q violated", v.Rule)
}

func (v *RuleViolation) Unwrap() error {
	return v.Kind
}

// Violation builds a RuleViolation of the given kind.
func Violation(kind error, reason string) *RuleViolation {
	return &RuleViolation{Kind: kind, Reason: reason}
}

// FieldViolation builds a RuleViolation attributed to a single input field.
func FieldViolation(kind error, field, reason string) *RuleViolation {
	return &RuleViolation{Kind: kind, Field: field, Reason: reason}
}
