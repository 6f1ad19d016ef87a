package guard

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/go-playground/validator/v10"
)

var (
	phonePattern = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)
	validate     = validator.New()
)

// TokenFunc produces a fresh opaque verification token.
type TokenFunc func() string

// Registration is the raw sign-up input. Password is the plaintext and is
// only inspected for complexity; hashing is the caller's job.
type Registration struct {
	Email       string
	Password    string
	FullName    string
	Phone       *string
	DateOfBirth *time.Time
}

// Register validates a sign-up and builds the pending account record.
// Email and phone uniqueness are not checked here.
func Register(in Registration, now time.Time, newToken TokenFunc) (models.AccountRecord, error) {
	err := Evaluate(
		emailRule(in.Email),
		Rule{Name: "password_must_meet_requirements", Check: func() *models.RuleViolation {
			if reason := passwordProblem(in.Password); reason != "" {
				return models.FieldViolation(models.ErrValidationFailed, "password", reason)
			}
			return nil
		}},
		fullNameRule(in.FullName),
		phoneRule(in.Phone),
		ageRule(in.DateOfBirth, now),
	)
	if err != nil {
		return models.AccountRecord{}, err
	}

	firstName, lastName := SplitFullName(in.FullName)

	return models.AccountRecord{
		Username:                UsernameFromEmail(in.Email),
		Email:                   in.Email,
		Phone:                   copyString(in.Phone),
		FirstName:               firstName,
		LastName:                lastName,
		DateOfBirth:             copyTime(in.DateOfBirth),
		Status:                  models.StatusPending,
		Role:                    models.RoleCustomer,
		VerificationToken:       newToken(),
		VerificationTokenExpiry: models.TimePtr(now.Add(VerificationTokenTTL)),
		CreatedAt:               now,
		UpdatedAt:               now,
	}, nil
}

func emailRule(email string) Rule {
	return Rule{Name: "email_must_be_valid", Check: func() *models.RuleViolation {
		if validate.Var(email, "required,email") != nil {
			return models.FieldViolation(models.ErrValidationFailed, "email", "Invalid email format")
		}
		return nil
	}}
}

func fullNameRule(fullName string) Rule {
	return Rule{Name: "full_name_must_be_valid", Check: func() *models.RuleViolation {
		name := strings.TrimSpace(fullName)
		if name == "" {
			return models.FieldViolation(models.ErrValidationFailed, "full_name", "Full name is required")
		}
		if utf8.RuneCountInString(name) > MaxFullNameLength {
			return models.FieldViolation(models.ErrValidationFailed, "full_name",
				fmt.Sprintf("Full name must be at most %d characters", MaxFullNameLength))
		}
		return nil
	}}
}

func phoneRule(phone *string) Rule {
	return Rule{Name: "phone_must_be_valid", Check: func() *models.RuleViolation {
		if phone != nil && !phonePattern.MatchString(*phone) {
			return models.FieldViolation(models.ErrValidationFailed, "phone", "Invalid phone number format")
		}
		return nil
	}}
}

// ageRule passes when dob is unset.
func ageRule(dob *time.Time, now time.Time) Rule {
	return Rule{Name: "user_must_be_at_least_age", Check: func() *models.RuleViolation {
		if dob == nil {
			return nil
		}
		age, ok := AgeAt(*dob, now)
		if !ok {
			return models.FieldViolation(models.ErrValidationFailed, "date_of_birth", "Invalid date of birth")
		}
		if age < MinimumAge {
			return models.FieldViolation(models.ErrValidationFailed, "date_of_birth",
				fmt.Sprintf("User must be at least %d years old", MinimumAge))
		}
		return nil
	}}
}

// passwordProblem returns the first unmet complexity requirement, or "".
func passwordProblem(password string) string {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return fmt.Sprintf("Password must be at least %d characters", MinPasswordLength)
	}

	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case !unicode.IsLetter(r):
			hasSymbol = true
		}
	}

	switch {
	case !hasUpper:
		return "Password must contain at least one uppercase letter"
	case !hasLower:
		return "Password must contain at least one lowercase letter"
	case !hasDigit:
		return "Password must contain at least one number"
	case !hasSymbol:
		return "Password must contain at least one special character"
	}
	return ""
}

// AgeAt returns the number of full calendar years between dob and now.
// ok is false when dob lies after now.
func AgeAt(dob, now time.Time) (age int, ok bool) {
	now = now.In(dob.Location())
	if dob.After(now) {
		return 0, false
	}
	age = now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	return age, true
}

// SplitFullName splits on the first whitespace boundary. The remaining words
// are rejoined with single spaces.
func SplitFullName(fullName string) (first, last string) {
	parts := strings.Fields(fullName)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

// UsernameFromEmail returns the local part of an email address.
func UsernameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
