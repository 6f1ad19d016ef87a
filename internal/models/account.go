package models

import (
	"strings"
	"time"
)

// AccountStatus is the verification/activation state of an account.
type AccountStatus string

const (
	StatusPending  AccountStatus = "pending"
	StatusActive   AccountStatus = "active"
	StatusInactive AccountStatus = "inactive"
)

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// AccountRecord is the persisted security state of one user account.
// Guards receive it by value and return a new record; they never mutate the input.
type AccountRecord struct {
	ID           int64
	Username     string
	Email        string
	Phone        *string
	PasswordHash string
	FirstName    string
	LastName     string
	DateOfBirth  *time.Time
	Status       AccountStatus
	Role         string

	VerificationToken        string // empty when no token is outstanding
	VerificationTokenExpiry  *time.Time
	EmailVerifiedAt          *time.Time
	VerificationResendCount  int
	LastVerificationResendAt *time.Time

	FailedLoginAttempts int
	LastFailedLoginAt   *time.Time
	AccountLockedUntil  *time.Time
	LastLoginAt         *time.Time

	Version   int64 // optimistic concurrency token, owned by storage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FullName joins first and last name.
func (a AccountRecord) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// IsLocked reports whether the lockout window is still open at now.
func (a AccountRecord) IsLocked(now time.Time) bool {
	return a.AccountLockedUntil != nil && a.AccountLockedUntil.After(now)
}

// IsActive reports whether the email has been verified and the account may log in.
func (a AccountRecord) IsActive() bool {
	return a.Status == StatusActive
}

// Clone returns a copy that shares no pointers with a.
func (a AccountRecord) Clone() AccountRecord {
	c := a
	c.Phone = cloneString(a.Phone)
	c.DateOfBirth = cloneTime(a.DateOfBirth)
	c.VerificationTokenExpiry = cloneTime(a.VerificationTokenExpiry)
	c.EmailVerifiedAt = cloneTime(a.EmailVerifiedAt)
	c.LastVerificationResendAt = cloneTime(a.LastVerificationResendAt)
	c.LastFailedLoginAt = cloneTime(a.LastFailedLoginAt)
	c.AccountLockedUntil = cloneTime(a.AccountLockedUntil)
	c.LastLoginAt = cloneTime(a.LastLoginAt)
	return c
}

// Profile is the public view of an account.
type Profile struct {
	ID              int64      `json:"id,string"`
	Username        string     `json:"username"`
	Email           string     `json:"email"`
	Phone           *string    `json:"phone,omitempty"`
	FullName        string     `json:"full_name"`
	Role            string     `json:"role"`
	Status          string     `json:"status"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
	LastLoginAt     *time.Time `json:"last_login_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// ToProfile strips credentials and security counters.
func (a AccountRecord) ToProfile() Profile {
	return Profile{
		ID:              a.ID,
		Username:        a.Username,
		Email:           a.Email,
		Phone:           a.Phone,
		FullName:        a.FullName(),
		Role:            a.Role,
		Status:          string(a.Status),
		EmailVerifiedAt: a.EmailVerifiedAt,
		LastLoginAt:     a.LastLoginAt,
		CreatedAt:       a.CreatedAt,
	}
}

// AccountFilter selects a page of accounts. An empty Status matches every status.
type AccountFilter struct {
	Status AccountStatus
	Limit  int
	Offset int
}

// TimePtr returns a pointer to t.
func TimePtr(t time.Time) *time.Time {
	return &t
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
