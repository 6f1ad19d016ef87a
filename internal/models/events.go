package models

import (
	"strconv"
	"time"
)

// Event topics published after a committed account transition.
const (
	TopicUserRegistered         = "user.registered"
	TopicUserActivated          = "user.activated"
	TopicUserLoggedIn           = "user.logged_in"
	TopicUserVerificationResent = "user.verification_resent"
	TopicUserEmailChanged       = "user.email_changed"
	TopicUserDeactivated        = "user.deactivated"
	TopicUserReactivated        = "user.reactivated"
)

// Event is anything the account services publish to the message bus.
type Event interface {
	Topic() string
	// Key groups events of the same account on ordered transports. It is the
	// account id so no personal data ends up in partition keys or headers.
	Key() string
}

func accountKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

type UserRegistered struct {
	UserID            int64     `json:"user_id,string"`
	Email             string    `json:"email"`
	FullName          string    `json:"full_name"`
	VerificationToken string    `json:"verification_token"`
	ExpiresAt         time.Time `json:"expires_at"`
	CreatedAt         time.Time `json:"created_at"`
}

func (e UserRegistered) Topic() string { return TopicUserRegistered }
func (e UserRegistered) Key() string   { return accountKey(e.UserID) }

type UserActivated struct {
	UserID     int64     `json:"user_id,string"`
	Email      string    `json:"email"`
	VerifiedAt time.Time `json:"verified_at"`
}

func (e UserActivated) Topic() string { return TopicUserActivated }
func (e UserActivated) Key() string   { return accountKey(e.UserID) }

type UserLoggedIn struct {
	UserID     int64     `json:"user_id,string"`
	Email      string    `json:"email"`
	SessionID  string    `json:"session_id"`
	DeviceInfo string    `json:"device_info,omitempty"`
	IPAddress  string    `json:"ip_address,omitempty"`
	LoggedInAt time.Time `json:"logged_in_at"`
}

func (e UserLoggedIn) Topic() string { return TopicUserLoggedIn }
func (e UserLoggedIn) Key() string   { return accountKey(e.UserID) }

// UserVerificationResent carries a freshly issued verification token.
type UserVerificationResent struct {
	UserID            int64     `json:"user_id,string"`
	Email             string    `json:"email"`
	FullName          string    `json:"full_name"`
	VerificationToken string    `json:"verification_token"`
	ExpiresAt         time.Time `json:"expires_at"`
	ResendCount       int       `json:"resend_count"`
}

func (e UserVerificationResent) Topic() string { return TopicUserVerificationResent }
func (e UserVerificationResent) Key() string   { return accountKey(e.UserID) }

// UserEmailChanged asks the new address to be verified before the account can
// log in again.
type UserEmailChanged struct {
	UserID            int64     `json:"user_id,string"`
	Email             string    `json:"email"`
	FullName          string    `json:"full_name"`
	VerificationToken string    `json:"verification_token"`
	ExpiresAt         time.Time `json:"expires_at"`
	ChangedAt         time.Time `json:"changed_at"`
}

func (e UserEmailChanged) Topic() string { return TopicUserEmailChanged }
func (e UserEmailChanged) Key() string   { return accountKey(e.UserID) }

type UserDeactivated struct {
	UserID        int64     `json:"user_id,string"`
	DeactivatedBy int64     `json:"deactivated_by,string"`
	DeactivatedAt time.Time `json:"deactivated_at"`
}

func (e UserDeactivated) Topic() string { return TopicUserDeactivated }
func (e UserDeactivated) Key() string   { return accountKey(e.UserID) }

// UserReactivated carries a verification token when the account went back to
// pending instead of active.
type UserReactivated struct {
	UserID            int64      `json:"user_id,string"`
	Email             string     `json:"email"`
	FullName          string     `json:"full_name"`
	Status            string     `json:"status"`
	ReactivatedBy     int64      `json:"reactivated_by,string"`
	VerificationToken string     `json:"verification_token,omitempty"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	ReactivatedAt     time.Time  `json:"reactivated_at"`
}

func (e UserReactivated) Topic() string { return TopicUserReactivated }
func (e UserReactivated) Key() string   { return accountKey(e.UserID) }
