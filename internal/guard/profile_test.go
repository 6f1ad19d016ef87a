package guard

import (
	"testing"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deactivatedAccount() models.AccountRecord {
	rec := activeAccount()
	rec.Status = models.StatusInactive
	return rec
}

func TestUpdateProfile_NameAndPhone(t *testing.T) {
	rec := activeAccount()

	next, err := UpdateProfile(rec, ProfileUpdate{
		FullName: strPtr("Janet  Q Public"),
		Phone:    strPtr("+442071838750"),
	}, at(10, 0), fixedToken)

	require.NoError(t, err)
	assert.Equal(t, "Janet", next.FirstName)
	assert.Equal(t, "Q Public", next.LastName)
	require.NotNil(t, next.Phone)
	assert.Equal(t, "+442071838750", *next.Phone)
	assert.Equal(t, models.StatusActive, next.Status, "profile edits keep the account verified")
	assert.Equal(t, rec.EmailVerifiedAt, next.EmailVerifiedAt)
	assert.Equal(t, at(10, 0), next.UpdatedAt)

	assert.Equal(t, "Jane", rec.FirstName)
	assert.Nil(t, rec.Phone)
}

func TestUpdateProfile_EmptyUpdateOnlyTouchesTimestamp(t *testing.T) {
	rec := activeAccount()

	next, err := UpdateProfile(rec, ProfileUpdate{}, at(10, 0), fixedToken)

	require.NoError(t, err)
	expected := rec.Clone()
	expected.UpdatedAt = at(10, 0)
	assert.Equal(t, expected, next)
}

func TestUpdateProfile_EmailChangeRequiresVerification(t *testing.T) {
	rec := activeAccount()
	rec.VerificationResendCount = 2
	rec.LastVerificationResendAt = models.TimePtr(at(9, 30))

	next, err := UpdateProfile(rec, ProfileUpdate{Email: strPtr("jane.new@example.com")}, at(10, 0), fixedToken)

	require.NoError(t, err)
	assert.Equal(t, "jane.new@example.com", next.Email)
	assert.Equal(t, models.StatusPending, next.Status)
	assert.Nil(t, next.EmailVerifiedAt)
	assert.Equal(t, fixedToken(), next.VerificationToken)
	require.NotNil(t, next.VerificationTokenExpiry)
	assert.Equal(t, at(10, 0).Add(VerificationTokenTTL), *next.VerificationTokenExpiry)
	assert.Zero(t, next.VerificationResendCount)
	assert.Nil(t, next.LastVerificationResendAt)

	verified, err := Verify(next, at(11, 0))
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, verified.Status)
}

func TestUpdateProfile_SameEmailDifferentCaseKeepsVerification(t *testing.T) {
	rec := activeAccount()
	tokenCalled := false

	next, err := UpdateProfile(rec, ProfileUpdate{Email: strPtr("JANE@example.com")}, at(10, 0), func() string {
		tokenCalled = true
		return "unused"
	})

	require.NoError(t, err)
	assert.False(t, tokenCalled)
	assert.Equal(t, rec.Email, next.Email)
	assert.Equal(t, models.StatusActive, next.Status)
}

func TestUpdateProfile_Validation(t *testing.T) {
	tests := []struct {
		name  string
		upd   ProfileUpdate
		rule  string
		field string
	}{
		{"blank name", ProfileUpdate{FullName: strPtr("   ")}, "full_name_must_be_valid", "full_name"},
		{"bad phone", ProfileUpdate{Phone: strPtr("555-CALL-NOW")}, "phone_must_be_valid", "phone"},
		{"too young", ProfileUpdate{DateOfBirth: models.TimePtr(at(10, 0).AddDate(-12, 0, 0))}, "user_must_be_at_least_age", "date_of_birth"},
		{"bad email", ProfileUpdate{Email: strPtr("not-an-email")}, "email_must_be_valid", "email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UpdateProfile(activeAccount(), tt.upd, at(10, 0), fixedToken)

			v := requireViolation(t, err, models.ErrValidationFailed, tt.rule)
			assert.Equal(t, tt.field, v.Field)
		})
	}
}

func TestUpdateProfile_DeactivatedAccount(t *testing.T) {
	_, err := UpdateProfile(deactivatedAccount(), ProfileUpdate{FullName: strPtr("Jane Roe")}, at(10, 0), fixedToken)

	requireViolation(t, err, models.ErrAccountNotActive, "user_must_not_be_deactivated")
}

func TestDeactivate(t *testing.T) {
	rec := pendingAccount(at(12, 0))

	next, err := Deactivate(rec, at(10, 0))

	require.NoError(t, err)
	assert.Equal(t, models.StatusInactive, next.Status)
	assert.Empty(t, next.VerificationToken)
	assert.Nil(t, next.VerificationTokenExpiry)
	assert.Equal(t, at(10, 0), next.UpdatedAt)
	assert.Equal(t, models.StatusPending, rec.Status)
}

func TestDeactivate_Twice(t *testing.T) {
	_, err := Deactivate(deactivatedAccount(), at(10, 0))

	requireViolation(t, err, models.ErrConflict, "user_must_not_be_already_deactivated")
}

func TestDeactivated_AccountIsShutOut(t *testing.T) {
	rec, err := Deactivate(activeAccount(), at(10, 0))
	require.NoError(t, err)

	assert.ErrorIs(t, ValidateLogin(rec, at(10, 5)), models.ErrAccountNotActive)

	_, err = PrepareResend(rec, "token-2", at(12, 0), at(10, 5))
	requireViolation(t, err, models.ErrAccountNotActive, "user_must_not_be_deactivated")

	rec.VerificationToken = "token-2"
	rec.VerificationTokenExpiry = models.TimePtr(at(12, 0))
	_, err = Verify(rec, at(10, 5))
	requireViolation(t, err, models.ErrAccountNotActive, "user_must_not_be_deactivated")
}

func TestReactivate_VerifiedAccount(t *testing.T) {
	rec := deactivatedAccount()
	rec.FailedLoginAttempts = 5
	rec.LastFailedLoginAt = models.TimePtr(at(9, 0))
	rec.AccountLockedUntil = models.TimePtr(at(9, 30))

	next, err := Reactivate(rec, at(10, 0), fixedToken)

	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, next.Status)
	assert.Empty(t, next.VerificationToken)
	assert.Zero(t, next.FailedLoginAttempts)
	assert.Nil(t, next.LastFailedLoginAt)
	assert.Nil(t, next.AccountLockedUntil)
	assert.NoError(t, ValidateLogin(next, at(10, 1)))
}

func TestReactivate_UnverifiedAccount(t *testing.T) {
	rec := deactivatedAccount()
	rec.EmailVerifiedAt = nil

	next, err := Reactivate(rec, at(10, 0), fixedToken)

	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, next.Status)
	assert.Equal(t, fixedToken(), next.VerificationToken)
	require.NotNil(t, next.VerificationTokenExpiry)
	assert.Equal(t, at(10, 0).Add(24*time.Hour), *next.VerificationTokenExpiry)
}

func TestReactivate_NotDeactivated(t *testing.T) {
	_, err := Reactivate(activeAccount(), at(10, 0), fixedToken)

	requireViolation(t, err, models.ErrConflict, "user_must_be_deactivated")
}
