package database

import (
	"errors"
	"strings"

	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueFields maps unique index names to the input field they guard.
var uniqueFields = map[string]string{
	"users_email_key":              "email",
	"users_phone_key":              "phone",
	"users_verification_token_key": "verification_token",
	"users_pkey":                   "id",
}

// MapPostgresError translates driver errors into model sentinels.
// Unique violations become a *models.RuleViolation naming the conflicting field.
func MapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			field := uniqueFields[pgErr.ConstraintName]
			if field == "" {
				return models.ErrConflict
			}
			return models.FieldViolation(models.ErrConflict, field,
				conflictMessage(field))
		case "23514", "23502": // check_violation, not_null_violation
			return models.FieldViolation(models.ErrValidationFailed, pgErr.ColumnName, pgErr.Message)
		}
	}

	return err
}

func conflictMessage(field string) string {
	switch field {
	case "email":
		return "Email already registered"
	case "phone":
		return "Phone number already registered"
	default:
		return strings.ReplaceAll(field, "_", " ") + " already exists"
	}
}
