package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapPostgresError_Nil(t *testing.T) {
	assert.NoError(t, MapPostgresError(nil))
}

func TestMapPostgresError_NoRows(t *testing.T) {
	err := MapPostgresError(fmt.Errorf("query: %w", pgx.ErrNoRows))
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMapPostgresError_UniqueViolationNamesField(t *testing.T) {
	tests := []struct {
		constraint string
		field      string
	}{
		{"users_email_key", "email"},
		{"users_phone_key", "phone"},
	}

	for _, tt := range tests {
		err := MapPostgresError(&pgconn.PgError{Code: "23505", ConstraintName: tt.constraint})

		assert.ErrorIs(t, err, models.ErrConflict)
		var v *models.RuleViolation
		require.True(t, errors.As(err, &v))
		assert.Equal(t, tt.field, v.Field)
	}
}

func TestMapPostgresError_UnknownUniqueConstraint(t *testing.T) {
	err := MapPostgresError(&pgconn.PgError{Code: "23505", ConstraintName: "something_else"})
	assert.Equal(t, models.ErrConflict, err)
}

func TestMapPostgresError_CheckViolation(t *testing.T) {
	err := MapPostgresError(&pgconn.PgError{Code: "23514", ColumnName: "status", Message: "bad status"})
	assert.ErrorIs(t, err, models.ErrValidationFailed)
}

func TestMapPostgresError_PassThrough(t *testing.T) {
	orig := errors.New("connection reset")
	assert.Equal(t, orig, MapPostgresError(orig))
}

func TestMigrations_Embedded(t *testing.T) {
	entries, err := migrations.ReadDir(migrationsDir)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}
