package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/BradenHooton/gatekeeper/internal/database"
	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

const accountColumns = `
	id, username, email, phone, password_hash, first_name, last_name, date_of_birth, status, role,
	verification_token, verification_token_expiry, email_verified_at, verification_resend_count,
	last_verification_resend_at, failed_login_attempts, last_failed_login_at, account_locked_until,
	last_login_at, version, created_at, updated_at`

// AccountRepository persists AccountRecords in the users table.
// Save is guarded by the version column so concurrent writers cannot
// silently overwrite each other.
type AccountRepository struct {
	pool *pgxpool.Pool
}

func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{pool: db.Pool}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccountRow(scanner rowScanner) (*models.AccountRecord, error) {
	var rec models.AccountRecord
	var status string
	var token *string

	err := scanner.Scan(
		&rec.ID, &rec.Username, &rec.Email, &rec.Phone, &rec.PasswordHash,
		&rec.FirstName, &rec.LastName, &rec.DateOfBirth, &status, &rec.Role,
		&token, &rec.VerificationTokenExpiry, &rec.EmailVerifiedAt, &rec.VerificationResendCount,
		&rec.LastVerificationResendAt, &rec.FailedLoginAttempts, &rec.LastFailedLoginAt, &rec.AccountLockedUntil,
		&rec.LastLoginAt, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	rec.Status = models.AccountStatus(status)
	if token != nil {
		rec.VerificationToken = *token
	}
	return &rec, nil
}

func nullableToken(token string) *string {
	if token == "" {
		return nil
	}
	return &token
}

func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*models.AccountRecord, error) {
	query := `SELECT` + accountColumns + ` FROM users WHERE id = $1`
	return scanAccountRow(r.pool.QueryRow(ctx, query, id))
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*models.AccountRecord, error) {
	query := `SELECT` + accountColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`
	return scanAccountRow(r.pool.QueryRow(ctx, query, email))
}

func (r *AccountRepository) GetByVerificationToken(ctx context.Context, token string) (*models.AccountRecord, error) {
	if token == "" {
		return nil, models.ErrNotFound
	}
	query := `SELECT` + accountColumns + ` FROM users WHERE verification_token = $1`
	return scanAccountRow(r.pool.QueryRow(ctx, query, token))
}

func (r *AccountRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE LOWER(email) = LOWER($1))`, email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return exists, nil
}

func (r *AccountRepository) PhoneExists(ctx context.Context, phone string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE phone = $1)`, phone,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check phone: %w", err)
	}
	return exists, nil
}

// Create inserts a new account. The caller assigns the id. Unique index
// violations come back as a conflict naming the field.
func (r *AccountRepository) Create(ctx context.Context, rec *models.AccountRecord) (*models.AccountRecord, error) {
	query := `
		INSERT INTO users (
			id, username, email, phone, password_hash, first_name, last_name, date_of_birth, status, role,
			verification_token, verification_token_expiry, email_verified_at, verification_resend_count,
			last_verification_resend_at, failed_login_attempts, last_failed_login_at, account_locked_until,
			last_login_at, version, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, 1, $20, $21
		)
		RETURNING` + accountColumns

	return scanAccountRow(r.pool.QueryRow(ctx, query,
		rec.ID, rec.Username, rec.Email, rec.Phone, rec.PasswordHash,
		rec.FirstName, rec.LastName, rec.DateOfBirth, string(rec.Status), rec.Role,
		nullableToken(rec.VerificationToken), rec.VerificationTokenExpiry, rec.EmailVerifiedAt, rec.VerificationResendCount,
		rec.LastVerificationResendAt, rec.FailedLoginAttempts, rec.LastFailedLoginAt, rec.AccountLockedUntil,
		rec.LastLoginAt, rec.CreatedAt, rec.UpdatedAt,
	))
}

// List returns one page of accounts, newest first, and the number of accounts
// matching the filter across all pages.
func (r *AccountRepository) List(ctx context.Context, filter models.AccountFilter) ([]models.AccountRecord, int64, error) {
	var status *string
	if filter.Status != "" {
		s := string(filter.Status)
		status = &s
	}

	var total int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM users WHERE $1::text IS NULL OR status = $1`, status,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	query := `SELECT` + accountColumns + `
		FROM users
		WHERE $1::text IS NULL OR status = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, status, filter.Limit, filter.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	accounts := make([]models.AccountRecord, 0, filter.Limit)
	for rows.Next() {
		rec, err := scanAccountRow(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan user: %w", err)
		}
		accounts = append(accounts, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate users: %w", err)
	}
	return accounts, total, nil
}

// Save writes the mutable state of rec if nobody changed the row since rec
// was loaded. A stale rec yields models.ErrConcurrentUpdate; a taken email or
// phone comes back as a field conflict.
func (r *AccountRepository) Save(ctx context.Context, rec *models.AccountRecord) (*models.AccountRecord, error) {
	query := `
		UPDATE users SET
			status = $3,
			verification_token = $4,
			verification_token_expiry = $5,
			email_verified_at = $6,
			verification_resend_count = $7,
			last_verification_resend_at = $8,
			failed_login_attempts = $9,
			last_failed_login_at = $10,
			account_locked_until = $11,
			last_login_at = $12,
			updated_at = $13,
			email = $14,
			phone = $15,
			first_name = $16,
			last_name = $17,
			date_of_birth = $18,
			role = $19,
			version = version + 1
		WHERE id = $1 AND version = $2
		RETURNING` + accountColumns

	saved, err := scanAccountRow(r.pool.QueryRow(ctx, query,
		rec.ID, rec.Version,
		string(rec.Status),
		nullableToken(rec.VerificationToken),
		rec.VerificationTokenExpiry,
		rec.EmailVerifiedAt,
		rec.VerificationResendCount,
		rec.LastVerificationResendAt,
		rec.FailedLoginAttempts,
		rec.LastFailedLoginAt,
		rec.AccountLockedUntil,
		rec.LastLoginAt,
		rec.UpdatedAt,
		rec.Email,
		rec.Phone,
		rec.FirstName,
		rec.LastName,
		rec.DateOfBirth,
		rec.Role,
	))
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrConcurrentUpdate
	}
	return saved, err
}
